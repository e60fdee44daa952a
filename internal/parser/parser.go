// Package parser implements the zero-copy StatsD line grammar:
//
//	line  := key ':' value '|' type ( '|@' rate )?
//	key   := one or more bytes, not containing the FINAL ':'
//	value := decimal double
//	type  := 'c' | 'ms' | 'g' | 'kv' | 'h' | 's'
//	rate  := decimal double in (0, 1]
//
// Parse never allocates on the hot path and never modifies the input slice;
// the returned ParsedLine.Key aliases it.
package parser

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"unsafe"
)

// MetricType is the closed set of type tags the grammar recognizes.
type MetricType int

const (
	Unknown MetricType = iota
	Counter
	Timer
	KV
	Gauge
	Hist
	Set
)

func (t MetricType) String() string {
	switch t {
	case Counter:
		return "c"
	case Timer:
		return "ms"
	case KV:
		return "kv"
	case Gauge:
		return "g"
	case Hist:
		return "h"
	case Set:
		return "s"
	default:
		return "unknown"
	}
}

// MaxLineLength is the largest line the external interfaces accept (spec §6).
const MaxLineLength = 1432

// ErrInvalid is returned for every grammar violation; the caller logs once
// and drops the line, it never distinguishes sub-cases at the type level.
var ErrInvalid = errors.New("statsrelay: invalid statsd line")

// ParsedLine is a value type that borrows Key from the line passed to Parse.
// Callers that retain a ParsedLine across calls to Parse on a reused buffer
// must copy Key first.
type ParsedLine struct {
	Key       []byte
	Value     float64
	Presample float64
	Type      MetricType
}

// Parse parses a single line. The rightmost ':' (scanning from the end, not
// the first occurrence) delimits the key, so tag-bearing keys that embed
// their own colons — e.g. "ns.__tag=k:v:42|ms" — still resolve to the
// correct key/value split.
func Parse(line []byte) (ParsedLine, error) {
	if len(line) > MaxLineLength {
		return ParsedLine{}, ErrInvalid
	}
	colon := bytes.LastIndexByte(line, ':')
	if colon <= 0 {
		return ParsedLine{}, ErrInvalid
	}
	key := line[:colon]
	rest := line[colon+1:]

	firstPipe := bytes.IndexByte(rest, '|')
	if firstPipe < 0 {
		return ParsedLine{}, ErrInvalid
	}
	value, err := parseFloat(rest[:firstPipe])
	if err != nil {
		return ParsedLine{}, ErrInvalid
	}

	rest = rest[firstPipe+1:]
	var typeBytes, rateSeg []byte
	if secondPipe := bytes.IndexByte(rest, '|'); secondPipe < 0 {
		typeBytes = rest
	} else {
		typeBytes = rest[:secondPipe]
		rateSeg = rest[secondPipe+1:]
	}

	mtype, ok := parseType(typeBytes)
	if !ok {
		return ParsedLine{}, ErrInvalid
	}

	presample := 1.0
	if rateSeg != nil {
		if len(rateSeg) < 2 || rateSeg[0] != '@' {
			return ParsedLine{}, ErrInvalid
		}
		rate, err := parseFloat(rateSeg[1:])
		if err != nil || rate <= 0 || rate > 1 {
			return ParsedLine{}, ErrInvalid
		}
		presample = rate
	}

	return ParsedLine{Key: key, Value: value, Presample: presample, Type: mtype}, nil
}

func parseFloat(b []byte) (float64, error) {
	if len(b) == 0 {
		return 0, ErrInvalid
	}
	v, err := strconv.ParseFloat(unsafeString(b), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalid
	}
	return v, nil
}

func parseType(b []byte) (MetricType, bool) {
	switch string(b) {
	case "c":
		return Counter, true
	case "ms":
		return Timer, true
	case "kv":
		return KV, true
	case "g":
		return Gauge, true
	case "h":
		return Hist, true
	case "s":
		return Set, true
	default:
		return Unknown, false
	}
}

// unsafeString borrows b as a string without copying. b must outlive the
// returned string and must not be mutated while it is in use, which holds
// here since Parse never writes to its input.
func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
