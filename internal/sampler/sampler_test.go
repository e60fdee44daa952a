package sampler

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theatrus/statsrelay/internal/bucket"
	"github.com/theatrus/statsrelay/internal/clock"
	"github.com/theatrus/statsrelay/internal/parser"
	"github.com/theatrus/statsrelay/internal/rlog"
)

func testLogger() rlog.Logger {
	return rlog.New(io.Discard, logrus.PanicLevel)
}

type recordingSink struct {
	lines []string
}

func (r *recordingSink) Emit(key string, line []byte) {
	r.lines = append(r.lines, string(line))
}

func parseLine(t *testing.T, s string) parser.ParsedLine {
	t.Helper()
	p, err := parser.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return p
}

func newTestSampler(t *testing.T, threshold int64) (*Sampler, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	s, err := New(Config{
		Threshold:     threshold,
		Cardinality:   1000,
		ReservoirSize: 2,
		FlushMinMax:   true,
		TTL:           600,
	}, mock, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mock
}

// Scenario 3 (spec.md §8).
func TestCounterThresholdCrossingAndFlush(t *testing.T) {
	s, _ := newTestSampler(t, 2)
	p := parseLine(t, "foo:1|c")

	if v := s.ConsiderCounter("foo", p); v != NotSampling {
		t.Fatalf("1st call = %v, want NOT_SAMPLING", v)
	}
	if v := s.ConsiderCounter("foo", p); v != NotSampling {
		t.Fatalf("2nd call = %v, want NOT_SAMPLING", v)
	}
	if v := s.ConsiderCounter("foo", p); v != Sampling {
		t.Fatalf("3rd call = %v, want SAMPLING", v)
	}

	sink := &recordingSink{}
	s.Flush(sink)
	if len(sink.lines) != 1 || sink.lines[0] != "foo:1|c@1" {
		t.Fatalf("flush lines = %v, want [foo:1|c@1]", sink.lines)
	}

	b, ok := s.buckets.Get("foo")
	if !ok {
		t.Fatalf("bucket missing after flush")
	}
	if b.Sampling {
		t.Fatalf("expected bucket to return to OBSERVING after flush")
	}
}

// Scenario 4 (spec.md §8).
func TestTimerExtremaAndReservoirFlush(t *testing.T) {
	s, _ := newTestSampler(t, 2)
	vals := []float64{10, 20, 30, 5}
	var lastVerdict Verdict
	for _, v := range vals {
		line := parseLine(t, formatTimerLine(v))
		lastVerdict = s.ConsiderTimer("lat", line)
	}
	if lastVerdict != Sampling {
		t.Fatalf("expected 4th observation to return SAMPLING, got %v", lastVerdict)
	}

	sink := &recordingSink{}
	s.Flush(sink)
	if len(sink.lines) == 0 {
		t.Fatalf("expected flush to emit lines")
	}
	foundUpper, foundLower := false, false
	for _, l := range sink.lines {
		if l == "lat:30|ms@1" {
			foundUpper = true
		}
		if l == "lat:5|ms@1" {
			foundLower = true
		}
	}
	if !foundUpper {
		t.Fatalf("expected an upper extremum line, got %v", sink.lines)
	}
	if !foundLower {
		t.Fatalf("expected a lower extremum line, got %v", sink.lines)
	}
}

// Scenario 5 (spec.md §8).
func TestCardinalityLimitFlagsNewKeys(t *testing.T) {
	s, _ := newTestSampler(t, 2)
	s.cfg.Cardinality = 1
	a := parseLine(t, "a:1|c")
	b := parseLine(t, "b:1|c")

	if v := s.ConsiderCounter("a", a); v != NotSampling {
		t.Fatalf("a: got %v, want NOT_SAMPLING", v)
	}
	if v := s.ConsiderCounter("b", b); v != Flagged {
		t.Fatalf("b: got %v, want FLAGGED", v)
	}
	if s.Size() != 1 {
		t.Fatalf("map size = %d, want 1", s.Size())
	}
}

func TestFlushInvariantsHoldAfterward(t *testing.T) {
	s, _ := newTestSampler(t, 1)
	p := parseLine(t, "k:1|c")
	s.ConsiderCounter("k", p)
	s.ConsiderCounter("k", p)

	sink := &recordingSink{}
	s.Flush(sink)

	b, _ := s.buckets.Get("k")
	if b.Sum != 0 || b.Count != 0 {
		t.Fatalf("sum/count not reset after flush: sum=%v count=%v", b.Sum, b.Count)
	}
}

func TestExpireNeverRemovesSamplingBuckets(t *testing.T) {
	s, mock := newTestSampler(t, 0)
	p := parseLine(t, "k:1|c")
	s.ConsiderCounter("k", p)
	s.ConsiderCounter("k", p) // now sampling (threshold=0)

	mock.Add(time.Second)
	s.cfg.TTL = 0
	s.Expire()
	if _, ok := s.buckets.Get("k"); !ok {
		t.Fatalf("sampling bucket must not be expired")
	}
}

func TestIsSampling(t *testing.T) {
	s, _ := newTestSampler(t, 0)
	p := parseLine(t, "k:1|c")
	if s.IsSampling("k", bucket.Counter) {
		t.Fatalf("unknown key should not report sampling")
	}
	s.ConsiderCounter("k", p)
	s.ConsiderCounter("k", p)
	if !s.IsSampling("k", bucket.Counter) {
		t.Fatalf("expected key to be sampling")
	}
	if s.IsSampling("k", bucket.Timer) {
		t.Fatalf("type mismatch must report false")
	}
}

func formatTimerLine(v float64) string {
	return fmt.Sprintf("lat:%g|ms", v)
}
