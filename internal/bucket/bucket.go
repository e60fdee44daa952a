// Package bucket defines the per-key aggregation state owned by the
// sampler (spec.md §3 "Bucket"). A tagged variant keeps the Timer-only
// reservoir and extrema fields out of Counter/Gauge buckets entirely,
// following the design note recommending a bucket variant over manual
// per-field type checks.
package bucket

import (
	"math"

	"github.com/theatrus/statsrelay/internal/reservoir"
)

// MetricType mirrors the subset of parser.MetricType the sampler acts on.
type MetricType int

const (
	Counter MetricType = iota
	Timer
	Gauge
)

// UpperSentinel and LowerSentinel are the "never set" extremum values. The
// source initializes upper to the smallest positive *normal* double (not
// -Inf) and lower to the largest finite double; spec.md §9 flags this as an
// open question and directs implementers to keep it as specified since
// timer values in this ecosystem are non-negative.
const (
	UpperSentinel = 2.2250738585072014e-308 // smallest positive normal float64
	LowerSentinel = math.MaxFloat64
)

// TimerState holds the fields only a TIMER bucket needs.
type TimerState struct {
	Upper, Lower                     float64
	UpperSampleRate, LowerSampleRate float64
	Reservoir                        *reservoir.Reservoir
}

// Bucket is the per-key aggregation and sampling state.
type Bucket struct {
	Type            MetricType
	Sampling        bool
	LastWindowCount uint64
	Sum             float64
	Count           float64
	LastModifiedAt  int64 // seconds since epoch

	Timer *TimerState // non-nil only when Type == Timer
}

// New constructs a bucket of the given type. reservoirCapacity is ignored
// for non-Timer types.
func New(t MetricType, reservoirCapacity int) *Bucket {
	b := &Bucket{Type: t}
	if t == Timer {
		b.Timer = &TimerState{
			Upper:     UpperSentinel,
			Lower:     LowerSentinel,
			Reservoir: reservoir.New(reservoirCapacity),
		}
	}
	return b
}
