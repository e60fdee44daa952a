// Package sampler implements the adaptive per-key sampling engine,
// spec.md §4.2. It owns the key -> bucket.Bucket map and drives the
// NEW -> OBSERVING -> SAMPLING <-> OBSERVING -> EXPIRED state machine.
// Every exported method here is meant to be called from a single
// goroutine (spec.md §5): there is no internal locking.
package sampler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/theatrus/statsrelay/internal/bucket"
	"github.com/theatrus/statsrelay/internal/clock"
	"github.com/theatrus/statsrelay/internal/forwarder"
	"github.com/theatrus/statsrelay/internal/keymap"
	"github.com/theatrus/statsrelay/internal/parser"
	"github.com/theatrus/statsrelay/internal/rlog"
	"github.com/theatrus/statsrelay/internal/rng"
)

// Verdict is the outcome of a consider_* call (spec.md §6 lifecycle).
type Verdict int

const (
	NotSampling Verdict = iota
	Sampling
	Flagged
)

func (v Verdict) String() string {
	switch v {
	case NotSampling:
		return "NOT_SAMPLING"
	case Sampling:
		return "SAMPLING"
	case Flagged:
		return "FLAGGED"
	default:
		return "UNKNOWN"
	}
}

// initialTableSize is the sampler bucket map's fixed initial capacity
// (spec.md §4.2).
const initialTableSize = 32768

// MaxUDPLength bounds any single emitted line (spec.md §4.2, §6).
const MaxUDPLength = 1432

// Config mirrors spec.md §6's sampler_init(threshold, window, cardinality,
// reservoir_size, flush_min_max, expiry_freq, ttl) signature. Window is not
// consulted by the Sampler itself — it is metadata for whoever schedules
// Flush (internal/relay) — but is carried here to keep this struct's shape
// aligned with the lifecycle function it models.
type Config struct {
	Threshold       int64
	Window          int64 // seconds; informational, see comment above
	Cardinality     int
	ReservoirSize   int
	FlushMinMax     bool
	ExpiryFrequency int64 // seconds
	TTL             int64 // seconds
}

// Sampler owns the key -> Bucket map.
type Sampler struct {
	cfg     Config
	clock   clock.Clock
	log     rlog.Logger
	rng     *rng.LCG48
	buckets *keymap.Map[*bucket.Bucket]
}

// New constructs a Sampler. threshold < 0 is rejected, matching spec.md §6.
func New(cfg Config, c clock.Clock, log rlog.Logger) (*Sampler, error) {
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("statsrelay: sampler threshold must be >= 0, got %d", cfg.Threshold)
	}
	return &Sampler{
		cfg:     cfg,
		clock:   c,
		log:     log,
		rng:     rng.NewLCG48(c.Now().UnixNano()),
		buckets: keymap.New[*bucket.Bucket](initialTableSize),
	}, nil
}

// Size is the number of distinct keys currently tracked.
func (s *Sampler) Size() int { return s.buckets.Size() }

// admit implements the shared admission/threshold logic common to
// consider_counter, consider_timer, and consider_gauge (spec.md §4.2).
// fresh reports whether this call inserted a brand-new bucket (in which
// case the caller must return NOT_SAMPLING without touching sum/count).
func (s *Sampler) admit(name string, mtype bucket.MetricType) (b *bucket.Bucket, fresh, flagged bool) {
	now := clock.Seconds(s.clock.Now())
	existing, ok := s.buckets.Get(name)
	if !ok {
		if s.buckets.Size() >= s.cfg.Cardinality {
			return nil, false, true
		}
		nb := bucket.New(mtype, s.cfg.ReservoirSize)
		nb.LastWindowCount = 1
		nb.LastModifiedAt = now
		s.buckets.Put(name, nb)
		return nb, true, false
	}
	existing.LastWindowCount++
	existing.LastModifiedAt = now
	if !existing.Sampling && existing.LastWindowCount > uint64(s.cfg.Threshold) {
		existing.Sampling = true
		// The triggering observation starts a fresh window count: spec.md
		// §8 scenario 3 pins update() seeing last_window_count==1 right
		// after a 3-observation, threshold-2 crossing followed by a single
		// flush, which only holds if the transition itself resets the
		// counter rather than leaving it at the raw increment total.
		existing.LastWindowCount = 1
		s.log.Debugf("statsrelay: key %q transitioned to SAMPLING", name)
	}
	return existing, false, false
}

func effectiveRate(presample float64) float64 {
	if presample > 0 && presample <= 1 {
		return presample
	}
	return 1
}

// ConsiderCounter implements spec.md §4.2 consider_counter.
func (s *Sampler) ConsiderCounter(name string, p parser.ParsedLine) Verdict {
	b, fresh, flagged := s.admit(name, bucket.Counter)
	if flagged {
		return Flagged
	}
	if fresh || !b.Sampling {
		return NotSampling
	}
	rate := effectiveRate(p.Presample)
	b.Sum += p.Value / rate
	b.Count += 1 / rate
	return Sampling
}

// ConsiderGauge implements spec.md §4.2 consider_gauge. Gauges carry no
// pre-sampling compensation: they represent instantaneous state.
func (s *Sampler) ConsiderGauge(name string, p parser.ParsedLine) Verdict {
	b, fresh, flagged := s.admit(name, bucket.Gauge)
	if flagged {
		return Flagged
	}
	if fresh || !b.Sampling {
		return NotSampling
	}
	b.Sum += p.Value
	b.Count++
	return Sampling
}

// ConsiderTimer implements spec.md §4.2 consider_timer: admission and
// threshold logic identical to consider_counter, plus extrema tracking and
// reservoir insertion on sampled observations.
func (s *Sampler) ConsiderTimer(name string, p parser.ParsedLine) Verdict {
	b, fresh, flagged := s.admit(name, bucket.Timer)
	if flagged {
		return Flagged
	}
	if fresh || !b.Sampling {
		return NotSampling
	}

	rate := effectiveRate(p.Presample)
	ts := b.Timer
	value := p.Value

	switch {
	case value > ts.Upper:
		ts.UpperSampleRate = rate
		if ts.Upper == bucket.UpperSentinel {
			// The initial extremum is held separately: it still feeds
			// sum/count (step 3) but is never inserted into the reservoir
			// (spec.md §4.2 step 1, "WITHOUT inserting into reservoir").
			ts.Upper = value
			b.Sum += value
			b.Count += 1 / rate
			return Sampling
		}
		ts.Upper, value = value, ts.Upper
	case value < ts.Lower:
		ts.LowerSampleRate = rate
		if ts.Lower == bucket.LowerSentinel {
			ts.Lower = value
			b.Sum += value
			b.Count += 1 / rate
			return Sampling
		}
		ts.Lower, value = value, ts.Lower
	}

	s.insertReservoir(b, value)
	b.Sum += value
	b.Count += 1 / rate
	return Sampling
}

// insertReservoir implements spec.md §4.2 step 2: fill phase, then
// replacement phase with the specified (intentionally biased) rule
// k = r mod last_window_count.
func (s *Sampler) insertReservoir(b *bucket.Bucket, value float64) {
	ts := b.Timer
	capacity := ts.Reservoir.Len()
	if capacity == 0 {
		return
	}
	if ts.Reservoir.FillIndex() < capacity {
		ts.Reservoir.FillNext(value)
		return
	}
	if b.LastWindowCount == 0 {
		return
	}
	r := s.rng.Next()
	k := int(r % int64(b.LastWindowCount))
	if k < capacity {
		ts.Reservoir.Set(k, value)
	}
}

// IsSampling implements spec.md §4.2 is_sampling.
func (s *Sampler) IsSampling(name string, mtype bucket.MetricType) bool {
	b, ok := s.buckets.Get(name)
	return ok && b.Type == mtype && b.Sampling
}

// Flush implements spec.md §4.2 flush(sink): iterates every bucket,
// emitting reconstructed lines for those currently sampling with a
// non-zero count, then runs update() for exactly those buckets.
func (s *Sampler) Flush(sink forwarder.Sink) {
	s.buckets.Iter(func(name string, b *bucket.Bucket) keymap.Action {
		if b.Sampling && b.Count > 0 {
			s.emit(name, b, sink)
			b.Sum = 0
			b.Count = 0
			s.update(name, b)
		}
		return keymap.Keep
	})
}

// update implements spec.md §4.2 update().
func (s *Sampler) update(name string, b *bucket.Bucket) {
	if b.LastWindowCount > uint64(s.cfg.Threshold) {
		b.Sampling = true
	} else if b.Sampling {
		b.Sampling = false
		if b.Timer != nil {
			b.Timer.Reservoir.ResetFillIndex()
		}
		s.log.Debugf("statsrelay: key %q transitioned to OBSERVING", name)
	}
	b.LastWindowCount = 0
}

// Expire implements spec.md §4.2's expiry pass: buckets currently sampling
// are never expired, matching the state machine's EXPIRED transition only
// firing from OBSERVING.
func (s *Sampler) Expire() {
	now := clock.Seconds(s.clock.Now())
	s.buckets.Filter(func(name string, b *bucket.Bucket) bool {
		return !b.Sampling && now-b.LastModifiedAt > s.cfg.TTL
	})
}

func (s *Sampler) emit(name string, b *bucket.Bucket, sink forwarder.Sink) {
	switch b.Type {
	case bucket.Counter:
		s.writeLine(sink, name, "c", b.Sum/b.Count, 1/b.Count)
	case bucket.Gauge:
		s.writeGauge(sink, name, b.Sum/b.Count)
	case bucket.Timer:
		s.emitTimer(name, b, sink)
	}
}

func (s *Sampler) emitTimer(name string, b *bucket.Bucket, sink forwarder.Sink) {
	ts := b.Timer
	if s.cfg.FlushMinMax {
		if ts.Upper > bucket.UpperSentinel {
			s.writeLine(sink, name, "ms", ts.Upper, ts.UpperSampleRate)
			ts.Upper = bucket.UpperSentinel
		}
		if ts.Lower < bucket.LowerSentinel {
			s.writeLine(sink, name, "ms", ts.Lower, ts.LowerSampleRate)
			ts.Lower = bucket.LowerSentinel
		}
	}
	numSamples := ts.Reservoir.Count()
	if numSamples == 0 {
		return
	}
	sampleRate := float64(numSamples) / b.Count
	ts.Reservoir.Each(func(i int, v float64) {
		s.writeLine(sink, name, "ms", v, sampleRate)
		ts.Reservoir.Clear(i)
	})
}

func (s *Sampler) writeGauge(sink forwarder.Sink, key string, value float64) {
	buf := make([]byte, 0, MaxUDPLength)
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = appendG(buf, value)
	buf = append(buf, "|g"...)
	s.write(sink, key, buf)
}

func (s *Sampler) writeLine(sink forwarder.Sink, key, typ string, value, rate float64) {
	buf := make([]byte, 0, MaxUDPLength)
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = appendG(buf, value)
	buf = append(buf, '|')
	buf = append(buf, typ...)
	buf = append(buf, '@')
	buf = appendG(buf, rate)
	s.write(sink, key, buf)
}

func (s *Sampler) write(sink forwarder.Sink, key string, line []byte) {
	if len(line) > MaxUDPLength {
		s.log.Errorf("statsrelay: emission for %q exceeds %d bytes, skipping", key, MaxUDPLength)
		return
	}
	sink.Emit(key, line)
}

// appendG formats v the way the external interface requires: "the standard
// shortest-round-trip double formatting with default precision 6" (spec.md
// §6, C's %g).
func appendG(dst []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(dst, '0')
	}
	return strconv.AppendFloat(dst, v, 'g', 6, 64)
}
