// Package reservoir implements the fixed-capacity sample storage used by
// timer buckets. It owns only the backing array and the fill-phase cursor;
// the replacement rule (which slot to overwrite once the array is full)
// is the sampler's decision, since it depends on bucket-level window state
// (internal/sampler).
package reservoir

import "math"

// Reservoir is a fixed-capacity array of float64 samples. Empty slots hold
// NaN, matching the "NaN = empty slot" convention from the data model.
type Reservoir struct {
	slots     []float64
	fillIndex int
}

// New allocates a reservoir with the given capacity, all slots empty.
func New(capacity int) *Reservoir {
	r := &Reservoir{slots: make([]float64, capacity)}
	r.Reset()
	return r
}

// Reset clears every slot to NaN and rewinds the fill cursor.
func (r *Reservoir) Reset() {
	for i := range r.slots {
		r.slots[i] = math.NaN()
	}
	r.fillIndex = 0
}

// ResetFillIndex rewinds only the fill cursor, leaving slot contents as-is.
// Used on the SAMPLING -> OBSERVING transition (spec.md §4.2 update()).
func (r *Reservoir) ResetFillIndex() { r.fillIndex = 0 }

// FillIndex reports the current fill-phase cursor.
func (r *Reservoir) FillIndex() int { return r.fillIndex }

// Len is the reservoir's fixed capacity.
func (r *Reservoir) Len() int { return len(r.slots) }

// FillNext appends value at the fill cursor and advances it. It reports
// false once the fill phase is complete (cursor has reached capacity);
// the caller must fall back to the replacement rule at that point.
func (r *Reservoir) FillNext(value float64) bool {
	if r.fillIndex >= len(r.slots) {
		return false
	}
	r.slots[r.fillIndex] = value
	r.fillIndex++
	return true
}

// Set overwrites slot i directly; used by the replacement phase.
func (r *Reservoir) Set(i int, value float64) { r.slots[i] = value }

// At returns the current value of slot i.
func (r *Reservoir) At(i int) float64 { return r.slots[i] }

// Clear resets slot i back to empty (NaN).
func (r *Reservoir) Clear(i int) { r.slots[i] = math.NaN() }

// Each visits every non-empty slot in index order.
func (r *Reservoir) Each(fn func(index int, value float64)) {
	for i, v := range r.slots {
		if !math.IsNaN(v) {
			fn(i, v)
		}
	}
}

// Count returns the number of non-empty slots.
func (r *Reservoir) Count() int {
	n := 0
	r.Each(func(int, float64) { n++ })
	return n
}
