// Package elider implements the elision tracker, spec.md §4.3: a keyed
// generation counter that suppresses repeated zero-value transmissions
// with bounded "generation" skips, garbage-collected by wall-clock TTL.
package elider

import (
	"github.com/theatrus/statsrelay/internal/clock"
	"github.com/theatrus/statsrelay/internal/keymap"
)

// initialTableSize is a modest starting capacity; elided keys are usually
// a small fraction of the sampler's full key set.
const initialTableSize = 4096

// Config mirrors spec.md §6's elide_init(skip, gc_frequency, gc_ttl).
// GCFrequency is informational here (internal/relay's timer consumes it);
// the Elider itself only needs Skip and GCTTL.
type Config struct {
	Skip        int
	GCFrequency int64 // seconds; informational, see comment above
	GCTTL       int64 // seconds
}

type entry struct {
	generations int
	lastSeen    int64
}

// Elider owns the key -> {generations, last_seen} map.
type Elider struct {
	cfg     Config
	clock   clock.Clock
	entries *keymap.Map[*entry]
	lastGC  int64
}

// New constructs an Elider.
func New(cfg Config, c clock.Clock) *Elider {
	return &Elider{
		cfg:     cfg,
		clock:   c,
		entries: keymap.New[*entry](initialTableSize),
	}
}

// Size is the number of distinct keys currently tracked.
func (e *Elider) Size() int { return e.entries.Size() }

// Mark implements spec.md §4.3 mark: post-increment semantics. The first
// call on a fresh key returns exactly Skip (not zero) — the intentional
// jitter — and every subsequent call returns one more than the last.
func (e *Elider) Mark(key string) int {
	now := clock.Seconds(e.clock.Now())
	ent, ok := e.entries.Get(key)
	if !ok {
		ent = &entry{generations: e.cfg.Skip}
		e.entries.Put(key, ent)
	}
	ent.lastSeen = now
	result := ent.generations
	ent.generations++
	return result
}

// Peek reports a key's current generation count without marking it seen
// (unlike Mark/Unmark, it does not touch last_seen). Callers use this to
// decide whether a key needs Unmark at all, rather than unconditionally
// inserting an entry for every key that is never suppressed.
func (e *Elider) Peek(key string) (generations int, ok bool) {
	ent, ok := e.entries.Get(key)
	if !ok {
		return 0, false
	}
	return ent.generations, true
}

// Unmark implements spec.md §4.3 unmark: resets the generation counter to
// Skip and always returns Skip.
func (e *Elider) Unmark(key string) int {
	now := clock.Seconds(e.clock.Now())
	ent, ok := e.entries.Get(key)
	if !ok {
		ent = &entry{}
		e.entries.Put(key, ent)
	}
	ent.lastSeen = now
	ent.generations = e.cfg.Skip
	return e.cfg.Skip
}

// GC implements spec.md §4.3 gc(cutoff): removes entries untouched since
// cutoff, throttled to at most once per whole second even if called more
// often.
func (e *Elider) GC(cutoff int64) {
	if e.lastGC >= cutoff {
		return
	}
	e.lastGC = cutoff
	e.entries.Filter(func(key string, ent *entry) bool {
		return ent.lastSeen <= cutoff
	})
}

// GCNow computes cutoff as now - GCTTL and runs GC. This is the form
// internal/relay's GC timer calls on each tick.
func (e *Elider) GCNow() {
	now := clock.Seconds(e.clock.Now())
	e.GC(now - e.cfg.GCTTL)
}
