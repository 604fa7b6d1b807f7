// Package ids provides the id allocation primitives used throughout a
// conversion run: a keyed monotonic sequencer and a source-to-target id
// mapper.  Both are constructed once per run and passed explicitly to the
// stages that need them; there is no package-level state.
package ids

// Sequencer hands out monotonically increasing integer ids, partitioned by an
// arbitrary string key.  Different keys are fully independent counters.  The
// zero value is not usable, use NewSequencer.
//
// Conversion is single-threaded (see the pipeline documentation), so the
// Sequencer is not safe for concurrent use.
type Sequencer struct {
	counters map[string]int
}

// NewSequencer returns a new Sequencer with all counters at zero.
func NewSequencer() *Sequencer {
	return &Sequencer{counters: make(map[string]int)}
}

// Next returns the next id for the given key.  The first call for a key
// returns 1, each subsequent call returns the previous value plus one.
func (s *Sequencer) Next(key string) int {
	s.counters[key]++
	return s.counters[key]
}

// Current returns the last id returned by Next for the key, or 0 if Next was
// never called for it.
func (s *Sequencer) Current(key string) int {
	return s.counters[key]
}
