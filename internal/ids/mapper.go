package ids

// Mapper assigns a dense target-system integer id to each distinct source
// system identifier.  Allocation is lazy: the first Get for an unseen source
// id allocates the next unused integer, starting at 1.  The mapping is
// injective within one Mapper instance, and repeated Get calls for the same
// source id always return the same value.
//
// The type parameter covers the two identifier shapes seen in the wild:
// string ids (Slack, Rocket.Chat UUIDs) and integer ids (Gitter, HipChat).
type Mapper[K comparable] struct {
	fwd  map[K]int
	next int
}

// NewMapper returns an empty Mapper.
func NewMapper[K comparable]() *Mapper[K] {
	return &Mapper[K]{fwd: make(map[K]int)}
}

// Has reports whether the source id has already been assigned a target id.
func (m *Mapper[K]) Has(src K) bool {
	_, ok := m.fwd[src]
	return ok
}

// Get returns the target id for the source id, allocating a new one on first
// sight.
func (m *Mapper[K]) Get(src K) int {
	if id, ok := m.fwd[src]; ok {
		return id
	}
	m.next++
	m.fwd[src] = m.next
	return m.next
}

// Len returns the number of assigned ids.
func (m *Mapper[K]) Len() int {
	return len(m.fwd)
}
