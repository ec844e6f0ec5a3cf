// Package clock implements vector clocks: the per-peer counters the
// resolver and sync engine use to order and merge concurrently-made edits
// across replicas without a central authority.
package clock

// VectorClock maps a peer's identity to the number of operations it has
// originated. A nil VectorClock is treated as all-zero.
type VectorClock map[string]int64

// Ordering is the relationship between two VectorClocks.
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

// NewVectorClock returns an empty clock.
func NewVectorClock() VectorClock { return make(VectorClock) }

// Increment returns clock with peerID's counter advanced by one, allocating
// the map first if clock is nil.
func Increment(clock VectorClock, peerID string) VectorClock {
	if clock == nil {
		clock = make(VectorClock)
	}
	clock[peerID] = clock[peerID] + 1
	return clock
}

// Merge returns the pointwise maximum of a and b, the vector clock
// representation of "caught up with everything either side has seen".
func Merge(a, b VectorClock) VectorClock {
	merged := make(VectorClock, len(a))
	for peer, count := range a {
		merged[peer] = count
	}
	for peer, count := range b {
		if existing, ok := merged[peer]; !ok || count > existing {
			merged[peer] = count
		}
	}
	return merged
}

// Compare reports the causal relationship between a and b: Equal if every
// counter matches, Before/After if a is dominated by or dominates b on
// every peer, Concurrent if neither dominates (a genuine conflict).
func Compare(a, b VectorClock) Ordering {
	aAhead, bAhead := false, false

	peers := make(map[string]struct{}, len(a)+len(b))
	for peer := range a {
		peers[peer] = struct{}{}
	}
	for peer := range b {
		peers[peer] = struct{}{}
	}

	for peer := range peers {
		av, bv := a[peer], b[peer]
		switch {
		case av > bv:
			aAhead = true
		case av < bv:
			bAhead = true
		}
	}

	switch {
	case !aAhead && !bAhead:
		return Equal
	case aAhead && !bAhead:
		return After
	case bAhead && !aAhead:
		return Before
	default:
		return Concurrent
	}
}

// Clone returns an independent copy of clock, or nil if clock is nil.
func Clone(clock VectorClock) VectorClock {
	if clock == nil {
		return nil
	}
	cloned := make(VectorClock, len(clock))
	for peer, count := range clock {
		cloned[peer] = count
	}
	return cloned
}
