package replacement

// TreePLRU approximates LRU with a complete binary tree of direction bits.
// Each internal node points toward the half of its subtree that should be
// evicted next; leaves are ways. Updates and victim selection walk one
// root-to-leaf path, so both cost O(log2 numWays).
type TreePLRU struct {
	numWays int

	// bits holds the numWays-1 internal nodes in heap order: the children of
	// node i are 2i+1 and 2i+2. false points left, true points right.
	bits []bool
}

func newTreePLRU(numWays int) *TreePLRU {
	t := &TreePLRU{
		numWays: numWays,
		bits:    make([]bool, numWays-1),
	}

	return t
}

func (t *TreePLRU) sealed() {}

// Kind returns KindTreePLRU.
func (t *TreePLRU) Kind() Kind {
	return KindTreePLRU
}

// NumWays returns the number of ways.
func (t *TreePLRU) NumWays() int {
	return t.numWays
}

// Reset points every node left, making way 0 the first victim.
func (t *TreePLRU) Reset() {
	for i := range t.bits {
		t.bits[i] = false
	}
}

// Bits returns a copy of the direction bits in heap order.
func (t *TreePLRU) Bits() []bool {
	return append([]bool(nil), t.bits...)
}

// TouchMostRecentlyUsed points every node on the path to way away from it.
func (t *TreePLRU) TouchMostRecentlyUsed(way int) {
	checkWay(t, way)
	t.walk(way, true)
}

// TouchLeastRecentlyUsed points every node on the path to way toward it.
func (t *TreePLRU) TouchLeastRecentlyUsed(way int) {
	checkWay(t, way)
	t.walk(way, false)
}

func (t *TreePLRU) walk(way int, away bool) {
	node, lo, hi := 0, 0, t.numWays
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		inRight := way >= mid

		// A node pointing right nominates the right half for eviction.
		if away {
			t.bits[node] = !inRight
		} else {
			t.bits[node] = inRight
		}

		if inRight {
			node, lo = 2*node+2, mid
		} else {
			node, hi = 2*node+1, mid
		}
	}
}

// SelectVictim follows the direction bits from the root to a leaf.
func (t *TreePLRU) SelectVictim() int {
	node, lo, hi := 0, 0, t.numWays
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.bits[node] {
			node, lo = 2*node+2, mid
		} else {
			node, hi = 2*node+1, mid
		}
	}

	if lo < 0 || lo >= t.numWays {
		panic(&VictimError{Policy: NameTreePLRU, Victim: lo, NumWays: t.numWays})
	}

	return lo
}
