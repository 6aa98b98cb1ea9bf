package replacement

import "fmt"

// LRU keeps an explicit recency order of the ways of a set. It also backs the
// MRU kind; the difference lives in how the controller touches it.
type LRU struct {
	kind Kind

	// order[0] is the least recently used way, order[len-1] the most.
	order []int
}

func newLRU(kind Kind, numWays int) *LRU {
	l := &LRU{
		kind:  kind,
		order: make([]int, numWays),
	}
	l.Reset()

	return l
}

func (l *LRU) sealed() {}

// Kind returns KindLRU, or KindMRU when created as MRU.
func (l *LRU) Kind() Kind {
	return l.kind
}

// NumWays returns the number of ways.
func (l *LRU) NumWays() int {
	return len(l.order)
}

// Reset orders the ways 0..n-1 from least to most recently used.
func (l *LRU) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
}

// Order returns a copy of the recency order, least recently used first.
func (l *LRU) Order() []int {
	return append([]int(nil), l.order...)
}

// TouchMostRecentlyUsed moves way to the most recent end.
func (l *LRU) TouchMostRecentlyUsed(way int) {
	checkWay(l, way)

	pos := l.position(way)
	copy(l.order[pos:], l.order[pos+1:])
	l.order[len(l.order)-1] = way
}

// TouchLeastRecentlyUsed moves way to the least recent end.
func (l *LRU) TouchLeastRecentlyUsed(way int) {
	checkWay(l, way)

	pos := l.position(way)
	copy(l.order[1:pos+1], l.order[:pos])
	l.order[0] = way
}

// SelectVictim returns the way at the least recent end.
func (l *LRU) SelectVictim() int {
	victim := l.order[0]
	if victim < 0 || victim >= len(l.order) {
		panic(&VictimError{
			Policy:  l.kind.String(),
			Victim:  victim,
			NumWays: len(l.order),
		})
	}

	return victim
}

func (l *LRU) position(way int) int {
	for i, w := range l.order {
		if w == way {
			return i
		}
	}

	panic(fmt.Sprintf("%s: way %d missing from recency order %v",
		l.kind, way, l.order))
}
