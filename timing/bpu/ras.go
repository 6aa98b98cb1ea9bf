package bpu

// RASStats holds return address stack statistics.
type RASStats struct {
	Pushes     uint64
	Pops       uint64
	Overflows  uint64
	Underflows uint64
}

// RAS is a bounded return address stack. A push onto a full stack is
// dropped.
type RAS struct {
	entries []uint64
	size    int
	stats   RASStats
}

// NewRAS creates a stack holding up to size addresses.
func NewRAS(size int) *RAS {
	return &RAS{
		entries: make([]uint64, 0, size),
		size:    size,
	}
}

// Len returns the number of stored addresses.
func (r *RAS) Len() int {
	return len(r.entries)
}

// Stats returns stack statistics.
func (r *RAS) Stats() RASStats {
	return r.stats
}

// Push stores a return address. It reports false when the stack is full.
func (r *RAS) Push(addr uint64) bool {
	if len(r.entries) >= r.size {
		r.stats.Overflows++
		return false
	}

	r.entries = append(r.entries, addr)
	r.stats.Pushes++

	return true
}

// Pop removes and returns the newest return address.
func (r *RAS) Pop() (uint64, bool) {
	if len(r.entries) == 0 {
		r.stats.Underflows++
		return 0, false
	}

	addr := r.entries[len(r.entries)-1]
	r.entries = r.entries[:len(r.entries)-1]
	r.stats.Pops++

	return addr, true
}

// Reset empties the stack and clears statistics.
func (r *RAS) Reset() {
	r.entries = r.entries[:0]
	r.stats = RASStats{}
}
