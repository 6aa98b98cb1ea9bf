package tage

// History is a global branch history register of fixed length. Bit 0 is
// the most recent outcome.
type History struct {
	bits  []bool
	head  int
	count int
}

// NewHistory creates a history register holding up to size outcomes.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}

	return &History{bits: make([]bool, size)}
}

// Size returns the capacity in bits.
func (h *History) Size() int {
	return len(h.bits)
}

// Len returns how many outcomes have been recorded, up to Size.
func (h *History) Len() int {
	return h.count
}

// Push records the newest outcome, dropping the oldest when full.
func (h *History) Push(taken bool) {
	h.head = (h.head + 1) % len(h.bits)
	h.bits[h.head] = taken

	if h.count < len(h.bits) {
		h.count++
	}
}

// Bit returns the i-th most recent outcome. Bits never recorded read as
// not taken.
func (h *History) Bit(i int) bool {
	if i < 0 || i >= h.count {
		return false
	}

	pos := (h.head - i + len(h.bits)) % len(h.bits)

	return h.bits[pos]
}

// Fold compresses the newest length bits into width bits by XORing
// width-sized chunks together.
func (h *History) Fold(length int, width uint) uint32 {
	if width == 0 {
		return 0
	}
	if length > h.count {
		length = h.count
	}

	var folded uint32
	for i := 0; i < length; i++ {
		if h.Bit(i) {
			folded ^= 1 << (uint(i) % width)
		}
	}

	return folded
}

// Reset clears all recorded outcomes.
func (h *History) Reset() {
	for i := range h.bits {
		h.bits[i] = false
	}
	h.head = 0
	h.count = 0
}
