package tage

// Bimodal is the base prediction table: saturating counters indexed by PC
// only. Counters range over [0, 2^ctrBits - 1]; the upper half predicts
// taken.
type Bimodal struct {
	ctrs      []uint8
	mask      uint32
	max       uint8
	threshold uint8
}

// NewBimodal creates a table of size counters (a power of 2), each
// initialized to weakly taken.
func NewBimodal(size uint32, ctrBits uint8) *Bimodal {
	b := &Bimodal{
		ctrs:      make([]uint8, size),
		mask:      size - 1,
		max:       uint8((uint16(1) << ctrBits) - 1),
		threshold: uint8(uint16(1) << (ctrBits - 1)),
	}
	b.Reset()

	return b
}

// Index maps a PC to a counter, dropping the instruction alignment bits.
func (b *Bimodal) Index(pc uint64) uint32 {
	return uint32(pc>>2) & b.mask
}

// Counter returns the raw counter for pc.
func (b *Bimodal) Counter(pc uint64) uint8 {
	return b.ctrs[b.Index(pc)]
}

// Max returns the saturation value.
func (b *Bimodal) Max() uint8 {
	return b.max
}

// Predict returns the taken prediction for pc.
func (b *Bimodal) Predict(pc uint64) bool {
	return b.Counter(pc) >= b.threshold
}

// Strong reports whether the counter for pc is saturated.
func (b *Bimodal) Strong(pc uint64) bool {
	c := b.Counter(pc)
	return c == 0 || c == b.max
}

// Update moves the counter for pc toward the outcome, saturating.
func (b *Bimodal) Update(pc uint64, taken bool) {
	idx := b.Index(pc)
	c := b.ctrs[idx]

	switch {
	case taken && c < b.max:
		b.ctrs[idx] = c + 1
	case !taken && c > 0:
		b.ctrs[idx] = c - 1
	}
}

// Reset sets every counter to weakly taken.
func (b *Bimodal) Reset() {
	for i := range b.ctrs {
		b.ctrs[i] = b.threshold
	}
}
