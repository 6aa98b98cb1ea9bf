package tage

// TaggedEntry is one entry of a tagged component.
type TaggedEntry struct {
	Valid bool
	// Tag is the partial tag computed from PC and history.
	Tag uint16
	// Ctr is a signed saturating counter; Ctr >= 0 predicts taken.
	Ctr int8
	// U is the usefulness counter consulted when choosing where to
	// allocate.
	U uint8
}

// Taken returns the direction the entry predicts.
func (e TaggedEntry) Taken() bool {
	return e.Ctr >= 0
}

// Component is a tagged table covering one history length.
type Component struct {
	entries []TaggedEntry

	historyLength int
	indexBits     uint
	tagBits       uint

	ctrMin int8
	ctrMax int8
	uMax   uint8
}

// NewComponent creates an empty component.
func NewComponent(cfg ComponentConfig) *Component {
	return &Component{
		entries:       make([]TaggedEntry, cfg.Entries),
		historyLength: cfg.HistoryLength,
		indexBits:     log2(cfg.Entries),
		tagBits:       uint(cfg.TagBits),
		ctrMin:        int8(-(int16(1) << (cfg.CtrBits - 1))),
		ctrMax:        int8((int16(1) << (cfg.CtrBits - 1)) - 1),
		uMax:          uint8((uint16(1) << cfg.UBits) - 1),
	}
}

// HistoryLength returns the number of history bits hashed into this table.
func (c *Component) HistoryLength() int {
	return c.historyLength
}

// Size returns the number of entries.
func (c *Component) Size() int {
	return len(c.entries)
}

// CounterRange returns the saturation bounds of the prediction counter.
func (c *Component) CounterRange() (lo, hi int8) {
	return c.ctrMin, c.ctrMax
}

// MaxUseful returns the saturation value of the usefulness counter.
func (c *Component) MaxUseful() uint8 {
	return c.uMax
}

// Index hashes PC and folded history into an entry index.
func (c *Component) Index(pc uint64, h *History) uint32 {
	mask := uint32(1)<<c.indexBits - 1
	pcBits := uint32(pc>>2) ^ uint32(pc>>(2+c.indexBits))

	return (pcBits ^ h.Fold(c.historyLength, c.indexBits)) & mask
}

// Tag hashes PC and history into a partial tag. The history is folded at
// two widths, the second shifted left by one.
func (c *Component) Tag(pc uint64, h *History) uint16 {
	mask := uint32(1)<<c.tagBits - 1
	tag := uint32(pc>>2) ^ h.Fold(c.historyLength, c.tagBits)

	if c.tagBits > 1 {
		tag ^= h.Fold(c.historyLength, c.tagBits-1) << 1
	}

	return uint16(tag & mask)
}

// Entry returns the entry at idx.
func (c *Component) Entry(idx uint32) *TaggedEntry {
	return &c.entries[idx]
}

// Match returns the entry at idx if it holds tag.
func (c *Component) Match(idx uint32, tag uint16) (*TaggedEntry, bool) {
	e := &c.entries[idx]
	if !e.Valid || e.Tag != tag {
		return nil, false
	}

	return e, true
}

// Allocate claims the entry at idx for tag, with a weak counter toward the
// observed outcome and no usefulness.
func (c *Component) Allocate(idx uint32, tag uint16, taken bool) {
	e := &c.entries[idx]
	e.Valid = true
	e.Tag = tag
	e.U = 0

	if taken {
		e.Ctr = 0
	} else {
		e.Ctr = -1
	}
}

// UpdateCounter moves the entry's counter toward the outcome, saturating.
func (c *Component) UpdateCounter(e *TaggedEntry, taken bool) {
	switch {
	case taken && e.Ctr < c.ctrMax:
		e.Ctr++
	case !taken && e.Ctr > c.ctrMin:
		e.Ctr--
	}
}

// Strong reports whether the entry's counter is away from the weak states.
func (c *Component) Strong(e *TaggedEntry) bool {
	return e.Ctr != 0 && e.Ctr != -1
}

// IncrementUseful saturates at the usefulness maximum.
func (c *Component) IncrementUseful(e *TaggedEntry) {
	if e.U < c.uMax {
		e.U++
	}
}

// DecrementUseful saturates at zero.
func (c *Component) DecrementUseful(e *TaggedEntry) {
	if e.U > 0 {
		e.U--
	}
}

// AgeUseful halves every usefulness counter.
func (c *Component) AgeUseful() {
	for i := range c.entries {
		c.entries[i].U >>= 1
	}
}

// Reset invalidates every entry.
func (c *Component) Reset() {
	for i := range c.entries {
		c.entries[i] = TaggedEntry{}
	}
}
