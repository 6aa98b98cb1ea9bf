package cache

// MapBacking is a sparse byte-addressed memory. Unwritten bytes read as zero.
type MapBacking struct {
	bytes map[uint64]byte
}

// NewMapBacking creates an empty backing store.
func NewMapBacking() *MapBacking {
	return &MapBacking{bytes: make(map[uint64]byte)}
}

// Read fetches data from the backing memory.
func (m *MapBacking) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = m.bytes[addr+uint64(i)]
	}
	return data
}

// Write8 stores one byte.
func (m *MapBacking) Write8(addr uint64, b byte) {
	m.bytes[addr] = b
}

// Write32 stores a little-endian word.
func (m *MapBacking) Write32(addr uint64, v uint32) {
	for i := 0; i < 4; i++ {
		m.bytes[addr+uint64(i)] = byte(v >> (i * 8))
	}
}

// Write64 stores a little-endian double word.
func (m *MapBacking) Write64(addr uint64, v uint64) {
	for i := 0; i < 8; i++ {
		m.bytes[addr+uint64(i)] = byte(v >> (i * 8))
	}
}
