// Package tage models the tables of a TAGE-style branch predictor: a bimodal
// base table plus tagged components indexed by increasingly long global
// history. The longest-history component whose tag matches provides the
// prediction; the bimodal table answers when nothing matches.
package tage

import (
	"fmt"
	"math/bits"
)

// ComponentConfig sizes one tagged component.
type ComponentConfig struct {
	// Entries is the number of table entries. Must be a power of 2.
	Entries uint32 `json:"entries" yaml:"entries"`
	// TagBits is the width of the partial tag, 1 to 16.
	TagBits uint8 `json:"tag_bits" yaml:"tag_bits"`
	// CtrBits is the width of the signed prediction counter, 2 to 8.
	CtrBits uint8 `json:"ctr_bits" yaml:"ctr_bits"`
	// UBits is the width of the usefulness counter, 1 to 8.
	UBits uint8 `json:"u_bits" yaml:"u_bits"`
	// HistoryLength is the number of global history bits hashed in.
	HistoryLength int `json:"history_length" yaml:"history_length"`
}

// Config holds the geometry of the whole predictor.
type Config struct {
	// BimodalSize is the number of bimodal counters. Must be a power of 2.
	BimodalSize uint32 `json:"bimodal_size" yaml:"bimodal_size"`
	// BimodalCtrBits is the bimodal counter width; counters range over
	// [0, 2^BimodalCtrBits - 1].
	BimodalCtrBits uint8 `json:"bimodal_ctr_bits" yaml:"bimodal_ctr_bits"`
	// Components are ordered from shortest to longest history.
	Components []ComponentConfig `json:"components" yaml:"components"`
	// UsefulResetPeriod halves every usefulness counter after this many
	// updates. 0 disables aging.
	UsefulResetPeriod uint64 `json:"useful_reset_period" yaml:"useful_reset_period"`
}

// DefaultConfig returns a four-component predictor with geometric history
// lengths.
func DefaultConfig() Config {
	return Config{
		BimodalSize:    1024,
		BimodalCtrBits: 2,
		Components: []ComponentConfig{
			{Entries: 1024, TagBits: 9, CtrBits: 3, UBits: 2, HistoryLength: 8},
			{Entries: 1024, TagBits: 10, CtrBits: 3, UBits: 2, HistoryLength: 16},
			{Entries: 1024, TagBits: 11, CtrBits: 3, UBits: 2, HistoryLength: 32},
			{Entries: 1024, TagBits: 12, CtrBits: 3, UBits: 2, HistoryLength: 64},
		},
		UsefulResetPeriod: 256 * 1024,
	}
}

// MaxHistoryLength returns the longest history any component uses.
func (c Config) MaxHistoryLength() int {
	longest := 0
	for _, comp := range c.Components {
		if comp.HistoryLength > longest {
			longest = comp.HistoryLength
		}
	}

	return longest
}

// Validate checks table geometry.
func (c Config) Validate() error {
	if !isPowerOfTwo(c.BimodalSize) {
		return fmt.Errorf("bimodal_size must be a power of 2, got %d", c.BimodalSize)
	}
	if c.BimodalCtrBits == 0 || c.BimodalCtrBits > 8 {
		return fmt.Errorf("bimodal_ctr_bits must be in [1, 8], got %d", c.BimodalCtrBits)
	}

	prevHistory := 0
	for i, comp := range c.Components {
		if err := comp.validate(); err != nil {
			return fmt.Errorf("component %d: %w", i, err)
		}
		if comp.HistoryLength <= prevHistory {
			return fmt.Errorf("component %d: history_length must grow, got %d after %d",
				i, comp.HistoryLength, prevHistory)
		}
		prevHistory = comp.HistoryLength
	}

	return nil
}

func (c ComponentConfig) validate() error {
	if !isPowerOfTwo(c.Entries) {
		return fmt.Errorf("entries must be a power of 2, got %d", c.Entries)
	}
	if c.TagBits == 0 || c.TagBits > 16 {
		return fmt.Errorf("tag_bits must be in [1, 16], got %d", c.TagBits)
	}
	if c.CtrBits < 2 || c.CtrBits > 8 {
		return fmt.Errorf("ctr_bits must be in [2, 8], got %d", c.CtrBits)
	}
	if c.UBits == 0 || c.UBits > 8 {
		return fmt.Errorf("u_bits must be in [1, 8], got %d", c.UBits)
	}
	if c.HistoryLength <= 0 {
		return fmt.Errorf("history_length must be > 0, got %d", c.HistoryLength)
	}

	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	clone := c
	clone.Components = append([]ComponentConfig(nil), c.Components...)

	return clone
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && bits.OnesCount32(n) == 1
}

func log2(n uint32) uint {
	return uint(bits.TrailingZeros32(n))
}
