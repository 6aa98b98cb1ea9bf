package bpu

import (
	"fmt"

	"github.com/sarchlab/bpsim/timing/replacement"
	"github.com/sarchlab/bpsim/timing/tage"
)

// Config holds configuration for the branch prediction unit.
type Config struct {
	// InitialRequestCredits is granted to Fetch once at start-up, before any
	// request flows. Must be at least 1. Default is 1.
	InitialRequestCredits int `json:"initial_request_credits" yaml:"initial_request_credits"`
	// RequestQueueDepth bounds the requests buffered in the unit, counting
	// both queued requests and predictions waiting for output credits.
	// Default is 8.
	RequestQueueDepth int `json:"request_queue_depth" yaml:"request_queue_depth"`
	// UpdateQueueDepth bounds buffered resolution updates. Default is 8.
	UpdateQueueDepth int `json:"update_queue_depth" yaml:"update_queue_depth"`
	// PredictWidth is the number of predictions generated per cycle.
	// 0 predicts every queued request.
	PredictWidth int `json:"predict_width" yaml:"predict_width"`

	// GHRSize is the number of global history bits. Default is 1024.
	GHRSize int `json:"ghr_size" yaml:"ghr_size"`

	// BTBEntries is the number of BTB entries. Must be a power of 2.
	// Default is 4096.
	BTBEntries int `json:"btb_entries" yaml:"btb_entries"`
	// BTBAssociativity is the number of BTB ways. Default is 8.
	BTBAssociativity int `json:"btb_associativity" yaml:"btb_associativity"`
	// BTBStride is the byte distance between indexable branches. Default is 4.
	BTBStride int `json:"btb_stride" yaml:"btb_stride"`
	// BTBReplacement names the BTB replacement policy. Default is "TreePLRU".
	BTBReplacement string `json:"btb_replacement" yaml:"btb_replacement"`

	// RASSize is the return address stack depth. Default is 16.
	RASSize int `json:"ras_size" yaml:"ras_size"`

	TAGE tage.Config `json:"tage" yaml:"tage"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		InitialRequestCredits: 1,
		RequestQueueDepth:     8,
		UpdateQueueDepth:      8,
		PredictWidth:          0,
		GHRSize:               1024,
		BTBEntries:            4096,
		BTBAssociativity:      8,
		BTBStride:             4,
		BTBReplacement:        replacement.NameTreePLRU,
		RASSize:               16,
		TAGE:                  tage.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InitialRequestCredits < 1 {
		return fmt.Errorf("initial_request_credits must be >= 1, got %d",
			c.InitialRequestCredits)
	}
	if c.RequestQueueDepth < c.InitialRequestCredits {
		return fmt.Errorf("request_queue_depth %d is smaller than initial_request_credits %d",
			c.RequestQueueDepth, c.InitialRequestCredits)
	}
	if c.UpdateQueueDepth < 1 {
		return fmt.Errorf("update_queue_depth must be >= 1, got %d", c.UpdateQueueDepth)
	}
	if c.PredictWidth < 0 {
		return fmt.Errorf("predict_width must be >= 0, got %d", c.PredictWidth)
	}
	if c.GHRSize < c.TAGE.MaxHistoryLength() {
		return fmt.Errorf("ghr_size %d is shorter than the longest TAGE history %d",
			c.GHRSize, c.TAGE.MaxHistoryLength())
	}
	if c.BTBAssociativity <= 0 || c.BTBEntries%c.BTBAssociativity != 0 {
		return fmt.Errorf("btb_entries %d must be a multiple of btb_associativity %d",
			c.BTBEntries, c.BTBAssociativity)
	}
	if c.BTBStride <= 0 {
		return fmt.Errorf("btb_stride must be > 0, got %d", c.BTBStride)
	}
	if _, err := replacement.ParseKind(c.BTBReplacement); err != nil {
		return fmt.Errorf("btb_replacement: %w", err)
	}
	if c.RASSize < 0 {
		return fmt.Errorf("ras_size must be >= 0, got %d", c.RASSize)
	}
	if err := c.TAGE.Validate(); err != nil {
		return fmt.Errorf("tage: %w", err)
	}

	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	clone := c
	clone.TAGE = c.TAGE.Clone()

	return clone
}
