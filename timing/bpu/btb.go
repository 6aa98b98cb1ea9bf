package bpu

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/bpsim/timing/replacement"
)

// BTBStats holds branch target buffer statistics.
type BTBStats struct {
	Lookups   uint64
	Hits      uint64
	Misses    uint64
	Inserts   uint64
	Evictions uint64
}

// BTB is a set-associative branch target buffer. Tags and valid bits live in
// an akita directory; targets live in a parallel slice indexed by
// (setID * associativity + wayID).
type BTB struct {
	numWays int
	stride  uint64

	directory *akitacache.DirectoryImpl
	policy    *replacement.PerSet
	targets   []uint64

	stats BTBStats
}

// NewBTB creates a BTB with the given geometry and replacement policy name.
func NewBTB(entries, associativity, stride int, policyName string) (*BTB, error) {
	if associativity <= 0 || entries <= 0 || entries%associativity != 0 {
		return nil, fmt.Errorf("btb: %d entries cannot be split into %d ways",
			entries, associativity)
	}

	numSets := entries / associativity

	policy, err := replacement.NewPerSet(policyName, numSets, associativity)
	if err != nil {
		return nil, fmt.Errorf("btb: %w", err)
	}

	return &BTB{
		numWays:   associativity,
		stride:    uint64(stride),
		directory: akitacache.NewDirectory(numSets, associativity, stride, policy),
		policy:    policy,
		targets:   make([]uint64, entries),
	}, nil
}

// Policy returns the per-set replacement state.
func (b *BTB) Policy() *replacement.PerSet {
	return b.policy
}

// Stats returns BTB statistics.
func (b *BTB) Stats() BTBStats {
	return b.stats
}

func (b *BTB) slot(block *akitacache.Block) int {
	return block.SetID*b.numWays + block.WayID
}

func (b *BTB) align(pc uint64) uint64 {
	return pc / b.stride * b.stride
}

// Lookup returns the stored target for pc.
func (b *BTB) Lookup(pc uint64) (uint64, bool) {
	b.stats.Lookups++

	block := b.directory.Lookup(0, b.align(pc))
	if block == nil || !block.IsValid {
		b.stats.Misses++
		return 0, false
	}

	b.stats.Hits++
	b.policy.Access(block)

	return b.targets[b.slot(block)], true
}

// Insert records target for pc, evicting a victim if the set is full.
func (b *BTB) Insert(pc, target uint64) {
	addr := b.align(pc)

	block := b.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		block = b.directory.FindVictim(addr)
		if block.IsValid {
			b.stats.Evictions++
		}

		block.Tag = addr
		block.IsValid = true
		b.stats.Inserts++
	}

	b.targets[b.slot(block)] = target
	b.policy.Access(block)
}

// Invalidate removes pc's entry if present.
func (b *BTB) Invalidate(pc uint64) {
	block := b.directory.Lookup(0, b.align(pc))
	if block == nil || !block.IsValid {
		return
	}

	block.IsValid = false
	b.targets[b.slot(block)] = 0
	b.policy.Invalidate(block)
}

// Reset clears all entries and statistics.
func (b *BTB) Reset() {
	b.directory.Reset()
	b.policy.Reset()
	for i := range b.targets {
		b.targets[i] = 0
	}
	b.stats = BTBStats{}
}
