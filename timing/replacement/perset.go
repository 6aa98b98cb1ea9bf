package replacement

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// PerSet owns one policy per cache set and plugs them into an akita
// directory as its victim finder. Policies are never shared between sets.
type PerSet struct {
	kind     Kind
	numWays  int
	policies []Policy
}

// NewPerSet creates numSets policies of the named kind through Create.
func NewPerSet(policyName string, numSets, numWays int) (*PerSet, error) {
	if numSets <= 0 {
		return nil, fmt.Errorf("replacement: number of sets must be positive, got %d", numSets)
	}

	s := &PerSet{
		numWays:  numWays,
		policies: make([]Policy, numSets),
	}

	for i := range s.policies {
		p, err := Create(policyName, numWays)
		if err != nil {
			return nil, err
		}

		s.policies[i] = p
	}

	s.kind = s.policies[0].Kind()

	return s, nil
}

// Kind returns the kind shared by all sets.
func (s *PerSet) Kind() Kind {
	return s.kind
}

// NumSets returns the number of sets.
func (s *PerSet) NumSets() int {
	return len(s.policies)
}

// NumWays returns the associativity.
func (s *PerSet) NumWays() int {
	return s.numWays
}

// Policy returns the policy of a set.
func (s *PerSet) Policy(setID int) Policy {
	return s.policies[setID]
}

// FindVictim implements akita's cache.VictimFinder. An invalid, unlocked
// block is taken first; otherwise the set's policy decides.
func (s *PerSet) FindVictim(set *akitacache.Set) *akitacache.Block {
	for _, block := range set.Blocks {
		if !block.IsValid && !block.IsLocked {
			return block
		}
	}

	p := s.policies[set.Blocks[0].SetID]
	victim := p.SelectVictim()

	if victim < 0 || victim >= len(set.Blocks) {
		panic(&VictimError{
			Policy:  p.Kind().String(),
			Victim:  victim,
			NumWays: len(set.Blocks),
		})
	}

	return set.Blocks[victim]
}

// Access records a hit or fill of block.
func (s *PerSet) Access(block *akitacache.Block) {
	TouchOnAccess(s.policies[block.SetID], block.WayID)
}

// Invalidate records that block no longer holds data.
func (s *PerSet) Invalidate(block *akitacache.Block) {
	TouchOnInvalidate(s.policies[block.SetID], block.WayID)
}

// Reset resets every set's policy.
func (s *PerSet) Reset() {
	for _, p := range s.policies {
		p.Reset()
	}
}
