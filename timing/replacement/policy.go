// Package replacement provides cache replacement policies.
//
// A Policy tracks the recency of the ways of one cache set and nominates a
// victim when the set needs room. The set of policies is closed: LRU,
// TreePLRU, and MRU. Policies are created by name through Create.
//
// MRU is not a separate algorithm. It uses the LRU structure, and the cache
// controller inverts which touch it calls on an access (see TouchOnAccess).
// The policy itself does not know it is being used as MRU beyond reporting
// its Kind.
package replacement

import (
	"errors"
	"fmt"
)

// Kind identifies a replacement policy variant.
type Kind int

// Policy kinds.
const (
	KindLRU Kind = iota
	KindTreePLRU
	KindMRU
)

// Policy names accepted by Create.
const (
	NameLRU      = "LRU"
	NameTreePLRU = "TreePLRU"
	NameMRU      = "MRU"
)

// String returns the name of the kind, as accepted by Create.
func (k Kind) String() string {
	switch k {
	case KindLRU:
		return NameLRU
	case KindTreePLRU:
		return NameTreePLRU
	case KindMRU:
		return NameMRU
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrUnrecognizedPolicy is matched by errors returned for unknown names.
var ErrUnrecognizedPolicy = errors.New("unrecognized replacement policy")

// ErrInvalidWays is matched by errors returned for unusable way counts.
var ErrInvalidWays = errors.New("invalid number of ways")

// UnrecognizedPolicyError names a policy string that Create does not know.
type UnrecognizedPolicyError struct {
	Name string
}

func (e *UnrecognizedPolicyError) Error() string {
	return fmt.Sprintf("%v %q (want %s, %s or %s)",
		ErrUnrecognizedPolicy, e.Name, NameTreePLRU, NameLRU, NameMRU)
}

// Unwrap allows errors.Is(err, ErrUnrecognizedPolicy).
func (e *UnrecognizedPolicyError) Unwrap() error {
	return ErrUnrecognizedPolicy
}

// InvalidWaysError reports a way count a policy cannot be built with.
type InvalidWaysError struct {
	Policy  string
	NumWays int
	Reason  string
}

func (e *InvalidWaysError) Error() string {
	return fmt.Sprintf("%s: %v %d: %s",
		e.Policy, ErrInvalidWays, e.NumWays, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidWays).
func (e *InvalidWaysError) Unwrap() error {
	return ErrInvalidWays
}

// VictimError describes a policy state that nominated a way outside the set.
// It is raised with panic.
type VictimError struct {
	Policy  string
	Victim  int
	NumWays int
}

func (e *VictimError) Error() string {
	return fmt.Sprintf("%s: victim %d outside [0, %d)",
		e.Policy, e.Victim, e.NumWays)
}

// A Policy tracks recency for the ways of a single cache set.
type Policy interface {
	// Kind reports the variant.
	Kind() Kind

	// NumWays returns the number of ways managed.
	NumWays() int

	// TouchMostRecentlyUsed marks way as the most recently used.
	TouchMostRecentlyUsed(way int)

	// TouchLeastRecentlyUsed marks way as the least recently used.
	TouchLeastRecentlyUsed(way int)

	// SelectVictim returns the way to evict, always in [0, NumWays()).
	SelectVictim() int

	// Reset restores the state the policy had when created.
	Reset()

	sealed()
}

// Create builds a policy by name. Recognized names are "TreePLRU", "LRU" and
// "MRU". Unknown names fail with *UnrecognizedPolicyError.
func Create(policyName string, numWays int) (Policy, error) {
	kind, err := ParseKind(policyName)
	if err != nil {
		return nil, err
	}

	return New(kind, numWays)
}

// ParseKind maps a policy name to its kind.
func ParseKind(policyName string) (Kind, error) {
	switch policyName {
	case NameTreePLRU:
		return KindTreePLRU, nil
	case NameLRU:
		return KindLRU, nil
	case NameMRU:
		return KindMRU, nil
	default:
		return 0, &UnrecognizedPolicyError{Name: policyName}
	}
}

// New builds a policy of the given kind.
func New(kind Kind, numWays int) (Policy, error) {
	if numWays <= 0 {
		return nil, &InvalidWaysError{
			Policy:  kind.String(),
			NumWays: numWays,
			Reason:  "must be positive",
		}
	}

	switch kind {
	case KindLRU, KindMRU:
		return newLRU(kind, numWays), nil
	case KindTreePLRU:
		if numWays&(numWays-1) != 0 {
			return nil, &InvalidWaysError{
				Policy:  kind.String(),
				NumWays: numWays,
				Reason:  "must be a power of two",
			}
		}

		return newTreePLRU(numWays), nil
	default:
		return nil, &UnrecognizedPolicyError{Name: kind.String()}
	}
}

// TouchOnAccess applies the controller's access discipline: an LRU or
// TreePLRU set promotes the accessed way to most recently used, while an MRU
// set demotes it to least recently used so that the next victim is the way
// touched last.
func TouchOnAccess(p Policy, way int) {
	if p.Kind() == KindMRU {
		p.TouchLeastRecentlyUsed(way)
		return
	}

	p.TouchMostRecentlyUsed(way)
}

// TouchOnInvalidate makes an invalidated way the next victim.
func TouchOnInvalidate(p Policy, way int) {
	p.TouchLeastRecentlyUsed(way)
}

func checkWay(p Policy, way int) {
	if way < 0 || way >= p.NumWays() {
		panic(fmt.Sprintf("%s: way %d outside [0, %d)",
			p.Kind(), way, p.NumWays()))
	}
}
