package bpu

import "fmt"

// Kind classifies the branch a request is made for.
type Kind uint8

// Branch kinds.
const (
	Conditional Kind = iota
	Jump
	Call
	Return
)

func (k Kind) String() string {
	switch k {
	case Conditional:
		return "conditional"
	case Jump:
		return "jump"
	case Call:
		return "call"
	case Return:
		return "return"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "conditional", "":
		return Conditional, nil
	case "jump":
		return Jump, nil
	case "call":
		return Call, nil
	case "return":
		return Return, nil
	default:
		return 0, fmt.Errorf("unknown branch kind %q", s)
	}
}

// Source identifies which structure produced a prediction.
type Source uint8

// Prediction sources.
const (
	SourceBimodal Source = iota
	SourceTagged
	SourceBTB
	SourceRAS
	SourceStatic
)

func (s Source) String() string {
	switch s {
	case SourceBimodal:
		return "bimodal"
	case SourceTagged:
		return "tagged"
	case SourceBTB:
		return "btb"
	case SourceRAS:
		return "ras"
	case SourceStatic:
		return "static"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// Confidence of a prediction.
type Confidence uint8

// Confidence levels.
const (
	Weak Confidence = iota
	Strong
)

// State is the position of a request in the unit.
type State uint8

// Request states.
const (
	Queued State = iota
	Predicted
	Sent
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Predicted:
		return "predicted"
	case Sent:
		return "sent"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Request asks for a prediction of the branch at PC.
type Request struct {
	PC    uint64
	SeqID uint64
	Kind  Kind
}

// Output is a prediction returned to Fetch.
type Output struct {
	SeqID uint64
	PC    uint64

	Taken       bool
	Target      uint64
	TargetKnown bool

	Source Source
	// Component is the tagged component index when Source is SourceTagged,
	// and -1 otherwise.
	Component  int
	Confidence Confidence
}

// Update reports the resolved outcome of a predicted branch.
type Update struct {
	SeqID  uint64
	PC     uint64
	Kind   Kind
	Taken  bool
	Target uint64
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k > Return {
		return nil, fmt.Errorf("unknown branch kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed

	return nil
}
