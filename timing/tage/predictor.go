package tage

import "fmt"

// NoComponent marks a lookup served by the bimodal table.
const NoComponent = -1

// Lookup is the result of a prediction. It carries the indices and tags
// computed from the history at lookup time, so a later Update trains the
// same entries even after the history has moved on.
type Lookup struct {
	PC uint64

	// Taken is the final prediction.
	Taken bool
	// Strong reports whether the providing counter is saturated away from
	// its weak states.
	Strong bool

	// Provider is the index of the longest matching component, or
	// NoComponent when the bimodal table provided.
	Provider int
	// ProviderTaken is what the provider predicted.
	ProviderTaken bool

	// Alt is the next matching component below Provider, or NoComponent.
	Alt int
	// AltTaken is the alternate prediction (bimodal when Alt is
	// NoComponent).
	AltTaken bool

	indices []uint32
	tags    []uint16
}

// Stats holds predictor activity counters.
type Stats struct {
	Lookups            uint64
	BimodalProvided    uint64
	ComponentProvided  []uint64
	Updates            uint64
	Allocations        uint64
	AllocationFailures uint64
	UsefulResets       uint64
}

// Predictor combines the bimodal table with the tagged components.
type Predictor struct {
	bimodal    *Bimodal
	components []*Component
	history    *History

	usefulResetPeriod uint64

	stats Stats
}

// NewPredictor builds a predictor whose history register holds historySize
// bits. historySize must cover the longest component history.
func NewPredictor(cfg Config, historySize int) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TAGE config: %w", err)
	}

	if longest := cfg.MaxHistoryLength(); historySize < longest {
		return nil, fmt.Errorf(
			"history size %d is shorter than the longest component history %d",
			historySize, longest)
	}

	p := &Predictor{
		bimodal:           NewBimodal(cfg.BimodalSize, cfg.BimodalCtrBits),
		history:           NewHistory(historySize),
		usefulResetPeriod: cfg.UsefulResetPeriod,
	}

	for _, cc := range cfg.Components {
		p.components = append(p.components, NewComponent(cc))
	}

	p.stats.ComponentProvided = make([]uint64, len(p.components))

	return p, nil
}

// Bimodal returns the base table.
func (p *Predictor) Bimodal() *Bimodal {
	return p.bimodal
}

// Component returns tagged component i, shortest history first.
func (p *Predictor) Component(i int) *Component {
	return p.components[i]
}

// NumComponents returns the number of tagged components.
func (p *Predictor) NumComponents() int {
	return len(p.components)
}

// History returns the global history register.
func (p *Predictor) History() *History {
	return p.history
}

// Lookup predicts the branch at pc. The bimodal table gives the default
// prediction; the longest-history component whose tag matches overrides it.
func (p *Predictor) Lookup(pc uint64) Lookup {
	l := p.Peek(pc)

	p.stats.Lookups++
	if l.Provider == NoComponent {
		p.stats.BimodalProvided++
	} else {
		p.stats.ComponentProvided[l.Provider]++
	}

	return l
}

// Peek computes the same result as Lookup without counting it as a
// prediction.
func (p *Predictor) Peek(pc uint64) Lookup {
	l := Lookup{
		PC:       pc,
		Provider: NoComponent,
		Alt:      NoComponent,
		indices:  make([]uint32, len(p.components)),
		tags:     make([]uint16, len(p.components)),
	}

	for i, c := range p.components {
		l.indices[i] = c.Index(pc, p.history)
		l.tags[i] = c.Tag(pc, p.history)
	}

	l.AltTaken = p.bimodal.Predict(pc)
	l.Taken = l.AltTaken
	l.ProviderTaken = l.AltTaken
	l.Strong = p.bimodal.Strong(pc)

	for i := len(p.components) - 1; i >= 0; i-- {
		e, ok := p.components[i].Match(l.indices[i], l.tags[i])
		if !ok {
			continue
		}

		if l.Provider == NoComponent {
			l.Provider = i
			l.ProviderTaken = e.Taken()
			l.Taken = l.ProviderTaken
			l.Strong = p.components[i].Strong(e)

			continue
		}

		l.Alt = i
		l.AltTaken = e.Taken()

		break
	}

	return l
}

// Update trains the tables with the resolved outcome of a lookup. It does
// not touch the history; call UpdateHistory for that.
func (p *Predictor) Update(l Lookup, taken bool) {
	p.stats.Updates++

	if l.Provider == NoComponent {
		p.bimodal.Update(l.PC, taken)
	} else {
		p.updateProvider(l, taken)
	}

	if l.Taken != taken {
		p.allocate(l, taken)
	}

	if p.usefulResetPeriod > 0 && p.stats.Updates%p.usefulResetPeriod == 0 {
		for _, c := range p.components {
			c.AgeUseful()
		}
		p.stats.UsefulResets++
	}
}

func (p *Predictor) updateProvider(l Lookup, taken bool) {
	c := p.components[l.Provider]

	// The entry may have been reallocated since the lookup.
	e, ok := c.Match(l.indices[l.Provider], l.tags[l.Provider])
	if !ok {
		p.bimodal.Update(l.PC, taken)
		return
	}

	if l.ProviderTaken != l.AltTaken {
		if l.ProviderTaken == taken {
			c.IncrementUseful(e)
		} else {
			c.DecrementUseful(e)
		}
	}

	c.UpdateCounter(e, taken)
}

// allocate claims one entry in a component longer than the provider. The
// first candidate with zero usefulness wins; if every candidate is useful,
// they all lose one usefulness step instead.
func (p *Predictor) allocate(l Lookup, taken bool) {
	start := l.Provider + 1
	if start >= len(p.components) {
		return
	}

	for i := start; i < len(p.components); i++ {
		c := p.components[i]
		if c.Entry(l.indices[i]).U == 0 {
			c.Allocate(l.indices[i], l.tags[i], taken)
			p.stats.Allocations++

			return
		}
	}

	for i := start; i < len(p.components); i++ {
		c := p.components[i]
		c.DecrementUseful(c.Entry(l.indices[i]))
	}
	p.stats.AllocationFailures++
}

// UpdateHistory shifts a resolved outcome into the global history.
func (p *Predictor) UpdateHistory(taken bool) {
	p.history.Push(taken)
}

// Stats returns a copy of the activity counters.
func (p *Predictor) Stats() Stats {
	s := p.stats
	s.ComponentProvided = append([]uint64(nil), p.stats.ComponentProvided...)

	return s
}

// Reset clears all tables, the history and the statistics.
func (p *Predictor) Reset() {
	p.bimodal.Reset()
	for _, c := range p.components {
		c.Reset()
	}
	p.history.Reset()
	p.stats = Stats{ComponentProvided: make([]uint64, len(p.components))}
}
