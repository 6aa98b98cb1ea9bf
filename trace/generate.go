package trace

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/bpsim/timing/bpu"
)

// Loop returns the backward branch of a counted loop: taken trip-1 times and
// then not taken, repeated for the given number of iterations.
func Loop(pc, target uint64, trip, iterations int) *Trace {
	records := make([]Record, 0, trip*iterations)

	for it := 0; it < iterations; it++ {
		for i := 0; i < trip; i++ {
			records = append(records, Record{
				PC:     pc,
				Kind:   bpu.Conditional,
				Taken:  i < trip-1,
				Target: target,
			})
		}
	}

	return New(fmt.Sprintf("loop_%d", trip), records)
}

// Alternating returns a branch that flips direction every time.
func Alternating(pc, target uint64, n int) *Trace {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{PC: pc, Kind: bpu.Conditional, Taken: i%2 == 0, Target: target}
	}

	return New("alternating", records)
}

// Biased returns n independent branches, each with its own fixed taken
// probability, visited round-robin. The same seed gives the same trace.
func Biased(seed int64, n, branches int) *Trace {
	rng := rand.New(rand.NewSource(seed))

	bias := make([]float64, branches)
	for i := range bias {
		bias[i] = rng.Float64()
	}

	records := make([]Record, n)
	for i := range records {
		b := i % branches
		pc := uint64(0x10000 + b*0x40)
		records[i] = Record{
			PC:     pc,
			Kind:   bpu.Conditional,
			Taken:  rng.Float64() < bias[b],
			Target: pc - 0x20,
		}
	}

	return New("biased", records)
}

// Random returns n branches drawn uniformly from a pool of branch PCs with
// random kinds and outcomes. Calls and returns are kept balanced.
func Random(seed int64, n, branches int) *Trace {
	rng := rand.New(rand.NewSource(seed))

	var (
		records []Record
		stack   []uint64
	)

	for len(records) < n {
		pc := uint64(0x20000 + rng.Intn(branches)*0x10)

		switch r := rng.Intn(10); {
		case r == 0 && len(stack) < 8:
			target := uint64(0x80000 + rng.Intn(4)*0x1000)
			records = append(records, Record{PC: pc, Kind: bpu.Call, Taken: true, Target: target})
			stack = append(stack, pc+4)
		case r == 1 && len(stack) > 0:
			ret := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			records = append(records, Record{PC: pc | 0x8, Kind: bpu.Return, Taken: true, Target: ret})
		case r == 2:
			records = append(records, Record{PC: pc, Kind: bpu.Jump, Taken: true, Target: pc + 0x100})
		default:
			records = append(records, Record{
				PC:     pc,
				Kind:   bpu.Conditional,
				Taken:  rng.Intn(2) == 0,
				Target: pc + 0x40,
			})
		}
	}

	return New("random", records)
}

// CallReturn returns depth nested calls followed by the matching returns,
// repeated the given number of times.
func CallReturn(base uint64, depth, repeat int) *Trace {
	var records []Record

	for r := 0; r < repeat; r++ {
		for d := 0; d < depth; d++ {
			records = append(records, Record{
				PC:     callSite(base, d),
				Kind:   bpu.Call,
				Taken:  true,
				Target: function(base, d),
			})
		}

		for d := depth - 1; d >= 0; d-- {
			records = append(records, Record{
				PC:     function(base, d) + 0x3c,
				Kind:   bpu.Return,
				Taken:  true,
				Target: callSite(base, d) + 4,
			})
		}
	}

	return New(fmt.Sprintf("call_return_%d", depth), records)
}

func callSite(base uint64, depth int) uint64 {
	if depth == 0 {
		return base
	}
	return function(base, depth-1) + 0x10
}

func function(base uint64, depth int) uint64 {
	return base + uint64(depth+1)*0x1000
}

// Concat joins traces into a new one.
func Concat(name string, traces ...*Trace) *Trace {
	var records []Record
	for _, t := range traces {
		records = append(records, t.Records...)
	}

	return New(name, records)
}
