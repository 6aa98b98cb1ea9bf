package benchmarks

import (
	"sort"

	"github.com/sarchlab/bpsim/timing/config"
	"github.com/sarchlab/bpsim/trace"
)

// GetWorkloads returns the standard set of branch prediction workloads.
// Each workload targets a specific predictor structure.
func GetWorkloads() []Benchmark {
	return []Benchmark{
		loopShort(),
		loopLong(),
		alternating(),
		callReturn(),
		biased(),
		random(),
		mixed(),
		btbPressure(),
		backpressure(),
	}
}

// GetCoreBenchmarks returns a minimal set of workloads for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopShort(),
		callReturn(),
		random(),
	}
}

// Find returns the workload with the given name.
func Find(name string) (Benchmark, bool) {
	for _, b := range GetWorkloads() {
		if b.Name == name {
			return b, true
		}
	}
	return Benchmark{}, false
}

// Names returns the names of all workloads, sorted.
func Names() []string {
	var names []string
	for _, b := range GetWorkloads() {
		names = append(names, b.Name)
	}
	sort.Strings(names)

	return names
}

// FromTrace wraps a loaded trace as a workload with no accuracy requirement.
func FromTrace(t *trace.Trace) Benchmark {
	return Benchmark{
		Name:        t.Name,
		Description: "trace file",
		Trace: func() *trace.Trace {
			return trace.New(t.Name, t.Records)
		},
	}
}

func loopShort() Benchmark {
	return Benchmark{
		Name:        "loop_4",
		Description: "backward branch with trip count 4 - needs global history to catch the exit",
		Trace: func() *trace.Trace {
			return trace.Loop(0x1000, 0xf00, 4, 500)
		},
		MinAccuracy: 0.9,
	}
}

func loopLong() Benchmark {
	return Benchmark{
		Name:        "loop_24",
		Description: "backward branch with trip count 24 - exercises the longer history components",
		Trace: func() *trace.Trace {
			return trace.Loop(0x1400, 0x1300, 24, 200)
		},
		MinAccuracy: 0.9,
	}
}

func alternating() Benchmark {
	return Benchmark{
		Name:        "alternating",
		Description: "one branch flipping every execution - defeats the bimodal table alone",
		Trace: func() *trace.Trace {
			return trace.Alternating(0x2000, 0x1f00, 2000)
		},
		MinAccuracy: 0.8,
	}
}

func callReturn() Benchmark {
	return Benchmark{
		Name:        "call_return",
		Description: "4-deep call chains - measures return stack and BTB target prediction",
		Trace: func() *trace.Trace {
			return trace.CallReturn(0x4000, 4, 20)
		},
		MinAccuracy: 0.9,
	}
}

func biased() Benchmark {
	return Benchmark{
		Name:        "biased",
		Description: "64 independently biased branches - bimodal steady state",
		Trace: func() *trace.Trace {
			return trace.Biased(1, 5000, 64)
		},
	}
}

func random() Benchmark {
	return Benchmark{
		Name:        "random",
		Description: "uniformly random kinds and outcomes - lower bound on accuracy",
		Trace: func() *trace.Trace {
			return trace.Random(7, 5000, 256)
		},
	}
}

func mixed() Benchmark {
	return Benchmark{
		Name:        "mixed",
		Description: "loops, calls and biased branches interleaved in phases",
		Trace: func() *trace.Trace {
			return trace.Concat("mixed",
				trace.Loop(0x1000, 0xf00, 8, 100),
				trace.CallReturn(0x4000, 3, 30),
				trace.Biased(3, 1000, 16),
				trace.Loop(0x1000, 0xf00, 8, 100),
			)
		},
		Warmup: true,
	}
}

func btbPressure() Benchmark {
	return Benchmark{
		Name:        "btb_pressure",
		Description: "more distinct jump sites than a small BTB holds - measures replacement",
		Trace: func() *trace.Trace {
			return trace.Random(11, 4000, 1024)
		},
		Configure: func(cfg *config.Config) {
			cfg.BPU.BTBEntries = 256
			cfg.BPU.BTBAssociativity = 4
		},
	}
}

func backpressure() Benchmark {
	return Benchmark{
		Name:        "backpressure",
		Description: "single output credit and request credit - throughput under credit starvation",
		Trace: func() *trace.Trace {
			return trace.Loop(0x1000, 0xf00, 4, 100)
		},
		Configure: func(cfg *config.Config) {
			cfg.BPU.InitialRequestCredits = 1
			cfg.BPU.RequestQueueDepth = 1
			cfg.Fetch.InitialOutputCredits = 1
			cfg.Fetch.OutputQueueDepth = 1
		},
		MinAccuracy: 0.7,
	}
}
