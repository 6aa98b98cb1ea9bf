// Package benchmarks provides named branch prediction workloads and the
// harness that runs, verifies and reports them.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/sarchlab/bpsim/timing/config"
	"github.com/sarchlab/bpsim/timing/core"
	"github.com/sarchlab/bpsim/trace"
)

// Version is reported in JSON results.
const Version = "0.1.0"

// Exit statuses of a benchmark run.
const (
	StatusPass  = 0
	StatusFail  = 1
	StatusError = 2
)

// BenchmarkResult holds the results for a single benchmark run.
type BenchmarkResult struct {
	// RunID identifies the harness run the result belongs to
	RunID string `json:"run_id"`

	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count of the measured region
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// Branches is the number of resolved branches
	Branches uint64 `json:"branches"`

	// Branch predictor stats
	Mispredictions          uint64  `json:"mispredictions"`
	DirectionMispredictions uint64  `json:"direction_mispredictions"`
	TargetMispredictions    uint64  `json:"target_mispredictions"`
	AccuracyPercent         float64 `json:"accuracy_percent"`
	TaggedPredictions       uint64  `json:"tagged_predictions"`
	BTBHits                 uint64  `json:"btb_hits"`
	BTBMisses               uint64  `json:"btb_misses"`

	// Credit protocol stats
	OutputStalls   uint64 `json:"output_stalls"`
	FTQFetchStalls uint64 `json:"ftq_fetch_stalls"`
	CreditStalls   uint64 `json:"credit_stalls"`

	// ICacheHits/Misses (if cache enabled)
	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`

	// Status is StatusPass when verification succeeded
	Status int `json:"status"`

	// Error explains a failed or aborted run
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken by the measured region
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the run verified.
func (r BenchmarkResult) Passed() bool {
	return r.Status == StatusPass
}

// Benchmark defines a single named workload.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Trace builds the branch trace to run
	Trace func() *trace.Trace

	// Configure adjusts the configuration before the run (optional)
	Configure func(cfg *config.Config)

	// Warmup preloads the instruction cache with the trace's code
	Warmup bool

	// MinAccuracy is the prediction accuracy, in [0, 1], verification
	// requires
	MinAccuracy float64
}

// Trigger brackets the measured region of a run, like a board's
// start/stop measurement pins.
type Trigger interface {
	Start(name string)
	Stop(name string)
}

type nopTrigger struct{}

func (nopTrigger) Start(string) {}
func (nopTrigger) Stop(string)  {}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Config is the simulation configuration each benchmark starts from
	Config *config.Config

	// EnableICache enables instruction cache simulation
	EnableICache bool

	// Trigger is signalled around each measured region
	Trigger Trigger

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives simulation traces
	Logger logr.Logger

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Config:       config.Default(),
		EnableICache: true,
		Trigger:      nopTrigger{},
		Output:       os.Stdout,
		Logger:       logr.Discard(),
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	runID      xid.ID
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(hc HarnessConfig) *Harness {
	if hc.Output == nil {
		hc.Output = os.Stdout
	}
	if hc.Config == nil {
		hc.Config = config.Default()
	}
	if hc.Trigger == nil {
		hc.Trigger = nopTrigger{}
	}

	return &Harness{
		config:     hc,
		runID:      xid.New(),
		benchmarks: []Benchmark{},
	}
}

// RunID returns the identifier stamped on every result of this harness.
func (h *Harness) RunID() string {
	return h.runID.String()
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		results = append(results, h.Run(bench))
	}

	return results
}

// Run executes one benchmark: build and configure the simulation, warm the
// instruction cache, trigger start, run, trigger stop, then verify.
func (h *Harness) Run(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		RunID:       h.RunID(),
		Name:        bench.Name,
		Description: bench.Description,
	}

	cfg := h.config.Config.Clone()
	cfg.ICache.Enabled = h.config.EnableICache
	if bench.Configure != nil {
		bench.Configure(cfg)
	}

	src := bench.Trace()

	c, err := core.New(cfg, src, core.WithLogger(h.config.Logger.WithName(bench.Name)))
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	if bench.Warmup && c.ICache != nil {
		for _, r := range src.Records {
			c.ICache.Read(r.PC, 4)
		}
		c.ICache.ResetStats()
	}

	h.config.Trigger.Start(bench.Name)
	start := time.Now()
	runErr := c.Run()
	result.WallTime = time.Since(start)
	h.config.Trigger.Stop(bench.Name)

	collect(&result, c.Stats())

	switch {
	case runErr != nil:
		result.Status = StatusError
		result.Error = runErr.Error()
	case result.AccuracyPercent < bench.MinAccuracy*100:
		result.Status = StatusFail
		result.Error = fmt.Sprintf("accuracy %.1f%% below required %.1f%%",
			result.AccuracyPercent, bench.MinAccuracy*100)
	default:
		result.Status = StatusPass
	}

	h.config.Logger.V(1).Info("benchmark done", "name", bench.Name,
		"status", result.Status, "cycles", result.SimulatedCycles)

	return result
}

func collect(result *BenchmarkResult, stats core.Stats) {
	result.SimulatedCycles = stats.Cycles
	result.Branches = stats.Fetch.Received
	result.Mispredictions = stats.Fetch.Mispredicted
	result.DirectionMispredictions = stats.Fetch.DirectionMispredicted
	result.TargetMispredictions = stats.Fetch.TargetMispredicted
	result.AccuracyPercent = stats.Fetch.Accuracy() * 100
	result.BTBHits = stats.BPU.BTB.Hits
	result.BTBMisses = stats.BPU.BTB.Misses
	result.OutputStalls = stats.BPU.OutputStalls
	result.FTQFetchStalls = stats.FTQ.FetchStalls
	result.CreditStalls = stats.Fetch.CreditStalls

	for _, n := range stats.BPU.TAGE.ComponentProvided {
		result.TaggedPredictions += n
	}

	if stats.ICache != nil {
		result.ICacheHits = stats.ICache.Hits
		result.ICacheMisses = stats.ICache.Misses
	}
}

// ExitStatus folds results into a process exit status: the worst status of
// any result.
func ExitStatus(results []BenchmarkResult) int {
	status := StatusPass
	for _, r := range results {
		if r.Status > status {
			status = r.Status
		}
	}
	return status
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== bpsim Benchmark Results ===")
	_, _ = fmt.Fprintf(h.config.Output, "Run: %s\n", h.RunID())
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Status: %s\n", statusText(r))
		_, _ = fmt.Fprintln(h.config.Output, "  --- Branch Predictor ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:  %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Branches:          %d\n", r.Branches)
		_, _ = fmt.Fprintf(h.config.Output, "  Mispredictions:    %d (direction %d, target %d)\n",
			r.Mispredictions, r.DirectionMispredictions, r.TargetMispredictions)
		_, _ = fmt.Fprintf(h.config.Output, "  Accuracy:          %.1f%%\n", r.AccuracyPercent)
		_, _ = fmt.Fprintf(h.config.Output, "  Tagged Provided:   %d\n", r.TaggedPredictions)
		_, _ = fmt.Fprintf(h.config.Output, "  BTB Hits/Misses:   %d/%d\n", r.BTBHits, r.BTBMisses)

		if h.config.Verbose {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Credits ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Output Stalls: %d\n", r.OutputStalls)
			_, _ = fmt.Fprintf(h.config.Output, "  FTQ Stalls:    %d\n", r.FTQFetchStalls)
			_, _ = fmt.Fprintf(h.config.Output, "  Credit Stalls: %d\n", r.CreditStalls)
		}

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.ICacheMisses)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

func statusText(r BenchmarkResult) string {
	switch r.Status {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL: " + r.Error
	default:
		return "ERROR: " + r.Error
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,branches,mispredictions,direction_mispredictions,target_mispredictions,accuracy,tagged,btb_hits,btb_misses,output_stalls,ftq_fetch_stalls,credit_stalls,icache_hits,icache_misses,status")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.Branches,
			r.Mispredictions,
			r.DirectionMispredictions,
			r.TargetMispredictions,
			r.AccuracyPercent,
			r.TaggedPredictions,
			r.BTBHits,
			r.BTBMisses,
			r.OutputStalls,
			r.FTQFetchStalls,
			r.CreditStalls,
			r.ICacheHits,
			r.ICacheMisses,
			r.Status,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`

	// Config is the simulation configuration benchmarks started from
	Config *config.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks     int           `json:"total_benchmarks"`
	Passed              int           `json:"passed"`
	TotalCycles         uint64        `json:"total_cycles"`
	TotalBranches       uint64        `json:"total_branches"`
	TotalMispredictions uint64        `json:"total_mispredictions"`
	AccuracyPercent     float64       `json:"accuracy_percent"`
	TotalWallTime       time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		if r.Passed() {
			summary.Passed++
		}
		summary.TotalCycles += r.SimulatedCycles
		summary.TotalBranches += r.Branches
		summary.TotalMispredictions += r.Mispredictions
		summary.TotalWallTime += r.WallTime
	}

	if summary.TotalBranches > 0 {
		summary.AccuracyPercent = 100 * (1 - float64(summary.TotalMispredictions)/
			float64(summary.TotalBranches))
	}

	cfg := h.config.Config.Clone()
	cfg.ICache.Enabled = h.config.EnableICache

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			RunID:     h.RunID(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config:    cfg,
		},
		Results: results,
		Summary: summary,
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
