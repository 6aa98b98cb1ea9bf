// Command benchmark runs the bpsim workload harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as a JSON report
//	-core       Run only the quick core workloads
//	-config     Path to a JSON or YAML configuration file
//	-no-icache  Disable instruction cache simulation
//
// Example:
//
//	# Run all workloads with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// The exit status is non-zero if any workload misses its accuracy target or
// fails to complete.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/bpsim/benchmarks"
	"github.com/sarchlab/bpsim/timing/config"
)

func main() {
	// Parse flags
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as a JSON report")
	coreOnly := flag.Bool("core", false, "Run only the core workloads")
	configPath := flag.String("config", "", "Path to a JSON or YAML configuration file")
	noICache := flag.Bool("no-icache", false, "Disable instruction cache simulation")
	flag.Parse()

	// Configure harness
	hc := benchmarks.DefaultConfig()
	hc.EnableICache = !*noICache
	hc.Output = os.Stdout

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		hc.Config = cfg
	}

	// Create harness and add benchmarks
	harness := benchmarks.NewHarness(hc)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetWorkloads())
	}

	// Print configuration
	if !*csvOutput && !*jsonOutput {
		fmt.Println("bpsim Benchmark Harness")
		fmt.Println("=======================")
		fmt.Printf("I-Cache: %v\n", hc.EnableICache)
		fmt.Println("")
	}

	// Run benchmarks
	results := harness.RunAll()

	// Output results
	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing results: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		fmt.Println("=== Expected characteristics ===")
		fmt.Println("- loop_4, loop_24: tagged components learn the loop exit")
		fmt.Println("- alternating: history-indexed tables beat the bimodal table")
		fmt.Println("- call_return: return stack predicts every return")
		fmt.Println("- btb_pressure: target mispredictions from BTB evictions")
		fmt.Println("- backpressure: cycles grow under a single credit, accuracy holds")
	}

	os.Exit(benchmarks.ExitStatus(results))
}
