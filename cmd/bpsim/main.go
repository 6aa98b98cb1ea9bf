// Package main provides the entry point for bpsim.
// bpsim is a cycle-level model of a credit-gated branch prediction unit
// driven by branch traces.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/bpsim/benchmarks"
	"github.com/sarchlab/bpsim/timing/config"
	"github.com/sarchlab/bpsim/trace"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func newLogger(w io.Writer, verbose bool) logr.Logger {
	verbosity := 0
	if verbose {
		verbosity = 1
	}

	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bpsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	testName := fs.String("testname", "", "Name of the built-in workload to run")
	tracePath := fs.String("trace", "", "Path to a JSON or YAML branch trace")
	configPath := fs.String("config", "", "Path to a JSON or YAML configuration file")
	dumpConfig := fs.String("dump-config", "", "Write the effective configuration to this path and exit")
	list := fs.Bool("list", false, "List the built-in workloads and exit")
	jsonOutput := fs.Bool("json", false, "Output results in JSON format")
	noICache := fs.Bool("no-icache", false, "Disable instruction cache simulation")
	verbose := fs.Bool("v", false, "Verbose output")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *list {
		for _, b := range benchmarks.GetWorkloads() {
			_, _ = fmt.Fprintf(stdout, "%-14s %s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	if *dumpConfig != "" {
		if err := cfg.Save(*dumpConfig); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error writing config: %v\n", err)
			return 1
		}
		return 0
	}

	var workloads []benchmarks.Benchmark
	switch {
	case *testName != "" && *tracePath != "":
		_, _ = fmt.Fprintln(stderr, "Only one of -testname and -trace may be given")
		return 1
	case *testName != "":
		b, ok := benchmarks.Find(*testName)
		if !ok {
			_, _ = fmt.Fprintf(stderr, "Unknown workload %q (available: %s)\n",
				*testName, strings.Join(benchmarks.Names(), ", "))
			return 1
		}
		workloads = append(workloads, b)
	case *tracePath != "":
		t, err := trace.Load(*tracePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading trace: %v\n", err)
			return 1
		}
		workloads = append(workloads, benchmarks.FromTrace(t))
	default:
		_, _ = fmt.Fprintf(stderr, "Usage: bpsim [options] (-testname <name> | -trace <file>)\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		return 1
	}

	hc := benchmarks.DefaultConfig()
	hc.Config = cfg
	hc.EnableICache = cfg.ICache.Enabled && !*noICache
	hc.Output = stdout
	hc.Verbose = *verbose
	hc.Logger = newLogger(stderr, *verbose).WithName("bpsim")

	harness := benchmarks.NewHarness(hc)
	harness.AddBenchmarks(workloads)
	results := harness.RunAll()

	if *jsonOutput {
		if err := harness.PrintJSON(results); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error writing results: %v\n", err)
			return 1
		}
	} else {
		harness.PrintResults(results)
	}

	return benchmarks.ExitStatus(results)
}
