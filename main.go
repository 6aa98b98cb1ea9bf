// Package main provides the entry point for bpsim.
// bpsim is a cycle-level model of a credit-gated TAGE branch prediction unit.
//
// For the full CLI, use: go run ./cmd/bpsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("bpsim - Branch Prediction Unit Simulator")
	fmt.Println("")
	fmt.Println("Usage: bpsim [options] (-testname <name> | -trace <file>)")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -testname     Built-in workload to run (see -list)")
	fmt.Println("  -trace        Path to a JSON or YAML branch trace")
	fmt.Println("  -config       Path to a JSON or YAML configuration file")
	fmt.Println("  -dump-config  Write the effective configuration and exit")
	fmt.Println("  -list         List the built-in workloads")
	fmt.Println("  -json         Output results as JSON")
	fmt.Println("  -v            Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/bpsim' for the full CLI.")
	fmt.Println("Run 'go run ./cmd/benchmark' for the workload harness.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/bpsim' instead.")
	}
}
