// Package trace provides branch traces that drive the fetch model.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/bpsim/timing/bpu"
)

// Record is one resolved branch.
type Record struct {
	PC     uint64   `json:"pc" yaml:"pc"`
	Kind   bpu.Kind `json:"kind" yaml:"kind"`
	Taken  bool     `json:"taken" yaml:"taken"`
	Target uint64   `json:"target" yaml:"target"`
}

// Source supplies branch records in program order, indexed by sequence
// number.
type Source interface {
	// Len returns the total number of records.
	Len() int
	// At returns record i.
	At(i int) Record
}

// Trace is an in-memory Source.
type Trace struct {
	Name    string   `json:"name" yaml:"name"`
	Records []Record `json:"records" yaml:"records"`
}

// New creates a trace from records.
func New(name string, records []Record) *Trace {
	return &Trace{Name: name, Records: records}
}

// Len returns the number of records.
func (t *Trace) Len() int {
	return len(t.Records)
}

// At returns record i.
func (t *Trace) At(i int) Record {
	return t.Records[i]
}

// TakenCount returns the number of taken records.
func (t *Trace) TakenCount() int {
	n := 0
	for _, r := range t.Records {
		if r.Taken {
			n++
		}
	}
	return n
}

// Validate checks that every record is consistent.
func (t *Trace) Validate() error {
	for i, r := range t.Records {
		if r.Kind != bpu.Conditional && !r.Taken {
			return fmt.Errorf("record %d: %s branch at %#x must be taken", i, r.Kind, r.PC)
		}
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a trace from a .json, .yaml or .yml file.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	t := &Trace{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, t)
	} else {
		err = json.Unmarshal(data, t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace %s: %w", path, err)
	}

	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trace %s: %w", path, err)
	}

	return t, nil
}

// Save writes the trace, choosing the format from the file extension.
func (t *Trace) Save(path string) error {
	var (
		data []byte
		err  error
	)

	if isYAML(path) {
		data, err = yaml.Marshal(t)
	} else {
		data, err = json.MarshalIndent(t, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize trace: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}

	return nil
}
