// Package config aggregates the construction-time configuration of a
// simulation and loads it from JSON or YAML files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/cache"
	"github.com/sarchlab/bpsim/timing/fetch"
	"github.com/sarchlab/bpsim/timing/ftq"
)

// ICacheConfig configures the optional instruction cache.
type ICacheConfig struct {
	// Enabled routes instruction fetch through the cache. Default: false.
	Enabled bool `json:"enabled" yaml:"enabled"`

	cache.Config `yaml:",inline"`
}

// SimConfig bounds a run.
type SimConfig struct {
	// MaxCycles stops the run after this many cycles. 0 means no limit.
	MaxCycles uint64 `json:"max_cycles" yaml:"max_cycles"`
	// MaxIdleCycles is how many consecutive cycles without progress are
	// reported as a deadlock. Default: 1000.
	MaxIdleCycles uint64 `json:"max_idle_cycles" yaml:"max_idle_cycles"`
}

// Config holds the whole simulation configuration.
type Config struct {
	BPU    bpu.Config   `json:"bpu" yaml:"bpu"`
	FTQ    ftq.Config   `json:"ftq" yaml:"ftq"`
	Fetch  fetch.Config `json:"fetch" yaml:"fetch"`
	ICache ICacheConfig `json:"icache" yaml:"icache"`
	Sim    SimConfig    `json:"sim" yaml:"sim"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		BPU:   bpu.DefaultConfig(),
		FTQ:   ftq.DefaultConfig(),
		Fetch: fetch.DefaultConfig(),
		ICache: ICacheConfig{
			Config: cache.DefaultL1IConfig(),
		},
		Sim: SimConfig{
			MaxIdleCycles: 1000,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a Config from a JSON or YAML file, chosen by extension. Keys
// missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()

	// Components listed in the file replace the default list as a whole,
	// with no keys taken from the defaults.
	defaultComponents := config.BPU.TAGE.Components
	config.BPU.TAGE.Components = nil

	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.BPU.TAGE.Components == nil {
		config.BPU.TAGE.Components = defaultComponents
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// Save writes the Config to a JSON or YAML file, chosen by extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)

	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.BPU.Validate(); err != nil {
		return fmt.Errorf("bpu: %w", err)
	}
	if err := c.FTQ.Validate(); err != nil {
		return fmt.Errorf("ftq: %w", err)
	}
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if c.ICache.Enabled {
		if err := c.ICache.Config.Validate(); err != nil {
			return fmt.Errorf("icache: %w", err)
		}
	}
	if c.Sim.MaxIdleCycles == 0 {
		return fmt.Errorf("sim: max_idle_cycles must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.BPU = c.BPU.Clone()

	return &clone
}
