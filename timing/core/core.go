// Package core builds and runs the fetch/branch-prediction model.
// It wires Fetch, the fetch target queue, the BPU and the optional
// instruction cache together through credit channels and steps them cycle by
// cycle.
package core

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/cache"
	"github.com/sarchlab/bpsim/timing/config"
	"github.com/sarchlab/bpsim/timing/credit"
	"github.com/sarchlab/bpsim/timing/fetch"
	"github.com/sarchlab/bpsim/timing/ftq"
	"github.com/sarchlab/bpsim/trace"
)

var (
	// ErrDeadlock is returned when no unit makes progress for
	// MaxIdleCycles consecutive cycles.
	ErrDeadlock = errors.New("core: deadlock")
	// ErrCycleLimit is returned when MaxCycles is reached before the trace
	// completes.
	ErrCycleLimit = errors.New("core: cycle limit reached")
)

// DeadlockError describes the state of a stuck simulation.
type DeadlockError struct {
	Cycle           uint64
	IdleCycles      uint64
	Inflight        int
	BPUBuffered     int
	RequestCredits  int
	OutputCredits   int
	PendingRequests int
	PendingOutputs  int
	FTQQueued       int
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf(
		"%v at cycle %d after %d idle cycles: inflight=%d bpu_buffered=%d "+
			"request_credits=%d output_credits=%d pending_requests=%d pending_outputs=%d "+
			"ftq_queued=%d",
		ErrDeadlock, e.Cycle, e.IdleCycles, e.Inflight, e.BPUBuffered,
		e.RequestCredits, e.OutputCredits, e.PendingRequests, e.PendingOutputs,
		e.FTQQueued)
}

func (e *DeadlockError) Unwrap() error {
	return ErrDeadlock
}

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// IdleCycles is the number of cycles in which no unit made progress.
	IdleCycles uint64

	BPU   bpu.Stats
	FTQ   ftq.Stats
	Fetch fetch.Stats
	// ICache is nil when the instruction cache is disabled.
	ICache *cache.Statistics

	Requests     credit.Stats
	Predictions  credit.Stats
	Outputs      credit.Stats
	FetchUpdates credit.Stats
	Updates      credit.Stats
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger handed to every unit and channel.
func WithLogger(logger logr.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithBacking sets the memory behind the instruction cache.
func WithBacking(backing cache.BackingStore) Option {
	return func(c *Core) {
		c.backing = backing
	}
}

// WithoutBootstrap skips the start-up credit grants. Without them no
// prediction can ever be delivered, which Run reports as a deadlock.
func WithoutBootstrap() Option {
	return func(c *Core) {
		c.skipBootstrap = true
	}
}

// Core owns one simulation: the channels, the units and the cycle counter.
type Core struct {
	cfg *config.Config

	// Requests carries Fetch to the BPU.
	Requests *credit.Channel[bpu.Request]

	// Predictions carries the BPU to the FTQ.
	Predictions *credit.Channel[bpu.Output]

	// Outputs carries the FTQ to Fetch.
	Outputs *credit.Channel[bpu.Output]

	// FetchUpdates carries Fetch to the FTQ, and Updates the FTQ to the BPU.
	FetchUpdates *credit.Channel[bpu.Update]
	Updates      *credit.Channel[bpu.Update]

	BPU    *bpu.BPU
	FTQ    *ftq.FTQ
	Fetch  *fetch.Fetch
	ICache *cache.Cache

	backing       cache.BackingStore
	skipBootstrap bool

	cycle     uint64
	idle      uint64
	totalIdle uint64
	started   bool
	halted    bool
	logger    logr.Logger
}

// New builds a core over src from cfg.
func New(cfg *config.Config, src trace.Source, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Core{
		cfg:    cfg.Clone(),
		logger: logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Requests = credit.New[bpu.Request]("requests", cfg.BPU.RequestQueueDepth,
		credit.WithLogger(c.logger.WithName("requests")))
	c.Predictions = credit.New[bpu.Output]("predictions", cfg.FTQ.Capacity,
		credit.WithLogger(c.logger.WithName("predictions")))
	c.Outputs = credit.New[bpu.Output]("outputs", cfg.Fetch.OutputQueueDepth,
		credit.WithLogger(c.logger.WithName("outputs")))
	c.FetchUpdates = credit.New[bpu.Update]("fetch-updates", cfg.FTQ.UpdateQueueDepth,
		credit.WithLogger(c.logger.WithName("fetch-updates")))
	c.Updates = credit.New[bpu.Update]("updates", cfg.BPU.UpdateQueueDepth,
		credit.WithLogger(c.logger.WithName("updates")))

	var err error
	c.BPU, err = bpu.New("bpu", cfg.BPU, c.Requests, c.Predictions,
		bpu.WithLogger(c.logger.WithName("bpu")),
		bpu.WithUpdateChannel(c.Updates))
	if err != nil {
		return nil, err
	}

	c.FTQ, err = ftq.New("ftq", cfg.FTQ, c.Predictions, c.Outputs,
		ftq.WithLogger(c.logger.WithName("ftq")),
		ftq.WithCreditPort(c.BPU),
		ftq.WithUpdateRelay(c.FetchUpdates, c.Updates))
	if err != nil {
		return nil, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithLogger(c.logger.WithName("fetch")),
		fetch.WithCreditPort(c.FTQ),
		fetch.WithUpdateChannel(c.FetchUpdates),
	}

	if cfg.ICache.Enabled {
		if c.backing == nil {
			c.backing = cache.NewMapBacking()
		}

		c.ICache, err = cache.New(cfg.ICache.Config, c.backing)
		if err != nil {
			return nil, fmt.Errorf("icache: %w", err)
		}

		fetchOpts = append(fetchOpts, fetch.WithInstructionCache(c.ICache))
	}

	c.Fetch, err = fetch.New(cfg.Fetch, src, c.Requests, c.Outputs, fetchOpts...)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Config returns the configuration the core was built with.
func (c *Core) Config() *config.Config {
	return c.cfg.Clone()
}

// Startup delivers the start-up credit grants. It runs once.
func (c *Core) Startup() {
	if c.started {
		return
	}
	c.started = true

	if c.skipBootstrap {
		return
	}

	c.BPU.Startup()
	c.FTQ.Startup()
	c.Fetch.Startup()
}

// Tick executes one cycle: Fetch, then the FTQ, then the BPU. It returns true
// if any unit made progress.
func (c *Core) Tick() bool {
	if c.halted {
		return false
	}
	c.Startup()

	progress := c.Fetch.Tick()
	if c.FTQ.Tick() {
		progress = true
	}
	if c.BPU.Tick() {
		progress = true
	}

	c.cycle++
	if progress {
		c.idle = 0
	} else {
		c.idle++
		c.totalIdle++
	}

	if c.Fetch.Done() && c.FTQ.Idle() && c.BPU.Idle() && c.Updates.Len() == 0 {
		c.halted = true
		c.logger.V(1).Info("halted", "cycle", c.cycle)
	}

	return progress
}

// Halted returns true once every trace record has been predicted, resolved
// and trained on.
func (c *Core) Halted() bool {
	return c.halted
}

// Cycle returns the number of cycles simulated.
func (c *Core) Cycle() uint64 {
	return c.cycle
}

// Run executes until the trace completes. It fails with a *DeadlockError
// when nothing moves for MaxIdleCycles cycles and with ErrCycleLimit when
// MaxCycles is reached first.
func (c *Core) Run() error {
	for !c.halted {
		if c.cfg.Sim.MaxCycles > 0 && c.cycle >= c.cfg.Sim.MaxCycles {
			return fmt.Errorf("%w after %d cycles", ErrCycleLimit, c.cycle)
		}

		c.Tick()

		if c.idle >= c.cfg.Sim.MaxIdleCycles {
			return c.deadlock()
		}
	}

	return nil
}

func (c *Core) deadlock() error {
	return &DeadlockError{
		Cycle:           c.cycle,
		IdleCycles:      c.idle,
		Inflight:        c.Fetch.Inflight(),
		BPUBuffered:     c.BPU.Buffered(),
		RequestCredits:  c.Requests.Credits(),
		OutputCredits:   c.Outputs.Credits(),
		PendingRequests: c.Requests.Len(),
		PendingOutputs:  c.Outputs.Len(),
		FTQQueued:       c.FTQ.Len(),
	}
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !c.halted; i++ {
		c.Tick()
	}
	return !c.halted
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := Stats{
		Cycles:       c.cycle,
		IdleCycles:   c.totalIdle,
		BPU:          c.BPU.Stats(),
		FTQ:          c.FTQ.Stats(),
		Fetch:        c.Fetch.Stats(),
		Requests:     c.Requests.Stats(),
		Predictions:  c.Predictions.Stats(),
		Outputs:      c.Outputs.Stats(),
		FetchUpdates: c.FetchUpdates.Stats(),
		Updates:      c.Updates.Stats(),
	}

	if c.ICache != nil {
		icache := c.ICache.Stats()
		s.ICache = &icache
	}

	return s
}
