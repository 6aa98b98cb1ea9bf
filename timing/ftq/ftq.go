// Package ftq provides the fetch target queue that sits between the branch
// prediction unit and Fetch. Predictions enter from the BPU under credits the
// queue grants, wait in a bounded queue, and leave toward Fetch under credits
// Fetch grants. Resolution updates travel the other way through the queue.
package ftq

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/credit"
)

// Config holds fetch target queue parameters.
type Config struct {
	// Capacity bounds the predictions the queue holds. Default is 10.
	Capacity int `json:"capacity" yaml:"capacity"`

	// InitialBPUCredits is granted to the BPU at start-up and bounds the
	// predictions between the BPU and Fetch. Default is 5.
	InitialBPUCredits int `json:"initial_bpu_credits" yaml:"initial_bpu_credits"`

	// UpdateQueueDepth bounds the updates Fetch can send ahead of the
	// relay. Default is 8.
	UpdateQueueDepth int `json:"update_queue_depth" yaml:"update_queue_depth"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:          10,
		InitialBPUCredits: 5,
		UpdateQueueDepth:  8,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", c.Capacity)
	}
	if c.InitialBPUCredits < 1 || c.InitialBPUCredits > c.Capacity {
		return fmt.Errorf("initial_bpu_credits must be in [1, %d], got %d",
			c.Capacity, c.InitialBPUCredits)
	}
	if c.UpdateQueueDepth < 1 {
		return fmt.Errorf("update_queue_depth must be >= 1, got %d", c.UpdateQueueDepth)
	}
	return nil
}

// CreditPort is where the queue returns prediction credits. The BPU
// implements it.
type CreditPort interface {
	OnOutputCreditsArrival(n int)
}

// Stats holds queue statistics.
type Stats struct {
	Received  uint64
	Forwarded uint64

	// FetchStalls counts cycles with queued predictions but no Fetch credits.
	FetchStalls uint64

	// MaxOccupancy is the most predictions queued at once.
	MaxOccupancy int

	// CreditsReturned counts prediction credits returned to the BPU after
	// start-up.
	CreditsReturned uint64

	UpdatesRelayed uint64

	// UpdateStalls counts cycles with updates waiting but no BPU credits.
	UpdateStalls uint64
}

// Option configures an FTQ.
type Option func(*FTQ)

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(q *FTQ) {
		q.logger = logger
	}
}

// WithCreditPort sends prediction credits to port instead of granting them
// on the prediction channel directly.
func WithCreditPort(port CreditPort) Option {
	return func(q *FTQ) {
		q.port = port
	}
}

// WithUpdateRelay relays updates received from Fetch on fromFetch to the BPU
// on toBPU.
func WithUpdateRelay(fromFetch, toBPU *credit.Channel[bpu.Update]) Option {
	return func(q *FTQ) {
		q.fetchUpdates = fromFetch
		q.bpuUpdates = toBPU
	}
}

// FTQ is the fetch target queue.
type FTQ struct {
	name string
	cfg  Config

	predictions *credit.Channel[bpu.Output]
	outputs     *credit.Channel[bpu.Output]
	port        CreditPort

	fetchUpdates *credit.Channel[bpu.Update]
	bpuUpdates   *credit.Channel[bpu.Update]

	queue []bpu.Output

	started bool
	stats   Stats
	logger  logr.Logger
}

// New creates a queue that takes predictions from the BPU on predictions and
// hands them to Fetch on outputs.
func New(
	name string,
	cfg Config,
	predictions, outputs *credit.Channel[bpu.Output],
	opts ...Option,
) (*FTQ, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ftq %s: invalid config: %w", name, err)
	}
	if predictions == nil || outputs == nil {
		return nil, fmt.Errorf("ftq %s: prediction and output channels are required", name)
	}

	q := &FTQ{
		name:        name,
		cfg:         cfg,
		predictions: predictions,
		outputs:     outputs,
		logger:      logr.Discard(),
	}

	for _, opt := range opts {
		opt(q)
	}

	if (q.fetchUpdates == nil) != (q.bpuUpdates == nil) {
		return nil, fmt.Errorf("ftq %s: update relay needs both channels", name)
	}

	return q, nil
}

// Name returns the queue name.
func (q *FTQ) Name() string {
	return q.name
}

// Capacity returns the number of predictions the queue can hold.
func (q *FTQ) Capacity() int {
	return q.cfg.Capacity
}

// Len returns the number of queued predictions.
func (q *FTQ) Len() int {
	return len(q.queue)
}

// Startup grants the BPU its initial prediction credits and Fetch its update
// credits. It runs once.
func (q *FTQ) Startup() {
	if q.started {
		return
	}
	q.started = true

	q.grantBPU(q.cfg.InitialBPUCredits)

	if q.fetchUpdates != nil {
		q.fetchUpdates.GrantCredits(q.cfg.UpdateQueueDepth)
	}

	q.logger.V(1).Info("startup", "unit", q.name, "bpuCredits", q.cfg.InitialBPUCredits)
}

func (q *FTQ) grantBPU(n int) {
	if q.port != nil {
		q.port.OnOutputCreditsArrival(n)
		return
	}
	q.predictions.GrantCredits(n)
}

// OnOutputCreditsArrival receives n credits from Fetch and forwards whatever
// queued predictions they allow.
func (q *FTQ) OnOutputCreditsArrival(n int) {
	q.outputs.GrantCredits(n)

	q.logger.V(1).Info("fetch credits", "unit", q.name,
		"granted", n, "credits", q.outputs.Credits())

	q.forward()
}

// Tick advances the queue by one cycle: relay updates, accept predictions,
// then forward them to Fetch. It returns true if any work was done.
func (q *FTQ) Tick() bool {
	relayed := q.relayUpdates()
	received := q.receive()

	if len(q.queue) > 0 && !q.outputs.CanSend() {
		q.stats.FetchStalls++
	}

	forwarded := q.forward()

	return relayed > 0 || received > 0 || forwarded > 0
}

func (q *FTQ) receive() int {
	n := 0
	for {
		o, err := q.predictions.Receive()
		if err != nil {
			break
		}

		if len(q.queue) >= q.cfg.Capacity {
			panic(fmt.Sprintf("ftq %s: prediction %d arrived with the queue full",
				q.name, o.SeqID))
		}

		q.queue = append(q.queue, o)
		q.stats.Received++
		n++
	}

	if len(q.queue) > q.stats.MaxOccupancy {
		q.stats.MaxOccupancy = len(q.queue)
	}

	return n
}

// forward sends queued predictions to Fetch while it has credits. Each one
// sent frees a slot, and its credit goes back to the BPU.
func (q *FTQ) forward() int {
	n := 0
	for len(q.queue) > 0 && q.outputs.CanSend() {
		if err := q.outputs.Send(q.queue[0]); err != nil {
			panic(fmt.Sprintf("ftq %s: send with credits available: %v", q.name, err))
		}

		q.queue = q.queue[1:]
		q.stats.Forwarded++
		n++
	}

	if n > 0 {
		q.stats.CreditsReturned += uint64(n)
		q.grantBPU(n)
	}

	return n
}

func (q *FTQ) relayUpdates() int {
	if q.fetchUpdates == nil {
		return 0
	}

	n := 0
	for q.fetchUpdates.Len() > 0 {
		if !q.bpuUpdates.CanSend() {
			q.stats.UpdateStalls++
			break
		}

		u, _ := q.fetchUpdates.Receive()
		if err := q.bpuUpdates.Send(u); err != nil {
			panic(fmt.Sprintf("ftq %s: update send with credits available: %v", q.name, err))
		}

		q.stats.UpdatesRelayed++
		n++
	}

	if n > 0 {
		q.fetchUpdates.GrantCredits(n)
	}

	return n
}

// Idle reports whether the queue holds no predictions or updates.
func (q *FTQ) Idle() bool {
	idle := len(q.queue) == 0 && q.predictions.Len() == 0
	if q.fetchUpdates != nil {
		idle = idle && q.fetchUpdates.Len() == 0
	}

	return idle
}

// Stats returns queue statistics.
func (q *FTQ) Stats() Stats {
	return q.stats
}
