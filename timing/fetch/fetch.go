// Package fetch provides the trace-driven fetch unit that feeds the branch
// prediction unit and consumes its predictions.
package fetch

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/cache"
	"github.com/sarchlab/bpsim/timing/credit"
	"github.com/sarchlab/bpsim/trace"
)

// Config holds fetch unit parameters.
type Config struct {
	// InitialOutputCredits is granted to the BPU at start-up. Default is 5.
	InitialOutputCredits int `json:"initial_output_credits" yaml:"initial_output_credits"`
	// OutputQueueDepth bounds the outputs Fetch can buffer. Default is 8.
	OutputQueueDepth int `json:"output_queue_depth" yaml:"output_queue_depth"`
	// IssueWidth is the number of requests issued per cycle. Default is 1.
	IssueWidth int `json:"issue_width" yaml:"issue_width"`
	// MaxInflight bounds requests issued but not yet answered. Default is 16.
	MaxInflight int `json:"max_inflight" yaml:"max_inflight"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		InitialOutputCredits: 5,
		OutputQueueDepth:     8,
		IssueWidth:           1,
		MaxInflight:          16,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InitialOutputCredits < 1 {
		return fmt.Errorf("initial_output_credits must be >= 1, got %d", c.InitialOutputCredits)
	}
	if c.OutputQueueDepth < c.InitialOutputCredits {
		return fmt.Errorf("output_queue_depth %d is smaller than initial_output_credits %d",
			c.OutputQueueDepth, c.InitialOutputCredits)
	}
	if c.IssueWidth < 1 {
		return fmt.Errorf("issue_width must be >= 1, got %d", c.IssueWidth)
	}
	if c.MaxInflight < 1 {
		return fmt.Errorf("max_inflight must be >= 1, got %d", c.MaxInflight)
	}
	return nil
}

// CreditPort is where Fetch returns output credits. The fetch target queue
// implements it.
type CreditPort interface {
	OnOutputCreditsArrival(n int)
}

// InstructionCache is the cache Fetch reads each branch's instruction
// through.
type InstructionCache interface {
	Read(addr uint64, size int) cache.AccessResult
}

// OrderError reports an output that arrived out of request order.
type OrderError struct {
	Expected uint64
	Got      uint64
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("fetch: expected prediction for seq %d, got seq %d",
		e.Expected, e.Got)
}

// Stats holds fetch statistics.
type Stats struct {
	Issued   uint64
	Received uint64

	Mispredicted          uint64
	DirectionMispredicted uint64
	TargetMispredicted    uint64

	UpdatesSent  uint64
	UpdateStalls uint64

	// CreditStalls counts cycles issue stopped for lack of request credits.
	CreditStalls uint64
	// InflightStalls counts cycles issue stopped at the in-flight limit.
	InflightStalls uint64

	ICacheMisses      uint64
	ICacheStallCycles uint64
}

// Accuracy returns the fraction of received predictions that were correct.
func (s Stats) Accuracy() float64 {
	if s.Received == 0 {
		return 0
	}
	return 1 - float64(s.Mispredicted)/float64(s.Received)
}

// Option configures a Fetch.
type Option func(*Fetch)

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(f *Fetch) {
		f.logger = logger
	}
}

// WithCreditPort sends returned output credits to port instead of granting
// them on the output channel directly.
func WithCreditPort(port CreditPort) Option {
	return func(f *Fetch) {
		f.port = port
	}
}

// WithUpdateChannel sets the channel resolution updates are sent on.
func WithUpdateChannel(updates *credit.Channel[bpu.Update]) Option {
	return func(f *Fetch) {
		f.updates = updates
	}
}

// WithInstructionCache routes instruction fetch through icache.
func WithInstructionCache(icache InstructionCache) Option {
	return func(f *Fetch) {
		f.icache = icache
	}
}

// Fetch walks a branch trace, requests a prediction for every branch in
// order and resolves each prediction against the trace.
type Fetch struct {
	cfg Config
	src trace.Source

	requests *credit.Channel[bpu.Request]
	outputs  *credit.Channel[bpu.Output]
	updates  *credit.Channel[bpu.Update]
	port     CreditPort
	icache   InstructionCache

	nextSeq   uint64
	expectSeq uint64

	pendingUpdates []bpu.Update
	icacheStall    uint64

	delivered []bpu.Output
	started   bool

	stats  Stats
	logger logr.Logger
}

// New creates a fetch unit over src.
func New(
	cfg Config,
	src trace.Source,
	requests *credit.Channel[bpu.Request],
	outputs *credit.Channel[bpu.Output],
	opts ...Option,
) (*Fetch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}
	if src == nil || requests == nil || outputs == nil {
		return nil, fmt.Errorf("fetch: trace, request and output channels are required")
	}

	f := &Fetch{
		cfg:      cfg,
		src:      src,
		requests: requests,
		outputs:  outputs,
		logger:   logr.Discard(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Startup grants the initial output credits. It runs once.
func (f *Fetch) Startup() {
	if f.started {
		return
	}
	f.started = true

	f.returnCredits(f.cfg.InitialOutputCredits)
}

func (f *Fetch) returnCredits(n int) {
	if f.port != nil {
		f.port.OnOutputCreditsArrival(n)
		return
	}
	f.outputs.GrantCredits(n)
}

// Tick advances Fetch by one cycle. It returns true if any work was done.
func (f *Fetch) Tick() bool {
	consumed := f.consume()
	if consumed > 0 {
		f.returnCredits(consumed)
	}

	sent := f.sendUpdates()

	stalled := f.icacheStall > 0
	issued := f.issue()

	return consumed > 0 || sent > 0 || issued > 0 || stalled || f.icacheStall > 0
}

func (f *Fetch) consume() int {
	n := 0

	for {
		o, err := f.outputs.Receive()
		if err != nil {
			break
		}

		if o.SeqID != f.expectSeq {
			panic(&OrderError{Expected: f.expectSeq, Got: o.SeqID})
		}
		f.expectSeq++
		n++

		f.resolve(o)
	}

	return n
}

func (f *Fetch) resolve(o bpu.Output) {
	rec := f.src.At(int(o.SeqID))

	f.stats.Received++
	f.delivered = append(f.delivered, o)

	directionWrong := o.Taken != rec.Taken
	targetWrong := !directionWrong && rec.Taken &&
		(!o.TargetKnown || o.Target != rec.Target)

	if directionWrong {
		f.stats.DirectionMispredicted++
	}
	if targetWrong {
		f.stats.TargetMispredicted++
	}
	if directionWrong || targetWrong {
		f.stats.Mispredicted++
	}

	f.pendingUpdates = append(f.pendingUpdates, bpu.Update{
		SeqID:  o.SeqID,
		PC:     rec.PC,
		Kind:   rec.Kind,
		Taken:  rec.Taken,
		Target: rec.Target,
	})

	f.logger.V(1).Info("resolve", "seq", o.SeqID, "pc", rec.PC,
		"predicted", o.Taken, "actual", rec.Taken,
		"mispredicted", directionWrong || targetWrong)
}

func (f *Fetch) sendUpdates() int {
	if f.updates == nil {
		f.pendingUpdates = f.pendingUpdates[:0]
		return 0
	}

	sent := 0
	for len(f.pendingUpdates) > 0 {
		if !f.updates.CanSend() {
			f.stats.UpdateStalls++
			break
		}

		if err := f.updates.Send(f.pendingUpdates[0]); err != nil {
			panic(fmt.Sprintf("fetch: update send with credits available: %v", err))
		}

		f.pendingUpdates = f.pendingUpdates[1:]
		f.stats.UpdatesSent++
		sent++
	}

	return sent
}

func (f *Fetch) issue() int {
	if f.icacheStall > 0 {
		f.icacheStall--
		f.stats.ICacheStallCycles++
		return 0
	}

	issued := 0
	for issued < f.cfg.IssueWidth && int(f.nextSeq) < f.src.Len() {
		if f.Inflight() >= f.cfg.MaxInflight {
			f.stats.InflightStalls++
			break
		}

		if !f.requests.CanSend() {
			f.stats.CreditStalls++
			break
		}

		rec := f.src.At(int(f.nextSeq))

		if f.icache != nil {
			r := f.icache.Read(rec.PC, 4)
			if !r.Hit {
				f.stats.ICacheMisses++
				f.icacheStall = r.Latency
				f.logger.V(1).Info("icache miss", "pc", rec.PC, "latency", r.Latency)

				break
			}
		}

		req := bpu.Request{PC: rec.PC, SeqID: f.nextSeq, Kind: rec.Kind}
		if err := f.requests.Send(req); err != nil {
			panic(fmt.Sprintf("fetch: request send with credits available: %v", err))
		}

		f.nextSeq++
		f.stats.Issued++
		issued++
	}

	return issued
}

// Inflight returns the number of requests without a prediction yet.
func (f *Fetch) Inflight() int {
	return int(f.nextSeq - f.expectSeq)
}

// Done reports whether every trace record was predicted and resolved.
func (f *Fetch) Done() bool {
	return int(f.expectSeq) >= f.src.Len() && len(f.pendingUpdates) == 0
}

// Stats returns fetch statistics.
func (f *Fetch) Stats() Stats {
	return f.stats
}

// Outputs returns the predictions received so far, in order.
func (f *Fetch) Outputs() []bpu.Output {
	return f.delivered
}
