// Package bpu models a branch prediction unit that talks to Fetch through
// credit-gated channels.
package bpu

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/bpsim/timing/credit"
	"github.com/sarchlab/bpsim/timing/tage"
)

// Stats holds unit statistics.
type Stats struct {
	Requests    uint64
	Predictions uint64
	Sent        uint64
	// OutputStalls counts drain attempts that found predictions ready but no
	// output credits.
	OutputStalls uint64
	// CreditsReturned counts request credits granted to Fetch, including the
	// start-up grant.
	CreditsReturned uint64

	Updates                 uint64
	UnknownUpdates          uint64
	Mispredictions          uint64
	DirectionMispredictions uint64
	TargetMispredictions    uint64

	TAGE tage.Stats
	BTB  BTBStats
	RAS  RASStats
}

// MispredictionRatio returns mispredictions per resolved branch.
func (s Stats) MispredictionRatio() float64 {
	if s.Updates == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Updates)
}

// Accuracy returns the fraction of resolved branches predicted correctly.
func (s Stats) Accuracy() float64 {
	if s.Updates == 0 {
		return 0
	}
	return 1 - s.MispredictionRatio()
}

// Option configures a BPU.
type Option func(*BPU)

// WithLogger sets the logger used for per-event tracing.
func WithLogger(logger logr.Logger) Option {
	return func(b *BPU) {
		b.logger = logger
	}
}

// WithUpdateChannel attaches the channel Fetch sends resolution updates on.
// The unit grants its credits.
func WithUpdateChannel(updates *credit.Channel[Update]) Option {
	return func(b *BPU) {
		b.updates = updates
	}
}

// WithDirectUpdates keeps prediction state for callers that train the unit
// by calling Update directly instead of through an update channel. Without
// an update path the unit keeps no per-prediction state.
func WithDirectUpdates() Option {
	return func(b *BPU) {
		b.directUpdates = true
	}
}

type inflight struct {
	out     Output
	lookup  tage.Lookup
	hasTAGE bool
}

// BPU is the branch prediction unit. It accepts requests on the request
// channel, predicts them in arrival order and delivers the outputs on the
// output channel as Fetch grants credits.
type BPU struct {
	name string
	cfg  Config

	in      *credit.Channel[Request]
	out     *credit.Channel[Output]
	updates *credit.Channel[Update]

	directUpdates bool

	queued    []Request
	predicted []Output
	inflight  map[uint64]inflight

	predictor *tage.Predictor
	btb       *BTB
	ras       *RAS

	started bool
	stats   Stats
	logger  logr.Logger
}

// New creates a unit. in and out must not be nil.
func New(
	name string,
	cfg Config,
	in *credit.Channel[Request],
	out *credit.Channel[Output],
	opts ...Option,
) (*BPU, error) {
	if in == nil || out == nil {
		return nil, fmt.Errorf("bpu %s: request and output channels are required", name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bpu %s: invalid config: %w", name, err)
	}

	predictor, err := tage.NewPredictor(cfg.TAGE, cfg.GHRSize)
	if err != nil {
		return nil, fmt.Errorf("bpu %s: %w", name, err)
	}

	btb, err := NewBTB(cfg.BTBEntries, cfg.BTBAssociativity, cfg.BTBStride, cfg.BTBReplacement)
	if err != nil {
		return nil, fmt.Errorf("bpu %s: %w", name, err)
	}

	b := &BPU{
		name:      name,
		cfg:       cfg.Clone(),
		in:        in,
		out:       out,
		inflight:  make(map[uint64]inflight),
		predictor: predictor,
		btb:       btb,
		ras:       NewRAS(cfg.RASSize),
		logger:    logr.Discard(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Name returns the unit name.
func (b *BPU) Name() string {
	return b.name
}

// Config returns the unit configuration.
func (b *BPU) Config() Config {
	return b.cfg.Clone()
}

// Predictor returns the TAGE predictor.
func (b *BPU) Predictor() *tage.Predictor {
	return b.predictor
}

// BTB returns the branch target buffer.
func (b *BPU) BTB() *BTB {
	return b.btb
}

// RAS returns the return address stack.
func (b *BPU) RAS() *RAS {
	return b.ras
}

// Startup grants the initial request credits to Fetch. It runs once; later
// calls do nothing.
func (b *BPU) Startup() {
	if b.started {
		return
	}
	b.started = true

	b.grantRequestCredits(b.cfg.InitialRequestCredits)

	if b.updates != nil {
		b.updates.GrantCredits(b.cfg.UpdateQueueDepth)
	}

	b.logger.V(1).Info("startup", "unit", b.name,
		"requestCredits", b.cfg.InitialRequestCredits)
}

// OnRequestArrival buffers a request. No credit goes back to Fetch here;
// ReplenishRequestCredits does that once there is room.
func (b *BPU) OnRequestArrival(req Request) {
	b.queued = append(b.queued, req)
	b.stats.Requests++

	b.logger.V(1).Info("request", "unit", b.name,
		"seq", req.SeqID, "pc", req.PC, "kind", req.Kind.String())
}

// Buffered returns the number of requests held by the unit, queued or
// predicted.
func (b *BPU) Buffered() int {
	return len(b.queued) + len(b.predicted)
}

// QueuedLen returns the number of requests waiting for a prediction.
func (b *BPU) QueuedLen() int {
	return len(b.queued)
}

// PredictedLen returns the number of predictions waiting for output credits.
func (b *BPU) PredictedLen() int {
	return len(b.predicted)
}

// ReplenishRequestCredits returns credits to Fetch for the buffering the unit
// can still accept. It returns the number granted.
func (b *BPU) ReplenishRequestCredits() int {
	spare := b.cfg.RequestQueueDepth - b.Buffered() - b.in.Len() - b.in.Credits()
	if spare <= 0 {
		return 0
	}

	b.grantRequestCredits(spare)

	return spare
}

func (b *BPU) grantRequestCredits(n int) {
	b.in.GrantCredits(n)
	b.stats.CreditsReturned += uint64(n)
}

// OnOutputCreditsArrival receives n output credits from Fetch and delivers
// whatever predictions they allow.
func (b *BPU) OnOutputCreditsArrival(n int) {
	b.out.GrantCredits(n)

	b.logger.V(1).Info("output credits", "unit", b.name,
		"granted", n, "credits", b.out.Credits())

	b.DrainPredictions()
}

// GeneratePrediction predicts queued requests in arrival order, up to
// PredictWidth of them (all when PredictWidth is 0). It returns the number
// predicted.
func (b *BPU) GeneratePrediction() int {
	n := len(b.queued)
	if b.cfg.PredictWidth > 0 && n > b.cfg.PredictWidth {
		n = b.cfg.PredictWidth
	}

	for _, req := range b.queued[:n] {
		b.predict(req)
	}

	b.queued = append(b.queued[:0], b.queued[n:]...)

	return n
}

func (b *BPU) predict(req Request) {
	var rec inflight
	out := Output{
		SeqID:      req.SeqID,
		PC:         req.PC,
		Component:  tage.NoComponent,
		Confidence: Strong,
	}

	switch req.Kind {
	case Conditional:
		l := b.predictor.Lookup(req.PC)
		rec.lookup, rec.hasTAGE = l, true

		out.Taken = l.Taken
		out.Source = SourceBimodal
		if l.Provider != tage.NoComponent {
			out.Source = SourceTagged
			out.Component = l.Provider
		}
		if !l.Strong {
			out.Confidence = Weak
		}

		if out.Taken {
			out.Target, out.TargetKnown = b.btb.Lookup(req.PC)
		}

	case Return:
		out.Taken = true
		if target, ok := b.ras.Pop(); ok {
			out.Target, out.TargetKnown = target, true
			out.Source = SourceRAS
		} else {
			out.Target, out.TargetKnown = b.btb.Lookup(req.PC)
			out.Source = SourceBTB
		}

	default:
		out.Taken = true
		out.Source = SourceBTB
		out.Target, out.TargetKnown = b.btb.Lookup(req.PC)
	}

	if !out.Taken {
		out.Target, out.TargetKnown = req.PC+4, true
	} else if !out.TargetKnown && req.Kind != Conditional {
		out.Source = SourceStatic
		out.Confidence = Weak
	}

	if req.Kind == Call {
		b.ras.Push(req.PC + 4)
	}

	rec.out = out
	if b.tracksUpdates() {
		b.inflight[req.SeqID] = rec
	}
	b.predicted = append(b.predicted, out)
	b.stats.Predictions++

	b.logger.V(1).Info("predict", "unit", b.name, "seq", out.SeqID,
		"taken", out.Taken, "target", out.Target,
		"source", out.Source.String(), "component", out.Component)
}

func (b *BPU) tracksUpdates() bool {
	return b.updates != nil || b.directUpdates
}

// PendingUpdates returns the number of predictions still waiting for their
// resolution update.
func (b *BPU) PendingUpdates() int {
	return len(b.inflight)
}

// DrainPredictions sends predictions in order while output credits last. It
// returns the number sent. Running out of credits is a stall; the rest wait
// for the next credit arrival or cycle.
func (b *BPU) DrainPredictions() int {
	sent := 0

	for len(b.predicted) > 0 {
		if !b.out.CanSend() {
			b.stats.OutputStalls++
			b.logger.V(1).Info("output stall", "unit", b.name,
				"waiting", len(b.predicted))

			break
		}

		if err := b.out.Send(b.predicted[0]); err != nil {
			panic(fmt.Sprintf("bpu %s: send with credits available: %v", b.name, err))
		}

		b.predicted = b.predicted[1:]
		b.stats.Sent++
		sent++
	}

	return sent
}

// Update trains the predictor with a resolved branch. Updates for sequence
// IDs the unit never predicted still train the tables with a fresh lookup.
func (b *BPU) Update(u Update) {
	b.stats.Updates++

	rec, known := b.inflight[u.SeqID]
	if known {
		delete(b.inflight, u.SeqID)
	} else {
		b.stats.UnknownUpdates++
		rec = inflight{out: Output{Component: tage.NoComponent}}
		if u.Kind == Conditional {
			rec.lookup, rec.hasTAGE = b.predictor.Peek(u.PC), true
			rec.out.Taken = rec.lookup.Taken
		} else {
			rec.out.Taken = true
		}
	}

	if rec.hasTAGE {
		b.predictor.Update(rec.lookup, u.Taken)
		b.predictor.UpdateHistory(u.Taken)
	}

	if u.Taken && u.Kind != Return {
		b.btb.Insert(u.PC, u.Target)
	}

	directionWrong := rec.out.Taken != u.Taken
	targetWrong := !directionWrong && u.Taken &&
		(!rec.out.TargetKnown || rec.out.Target != u.Target)

	if directionWrong {
		b.stats.DirectionMispredictions++
	}
	if targetWrong {
		b.stats.TargetMispredictions++
	}
	if directionWrong || targetWrong {
		b.stats.Mispredictions++
		b.logger.V(1).Info("mispredict", "unit", b.name, "seq", u.SeqID,
			"pc", u.PC, "taken", u.Taken, "target", u.Target)
	}
}

func (b *BPU) drainUpdates() int {
	if b.updates == nil {
		return 0
	}

	n := 0
	for {
		u, err := b.updates.Receive()
		if err != nil {
			break
		}

		b.Update(u)
		n++
	}

	if n > 0 {
		b.updates.GrantCredits(n)
	}

	return n
}

// Tick advances the unit by one cycle. It returns true if any work was done.
func (b *BPU) Tick() bool {
	progress := b.drainUpdates() > 0

	for {
		req, err := b.in.Receive()
		if err != nil {
			break
		}

		b.OnRequestArrival(req)
		progress = true
	}

	if b.GeneratePrediction() > 0 {
		progress = true
	}

	if b.DrainPredictions() > 0 {
		progress = true
	}

	if b.ReplenishRequestCredits() > 0 {
		progress = true
	}

	return progress
}

// Idle reports whether the unit holds no requests.
func (b *BPU) Idle() bool {
	return b.Buffered() == 0 && b.in.Len() == 0
}

// Stats returns unit statistics, including those of its tables.
func (b *BPU) Stats() Stats {
	s := b.stats
	s.TAGE = b.predictor.Stats()
	s.BTB = b.btb.Stats()
	s.RAS = b.ras.Stats()

	return s
}

// MispredictionRatio returns mispredictions per resolved branch.
func (b *BPU) MispredictionRatio() float64 {
	return b.stats.MispredictionRatio()
}

// Reset clears tables, buffers and statistics. Channels are left alone.
func (b *BPU) Reset() {
	b.queued = nil
	b.predicted = nil
	b.inflight = make(map[uint64]inflight)
	b.predictor.Reset()
	b.btb.Reset()
	b.ras.Reset()
	b.stats = Stats{}
}
