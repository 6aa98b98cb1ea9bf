package core_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/timing/config"
	"github.com/sarchlab/bpsim/timing/core"
	"github.com/sarchlab/bpsim/trace"
)

var _ = Describe("Core", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.Default()
		cfg.Sim.MaxIdleCycles = 50
	})

	build := func(src trace.Source, opts ...core.Option) *core.Core {
		opts = append(opts, core.WithLogger(GinkgoLogr))
		c, err := core.New(cfg, src, opts...)
		Expect(err).NotTo(HaveOccurred())

		return c
	}

	It("should reject an invalid config", func() {
		cfg.BPU.InitialRequestCredits = 0
		_, err := core.New(cfg, trace.Loop(0x1000, 0xf00, 4, 1))
		Expect(err).To(MatchError(ContainSubstring("initial_request_credits")))
	})

	It("should start from a single request credit without deadlock", func() {
		src := trace.Loop(0x1000, 0xf00, 4, 10)
		c := build(src)

		Expect(c.Run()).To(Succeed())
		Expect(c.Halted()).To(BeTrue())

		s := c.Stats()
		Expect(s.Fetch.Received).To(Equal(uint64(src.Len())))
		Expect(s.BPU.Updates).To(Equal(uint64(src.Len())))
		Expect(s.Requests.Granted).To(BeNumerically(">=", uint64(1)))
	})

	It("should deliver predictions in request order", func() {
		src := trace.Random(3, 300, 16)
		c := build(src)

		Expect(c.Run()).To(Succeed())

		outputs := c.Fetch.Outputs()
		Expect(outputs).To(HaveLen(src.Len()))
		for i, o := range outputs {
			Expect(o.SeqID).To(Equal(uint64(i)))
			Expect(o.PC).To(Equal(src.At(i).PC))
		}
	})

	It("should grant the BPU its start-up credits from the fetch target queue", func() {
		c := build(trace.Loop(0x1000, 0xf00, 4, 10))

		c.Startup()

		Expect(c.Predictions.Credits()).To(Equal(cfg.FTQ.InitialBPUCredits))
		Expect(c.Outputs.Credits()).To(Equal(cfg.Fetch.InitialOutputCredits))
		Expect(c.FetchUpdates.Credits()).To(Equal(cfg.FTQ.UpdateQueueDepth))
		Expect(c.Updates.Credits()).To(Equal(cfg.BPU.UpdateQueueDepth))
	})

	It("should route predictions and updates through the fetch target queue", func() {
		src := trace.Random(5, 200, 16)
		c := build(src)

		Expect(c.Run()).To(Succeed())

		s := c.Stats()
		n := uint64(src.Len())
		Expect(s.FTQ.Received).To(Equal(n))
		Expect(s.FTQ.Forwarded).To(Equal(n))
		Expect(s.FTQ.UpdatesRelayed).To(Equal(n))
		Expect(s.FTQ.MaxOccupancy).To(BeNumerically("<=", cfg.FTQ.Capacity))
		Expect(s.Predictions.Sent).To(Equal(n))
		Expect(s.FetchUpdates.Sent).To(Equal(n))
		Expect(s.BPU.Updates).To(Equal(n))
		Expect(c.FTQ.Idle()).To(BeTrue())
	})

	It("should complete with a single prediction credit", func() {
		cfg.FTQ.InitialBPUCredits = 1
		cfg.FTQ.Capacity = 1
		src := trace.CallReturn(0x4000, 2, 10)
		c := build(src)

		Expect(c.Run()).To(Succeed())
		Expect(c.Stats().FTQ.MaxOccupancy).To(Equal(1))
		Expect(c.Fetch.Outputs()).To(HaveLen(src.Len()))
	})

	It("should report a deadlock when no credits are ever granted", func() {
		c := build(trace.Loop(0x1000, 0xf00, 4, 50), core.WithoutBootstrap())

		err := c.Run()
		Expect(errors.Is(err, core.ErrDeadlock)).To(BeTrue())

		var dl *core.DeadlockError
		Expect(errors.As(err, &dl)).To(BeTrue())
		Expect(dl.OutputCredits).To(Equal(0))
		Expect(dl.IdleCycles).To(Equal(uint64(50)))
		Expect(c.Stats().Fetch.Received).To(Equal(uint64(0)))
	})

	It("should stop at the cycle limit", func() {
		cfg.Sim.MaxCycles = 10
		c := build(trace.Loop(0x1000, 0xf00, 4, 50))

		err := c.Run()
		Expect(errors.Is(err, core.ErrCycleLimit)).To(BeTrue())
		Expect(c.Cycle()).To(Equal(uint64(10)))
	})

	It("should report whether it is still running", func() {
		c := build(trace.Loop(0x1000, 0xf00, 4, 50))

		Expect(c.RunCycles(5)).To(BeTrue())
		Expect(c.Stats().Cycles).To(Equal(uint64(5)))
	})

	It("should halt at once on an empty trace", func() {
		c := build(trace.New("empty", nil))

		Expect(c.Run()).To(Succeed())
		Expect(c.Cycle()).To(Equal(uint64(1)))
	})

	It("should learn a loop exit beyond what a bimodal table gets", func() {
		src := trace.Loop(0x1000, 0xf00, 4, 500)
		c := build(src)

		Expect(c.Run()).To(Succeed())

		s := c.Stats()
		Expect(s.Fetch.Accuracy()).To(BeNumerically(">", 0.9))
		Expect(s.BPU.Mispredictions).To(Equal(s.Fetch.Mispredicted))

		tagged := uint64(0)
		for _, n := range s.BPU.TAGE.ComponentProvided {
			tagged += n
		}
		Expect(tagged).To(BeNumerically(">", 0))
	})

	It("should predict returns from the return address stack", func() {
		src := trace.CallReturn(0x4000, 4, 20)
		c := build(src)

		Expect(c.Run()).To(Succeed())

		s := c.Stats()
		Expect(s.BPU.RAS.Pops).To(Equal(uint64(80)))
		Expect(s.Fetch.Accuracy()).To(BeNumerically(">", 0.9))
	})

	It("should stall fetch on instruction cache misses", func() {
		cfg.ICache.Enabled = true
		src := trace.CallReturn(0x4000, 4, 5)
		c := build(src)

		Expect(c.Run()).To(Succeed())

		s := c.Stats()
		Expect(s.ICache).NotTo(BeNil())
		Expect(s.ICache.Misses).To(BeNumerically(">", 0))
		Expect(s.ICache.Hits).To(BeNumerically(">", 0))
		Expect(s.Fetch.ICacheStallCycles).To(BeNumerically(">", 0))
		Expect(s.Fetch.Received).To(Equal(uint64(src.Len())))
	})
})
