package fetch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/cache"
	"github.com/sarchlab/bpsim/timing/credit"
	"github.com/sarchlab/bpsim/timing/fetch"
	"github.com/sarchlab/bpsim/trace"
)

type recordingPort struct {
	grants []int
}

func (p *recordingPort) OnOutputCreditsArrival(n int) {
	p.grants = append(p.grants, n)
}

// scriptedCache misses on the first read of each PC.
type scriptedCache struct {
	seen map[uint64]bool
}

func (c *scriptedCache) Read(addr uint64, size int) cache.AccessResult {
	if c.seen[addr] {
		return cache.AccessResult{Hit: true, Latency: 1}
	}
	c.seen[addr] = true

	return cache.AccessResult{Hit: false, Latency: 3}
}

var _ = Describe("Config", func() {
	It("should accept the default config", func() {
		cfg := fetch.DefaultConfig()
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.InitialOutputCredits).To(Equal(5))
	})

	It("should reject more initial credits than buffering", func() {
		cfg := fetch.DefaultConfig()
		cfg.OutputQueueDepth = 2
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("output_queue_depth")))
	})
})

var _ = Describe("Fetch", func() {
	var (
		requests *credit.Channel[bpu.Request]
		outputs  *credit.Channel[bpu.Output]
		updates  *credit.Channel[bpu.Update]
		src      *trace.Trace
		f        *fetch.Fetch
		cfg      fetch.Config
	)

	build := func(opts ...fetch.Option) {
		var err error
		opts = append(opts, fetch.WithUpdateChannel(updates), fetch.WithLogger(GinkgoLogr))
		f, err = fetch.New(cfg, src, requests, outputs, opts...)
		Expect(err).NotTo(HaveOccurred())
	}

	// answer plays the BPU: it takes every pending request and returns a
	// prediction for it.
	answer := func(taken bool, target uint64) {
		for {
			req, err := requests.Receive()
			if err != nil {
				return
			}
			Expect(outputs.Send(bpu.Output{
				SeqID: req.SeqID, PC: req.PC,
				Taken: taken, Target: target, TargetKnown: true,
			})).To(Succeed())
		}
	}

	BeforeEach(func() {
		cfg = fetch.DefaultConfig()
		requests = credit.New[bpu.Request]("req", 8)
		outputs = credit.New[bpu.Output]("out", cfg.OutputQueueDepth)
		updates = credit.New[bpu.Update]("upd", 8)
		src = trace.Loop(0x1000, 0xf00, 4, 2)
	})

	It("should require a trace", func() {
		_, err := fetch.New(cfg, nil, requests, outputs)
		Expect(err).To(HaveOccurred())
	})

	It("should grant initial output credits once", func() {
		build()
		f.Startup()
		f.Startup()

		Expect(outputs.Credits()).To(Equal(5))
	})

	It("should return credits through the port when one is bound", func() {
		port := &recordingPort{}
		build(fetch.WithCreditPort(port))
		f.Startup()

		Expect(port.grants).To(Equal([]int{5}))
		Expect(outputs.Credits()).To(Equal(0))
	})

	It("should stop issuing without request credits", func() {
		build()
		requests.GrantCredits(2)

		Expect(f.Tick()).To(BeTrue())
		Expect(f.Tick()).To(BeTrue())
		Expect(f.Tick()).To(BeFalse())

		Expect(requests.Len()).To(Equal(2))
		Expect(f.Stats().Issued).To(Equal(uint64(2)))
		Expect(f.Stats().CreditStalls).To(Equal(uint64(1)))
	})

	It("should issue requests in trace order with sequence IDs", func() {
		build()
		requests.GrantCredits(3)
		for i := 0; i < 3; i++ {
			f.Tick()
		}

		for i := 0; i < 3; i++ {
			req, err := requests.Receive()
			Expect(err).NotTo(HaveOccurred())
			Expect(req.SeqID).To(Equal(uint64(i)))
			Expect(req.PC).To(Equal(uint64(0x1000)))
		}
	})

	It("should respect the in-flight limit", func() {
		cfg.MaxInflight = 2
		build()
		requests.GrantCredits(8)

		for i := 0; i < 4; i++ {
			f.Tick()
		}

		Expect(f.Inflight()).To(Equal(2))
		Expect(f.Stats().InflightStalls).To(Equal(uint64(2)))
	})

	It("should resolve predictions and send updates", func() {
		build()
		f.Startup()
		updates.GrantCredits(8)
		requests.GrantCredits(4)

		for i := 0; i < 4; i++ {
			f.Tick()
		}
		answer(true, 0xf00)
		f.Tick()

		s := f.Stats()
		Expect(s.Received).To(Equal(uint64(4)))
		// The fourth loop branch exits.
		Expect(s.Mispredicted).To(Equal(uint64(1)))
		Expect(s.DirectionMispredicted).To(Equal(uint64(1)))
		Expect(s.Accuracy()).To(Equal(0.75))

		Expect(outputs.Credits()).To(Equal(5))
		Expect(updates.Len()).To(Equal(4))

		u, err := updates.Receive()
		Expect(err).NotTo(HaveOccurred())
		Expect(u.SeqID).To(Equal(uint64(0)))
		Expect(u.Taken).To(BeTrue())
		Expect(u.Target).To(Equal(uint64(0xf00)))
	})

	It("should count a wrong target as a misprediction", func() {
		build()
		f.Startup()
		updates.GrantCredits(8)
		requests.GrantCredits(1)

		f.Tick()
		answer(true, 0xbad)
		f.Tick()

		Expect(f.Stats().TargetMispredicted).To(Equal(uint64(1)))
	})

	It("should hold updates until update credits arrive", func() {
		build()
		f.Startup()
		requests.GrantCredits(1)

		f.Tick()
		answer(true, 0xf00)
		f.Tick()
		Expect(updates.Len()).To(Equal(0))
		Expect(f.Stats().UpdateStalls).To(Equal(uint64(1)))

		updates.GrantCredits(1)
		f.Tick()
		Expect(updates.Len()).To(Equal(1))
	})

	It("should panic on an out-of-order prediction", func() {
		build()
		f.Startup()
		Expect(outputs.Send(bpu.Output{SeqID: 1})).To(Succeed())

		Expect(func() { f.Tick() }).To(PanicWith(&fetch.OrderError{Expected: 0, Got: 1}))
	})

	It("should stall on an instruction cache miss", func() {
		build(fetch.WithInstructionCache(&scriptedCache{seen: map[uint64]bool{}}))
		requests.GrantCredits(8)

		Expect(f.Tick()).To(BeTrue())
		Expect(requests.Len()).To(Equal(0))

		for i := 0; i < 3; i++ {
			Expect(f.Tick()).To(BeTrue())
			Expect(requests.Len()).To(Equal(0))
		}

		f.Tick()
		Expect(requests.Len()).To(Equal(1))

		s := f.Stats()
		Expect(s.ICacheMisses).To(Equal(uint64(1)))
		Expect(s.ICacheStallCycles).To(Equal(uint64(3)))
	})

	It("should be done once every record is resolved", func() {
		src = trace.Alternating(0x1000, 0x2000, 2)
		build()
		f.Startup()
		updates.GrantCredits(8)
		requests.GrantCredits(8)

		f.Tick()
		f.Tick()
		Expect(f.Done()).To(BeFalse())

		answer(false, 0)
		f.Tick()

		Expect(f.Done()).To(BeTrue())
		Expect(f.Outputs()).To(HaveLen(2))
	})
})
