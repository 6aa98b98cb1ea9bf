package ftq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/credit"
	"github.com/sarchlab/bpsim/timing/ftq"
)

type recordingPort struct {
	grants []int
}

func (p *recordingPort) OnOutputCreditsArrival(n int) {
	p.grants = append(p.grants, n)
}

var _ = Describe("Config", func() {
	It("should accept the default config", func() {
		cfg := ftq.DefaultConfig()
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.Capacity).To(Equal(10))
		Expect(cfg.InitialBPUCredits).To(Equal(5))
	})

	It("should reject more initial credits than capacity", func() {
		cfg := ftq.DefaultConfig()
		cfg.Capacity = 4
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("initial_bpu_credits")))
	})

	It("should reject an empty queue", func() {
		cfg := ftq.DefaultConfig()
		cfg.Capacity = 0
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("capacity")))
	})
})

var _ = Describe("FTQ", func() {
	var (
		predictions *credit.Channel[bpu.Output]
		outputs     *credit.Channel[bpu.Output]
		q           *ftq.FTQ
	)

	// predict plays the BPU: it sends n predictions starting at seq.
	predict := func(seq uint64, n int) {
		for i := 0; i < n; i++ {
			Expect(predictions.Send(bpu.Output{SeqID: seq + uint64(i), PC: 0x1000})).
				To(Succeed())
		}
	}

	BeforeEach(func() {
		predictions = credit.New[bpu.Output]("predictions", 10)
		outputs = credit.New[bpu.Output]("outputs", 4)

		var err error
		q, err = ftq.New("ftq", ftq.DefaultConfig(), predictions, outputs,
			ftq.WithLogger(GinkgoLogr))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should grant the BPU its start-up credits once", func() {
		q.Startup()
		q.Startup()

		Expect(predictions.Credits()).To(Equal(5))
	})

	It("should send start-up credits through the credit port", func() {
		port := &recordingPort{}
		var err error
		q, err = ftq.New("ftq", ftq.DefaultConfig(), predictions, outputs,
			ftq.WithCreditPort(port))
		Expect(err).NotTo(HaveOccurred())

		q.Startup()

		Expect(port.grants).To(Equal([]int{5}))
		Expect(predictions.Credits()).To(Equal(0))
	})

	It("should hold predictions until Fetch grants credits", func() {
		q.Startup()
		predict(0, 3)

		Expect(q.Tick()).To(BeTrue())
		Expect(q.Len()).To(Equal(3))
		Expect(outputs.Len()).To(Equal(0))
		Expect(q.Stats().FetchStalls).To(Equal(uint64(1)))
		Expect(q.Idle()).To(BeFalse())

		q.OnOutputCreditsArrival(2)

		Expect(q.Len()).To(Equal(1))
		Expect(outputs.Len()).To(Equal(2))
		first, _ := outputs.Receive()
		second, _ := outputs.Receive()
		Expect(first.SeqID).To(Equal(uint64(0)))
		Expect(second.SeqID).To(Equal(uint64(1)))
	})

	It("should return a credit to the BPU for each prediction forwarded", func() {
		q.Startup()
		predict(0, 5)
		Expect(predictions.CanSend()).To(BeFalse())

		q.Tick()
		q.OnOutputCreditsArrival(3)

		Expect(predictions.Credits()).To(Equal(3))
		Expect(q.Stats().CreditsReturned).To(Equal(uint64(3)))
		Expect(q.Stats().Forwarded).To(Equal(uint64(3)))
		Expect(q.Stats().MaxOccupancy).To(Equal(5))
	})

	It("should forward on the next tick once credits are waiting", func() {
		q.Startup()
		q.OnOutputCreditsArrival(4)
		predict(0, 2)

		Expect(q.Tick()).To(BeTrue())

		Expect(q.Len()).To(Equal(0))
		Expect(outputs.Len()).To(Equal(2))
		Expect(outputs.Credits()).To(Equal(2))
		Expect(q.Idle()).To(BeTrue())
	})

	It("should report no work when empty", func() {
		q.Startup()
		Expect(q.Tick()).To(BeFalse())
		Expect(q.Idle()).To(BeTrue())
	})

	It("should reject an update relay with one channel", func() {
		updates := credit.New[bpu.Update]("updates", 4)
		_, err := ftq.New("ftq", ftq.DefaultConfig(), predictions, outputs,
			ftq.WithUpdateRelay(updates, nil))
		Expect(err).To(MatchError(ContainSubstring("both channels")))
	})

	Context("with an update relay", func() {
		var fetchUpdates, bpuUpdates *credit.Channel[bpu.Update]

		BeforeEach(func() {
			fetchUpdates = credit.New[bpu.Update]("fetch-updates", 8)
			bpuUpdates = credit.New[bpu.Update]("bpu-updates", 2)

			var err error
			q, err = ftq.New("ftq", ftq.DefaultConfig(), predictions, outputs,
				ftq.WithUpdateRelay(fetchUpdates, bpuUpdates))
			Expect(err).NotTo(HaveOccurred())
			q.Startup()
		})

		It("should grant Fetch its update credits at start-up", func() {
			Expect(fetchUpdates.Credits()).To(Equal(8))
		})

		It("should relay updates as the BPU grants credits", func() {
			for seq := uint64(0); seq < 3; seq++ {
				Expect(fetchUpdates.Send(bpu.Update{SeqID: seq, Taken: true})).To(Succeed())
			}

			Expect(q.Tick()).To(BeFalse())
			Expect(q.Stats().UpdateStalls).To(Equal(uint64(1)))
			Expect(q.Idle()).To(BeFalse())

			bpuUpdates.GrantCredits(2)
			Expect(q.Tick()).To(BeTrue())
			Expect(bpuUpdates.Len()).To(Equal(2))
			Expect(fetchUpdates.Credits()).To(Equal(7))

			for i := 0; i < 2; i++ {
				u, err := bpuUpdates.Receive()
				Expect(err).NotTo(HaveOccurred())
				Expect(u.SeqID).To(Equal(uint64(i)))
			}
			bpuUpdates.GrantCredits(2)
			q.Tick()

			Expect(q.Stats().UpdatesRelayed).To(Equal(uint64(3)))
			Expect(fetchUpdates.Credits()).To(Equal(8))
			Expect(q.Idle()).To(BeTrue())
		})
	})
})
