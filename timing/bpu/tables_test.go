package bpu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/timing/bpu"
	"github.com/sarchlab/bpsim/timing/replacement"
)

var _ = Describe("BTB", func() {
	var btb *bpu.BTB

	BeforeEach(func() {
		var err error
		// 4 sets of 2 ways; PCs 0x00, 0x10 and 0x20 share set 0.
		btb, err = bpu.NewBTB(8, 2, 4, replacement.NameLRU)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should miss when empty", func() {
		_, ok := btb.Lookup(0x10)
		Expect(ok).To(BeFalse())
		Expect(btb.Stats().Misses).To(Equal(uint64(1)))
	})

	It("should return the inserted target", func() {
		btb.Insert(0x10, 0x800)

		target, ok := btb.Lookup(0x10)
		Expect(ok).To(BeTrue())
		Expect(target).To(Equal(uint64(0x800)))
	})

	It("should overwrite the target of an existing entry", func() {
		btb.Insert(0x10, 0x800)
		btb.Insert(0x10, 0x900)

		target, _ := btb.Lookup(0x10)
		Expect(target).To(Equal(uint64(0x900)))
		Expect(btb.Stats().Inserts).To(Equal(uint64(1)))
	})

	It("should evict the least recently used entry of a full set", func() {
		btb.Insert(0x00, 0x100)
		btb.Insert(0x10, 0x200)
		_, ok := btb.Lookup(0x00)
		Expect(ok).To(BeTrue())

		btb.Insert(0x20, 0x300)

		_, ok = btb.Lookup(0x10)
		Expect(ok).To(BeFalse())
		_, ok = btb.Lookup(0x00)
		Expect(ok).To(BeTrue())
		Expect(btb.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should evict the most recently used entry under MRU", func() {
		mru, err := bpu.NewBTB(8, 2, 4, replacement.NameMRU)
		Expect(err).NotTo(HaveOccurred())

		mru.Insert(0x00, 0x100)
		mru.Insert(0x10, 0x200)
		_, ok := mru.Lookup(0x00)
		Expect(ok).To(BeTrue())

		mru.Insert(0x20, 0x300)

		_, ok = mru.Lookup(0x00)
		Expect(ok).To(BeFalse())
		_, ok = mru.Lookup(0x10)
		Expect(ok).To(BeTrue())
	})

	It("should refill an invalidated way first", func() {
		btb.Insert(0x00, 0x100)
		btb.Insert(0x10, 0x200)
		btb.Invalidate(0x00)

		btb.Insert(0x20, 0x300)

		_, ok := btb.Lookup(0x10)
		Expect(ok).To(BeTrue())
		Expect(btb.Stats().Evictions).To(Equal(uint64(0)))
	})

	It("should reject tree PLRU with a non-power-of-two associativity", func() {
		_, err := bpu.NewBTB(12, 3, 4, replacement.NameTreePLRU)
		Expect(errors.Is(err, replacement.ErrInvalidWays)).To(BeTrue())
	})

	It("should reject an unknown policy", func() {
		_, err := bpu.NewBTB(8, 2, 4, "FIFO")
		Expect(errors.Is(err, replacement.ErrUnrecognizedPolicy)).To(BeTrue())
	})

	It("should forget entries on reset", func() {
		btb.Insert(0x10, 0x800)
		btb.Reset()

		_, ok := btb.Lookup(0x10)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("RAS", func() {
	It("should pop in reverse push order", func() {
		ras := bpu.NewRAS(4)
		ras.Push(0x104)
		ras.Push(0x208)

		addr, ok := ras.Pop()
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(uint64(0x208)))

		addr, ok = ras.Pop()
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(uint64(0x104)))
	})

	It("should drop pushes when full", func() {
		ras := bpu.NewRAS(1)
		Expect(ras.Push(0x104)).To(BeTrue())
		Expect(ras.Push(0x208)).To(BeFalse())

		addr, _ := ras.Pop()
		Expect(addr).To(Equal(uint64(0x104)))
		Expect(ras.Stats().Overflows).To(Equal(uint64(1)))
	})

	It("should report underflow", func() {
		ras := bpu.NewRAS(2)
		_, ok := ras.Pop()
		Expect(ok).To(BeFalse())
		Expect(ras.Stats().Underflows).To(Equal(uint64(1)))
	})
})
