package replacement_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/bpsim/timing/replacement"
)

var _ = Describe("PerSet", func() {
	const (
		numSets   = 2
		numWays   = 4
		blockSize = 64
	)

	var (
		sets      *replacement.PerSet
		directory *akitacache.DirectoryImpl
	)

	// fill brings addr into the directory the way a cache controller would.
	fill := func(addr uint64) *akitacache.Block {
		block := directory.FindVictim(addr)
		block.Tag = addr
		block.IsValid = true
		sets.Access(block)

		return block
	}

	build := func(policy string) {
		var err error
		sets, err = replacement.NewPerSet(policy, numSets, numWays)
		Expect(err).NotTo(HaveOccurred())

		directory = akitacache.NewDirectory(numSets, numWays, blockSize, sets)
	}

	It("should keep an independent policy per set", func() {
		build("LRU")

		Expect(sets.NumSets()).To(Equal(numSets))
		Expect(sets.NumWays()).To(Equal(numWays))
		Expect(sets.Policy(0)).NotTo(BeIdenticalTo(sets.Policy(1)))
	})

	It("should fail for an unknown policy name", func() {
		_, err := replacement.NewPerSet("Random", numSets, numWays)
		Expect(err).To(MatchError(replacement.ErrUnrecognizedPolicy))
	})

	It("should fill invalid ways before evicting", func() {
		build("TreePLRU")

		ways := map[int]bool{}
		for i := uint64(0); i < numWays; i++ {
			block := fill(i * numSets * blockSize)
			Expect(block.SetID).To(Equal(0))
			ways[block.WayID] = true
		}

		Expect(ways).To(HaveLen(numWays))
	})

	It("should evict the least recently used line under LRU", func() {
		build("LRU")

		addrs := []uint64{0x000, 0x080, 0x100, 0x180}
		for _, addr := range addrs {
			fill(addr)
		}

		sets.Access(directory.Lookup(0, 0x000))

		victim := directory.FindVictim(0x200)
		Expect(victim.Tag).To(Equal(uint64(0x080)))
	})

	It("should evict the most recently used line under MRU", func() {
		build("MRU")

		addrs := []uint64{0x000, 0x080, 0x100, 0x180}
		for _, addr := range addrs {
			fill(addr)
		}

		sets.Access(directory.Lookup(0, 0x100))

		victim := directory.FindVictim(0x200)
		Expect(victim.Tag).To(Equal(uint64(0x100)))
	})

	It("should prefer an invalidated line", func() {
		build("LRU")

		for _, addr := range []uint64{0x000, 0x080, 0x100, 0x180} {
			fill(addr)
		}

		block := directory.Lookup(0, 0x100)
		block.IsValid = false
		sets.Invalidate(block)

		Expect(directory.FindVictim(0x200)).To(BeIdenticalTo(block))
	})

	It("should forget recency on reset", func() {
		build("LRU")
		sets.Policy(1).TouchMostRecentlyUsed(0)

		sets.Reset()
		Expect(sets.Policy(1).SelectVictim()).To(Equal(0))
	})
})
