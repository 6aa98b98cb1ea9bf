package config_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/timing/config"
	"github.com/sarchlab/bpsim/timing/replacement"
	"github.com/sarchlab/bpsim/timing/tage"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should have valid defaults", func() {
		cfg := config.Default()

		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.BPU.InitialRequestCredits).To(Equal(1))
		Expect(cfg.BPU.GHRSize).To(Equal(1024))
		Expect(cfg.Fetch.InitialOutputCredits).To(Equal(5))
		Expect(cfg.FTQ.Capacity).To(Equal(10))
		Expect(cfg.FTQ.InitialBPUCredits).To(Equal(5))
		Expect(cfg.ICache.Enabled).To(BeFalse())
		Expect(cfg.Sim.MaxIdleCycles).To(Equal(uint64(1000)))
	})

	for _, name := range []string{"cfg.json", "cfg.yaml"} {
		name := name

		It("should round trip through "+filepath.Ext(name), func() {
			cfg := config.Default()
			cfg.BPU.GHRSize = 512
			cfg.BPU.TAGE.Components[1].TagBits = 11
			cfg.FTQ.Capacity = 16
			cfg.ICache.Enabled = true
			cfg.ICache.ReplacementPolicy = replacement.NameMRU
			cfg.Sim.MaxCycles = 5000

			path := filepath.Join(dir, name)
			Expect(cfg.Save(path)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.Diff(cfg, loaded)).To(BeEmpty())
		})
	}

	It("should keep defaults for keys a file leaves out", func() {
		path := filepath.Join(dir, "partial.yml")
		Expect(os.WriteFile(path, []byte(`
bpu:
  ghr_size: 256
  btb_replacement: LRU
icache:
  enabled: true
  associativity: 8
  replacement_policy: TreePLRU
`), 0644)).To(Succeed())

		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.BPU.GHRSize).To(Equal(256))
		Expect(cfg.BPU.BTBReplacement).To(Equal(replacement.NameLRU))
		Expect(cfg.BPU.BTBEntries).To(Equal(4096))
		Expect(cfg.BPU.TAGE.Components).To(HaveLen(4))
		Expect(cfg.ICache.Associativity).To(Equal(8))
		Expect(cfg.ICache.BlockSize).To(Equal(64))
	})

	Context("with a tagged component list", func() {
		write := func(name, content string) string {
			path := filepath.Join(dir, name)
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
			return path
		}

		It("should not fill a partial component from the defaults", func() {
			for _, path := range []string{
				write("partial.json", `{"bpu":{"tage":{"components":[{"entries":64}]}}}`),
				write("partial.yaml", "bpu:\n  tage:\n    components:\n      - entries: 64\n"),
			} {
				_, err := config.Load(path)
				Expect(err).To(MatchError(ContainSubstring("tag_bits")), path)
			}
		})

		It("should replace the default list in either format", func() {
			want := tage.ComponentConfig{
				Entries: 64, TagBits: 8, CtrBits: 3, UBits: 1, HistoryLength: 12,
			}

			for _, path := range []string{
				write("full.json", `{"bpu":{"tage":{"components":[`+
					`{"entries":64,"tag_bits":8,"ctr_bits":3,"u_bits":1,"history_length":12}]}}}`),
				write("full.yaml", "bpu:\n  tage:\n    components:\n"+
					"      - {entries: 64, tag_bits: 8, ctr_bits: 3, u_bits: 1, history_length: 12}\n"),
			} {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred(), path)
				Expect(cfg.BPU.TAGE.Components).To(Equal([]tage.ComponentConfig{want}), path)
			}
		})
	})

	It("should reject an invalid file", func() {
		path := filepath.Join(dir, "bad.json")
		Expect(os.WriteFile(path, []byte(`{"bpu": {"btb_replacement": "Random"}}`), 0644)).To(Succeed())

		_, err := config.Load(path)
		Expect(errors.Is(err, replacement.ErrUnrecognizedPolicy)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("bpu")))
	})

	It("should reject fetch target queue settings it cannot honor", func() {
		path := filepath.Join(dir, "ftq.yaml")
		Expect(os.WriteFile(path, []byte(`
ftq:
  capacity: 3
`), 0644)).To(Succeed())

		_, err := config.Load(path)
		Expect(err).To(MatchError(ContainSubstring("ftq: initial_bpu_credits")))
	})

	It("should report malformed files", func() {
		path := filepath.Join(dir, "bad.json")
		Expect(os.WriteFile(path, []byte(`{`), 0644)).To(Succeed())

		_, err := config.Load(path)
		Expect(err).To(MatchError(ContainSubstring("failed to parse config")))
	})

	It("should only validate the icache when enabled", func() {
		cfg := config.Default()
		cfg.ICache.Associativity = 0
		Expect(cfg.Validate()).To(Succeed())

		cfg.ICache.Enabled = true
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("icache")))
	})

	It("should deep copy on clone", func() {
		cfg := config.Default()
		clone := cfg.Clone()
		clone.BPU.TAGE.Components[0].Entries = 16
		clone.Fetch.MaxInflight = 1

		Expect(cfg.BPU.TAGE.Components[0].Entries).To(Equal(uint32(1024)))
		Expect(cfg.Fetch.MaxInflight).To(Equal(16))
	})
})
