package timestep_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
	"github.com/san-kum/cohortsim/internal/timestep"
)

var _ = Describe("DetectBlock", func() {
	stubs := func(types ...process.Type) []process.Process {
		out := make([]process.Process, len(types))
		for i, t := range types {
			out[i] = &stubProcess{label: string(rune('A' + i)), typ: t}
		}
		return out
	}

	It("excludes a mortality process that is not contiguous with the run", func() {
		block := timestep.DetectBlock(stubs(
			process.TypeMortality, process.TypeMortality, process.TypeRecruitment, process.TypeMortality,
		))
		Expect(block).To(Equal(timestep.Block{First: 0, Last: 1, Valid: true}))
	})

	It("picks the longest run", func() {
		block := timestep.DetectBlock(stubs(
			process.TypeMortality, process.TypeAgeing, process.TypeMortality, process.TypeMortality,
		))
		Expect(block).To(Equal(timestep.Block{First: 2, Last: 3, Valid: true}))
	})

	It("prefers the earliest of equal runs", func() {
		block := timestep.DetectBlock(stubs(
			process.TypeRecruitment, process.TypeMortality, process.TypeAgeing, process.TypeMortality,
		))
		Expect(block).To(Equal(timestep.Block{First: 1, Last: 1, Valid: true}))
	})

	It("reports no block without mortality", func() {
		block := timestep.DetectBlock(stubs(process.TypeRecruitment, process.TypeAgeing))
		Expect(block.Valid).To(BeFalse())
		Expect(timestep.DetectBlock(nil).Valid).To(BeFalse())
	})
})

var _ = Describe("TimeStep", func() {
	var (
		log  *journal
		reg  *process.Registry
		part *partition.Partition
	)

	register := func(label string, typ process.Type) *stubProcess {
		s := &stubProcess{label: label, typ: typ, log: log}
		Expect(reg.Register(s)).To(Succeed())
		return s
	}

	BeforeEach(func() {
		log = &journal{}
		reg = process.NewRegistry()
		var err error
		part, err = partition.New(1, 3, true, []string{"stock"})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Build", func() {
		It("fails on an unresolved process", func() {
			register("A", process.TypeMortality)
			ts := timestep.New("annual", []string{"A", "missing"})

			err := ts.Build(reg, part)
			Expect(err).To(MatchError(partition.ErrNotFound))
			Expect(err.Error()).To(ContainSubstring(`processes[1]`))
		})

		It("fails on an unresolved initialisation process", func() {
			register("A", process.TypeMortality)
			ts := timestep.New("annual", []string{"A"})
			ts.SetInitialisationProcessLabels("init", []string{"B"})

			Expect(ts.Build(reg, part)).To(MatchError(partition.ErrNotFound))
		})

		It("detects a separate block for the initialisation sequence", func() {
			register("R", process.TypeRecruitment)
			register("M", process.TypeMortality)
			register("F", process.TypeMortality)
			ts := timestep.New("annual", []string{"R", "M", "F"})
			ts.SetInitialisationProcessLabels("init", []string{"M", "R"})

			Expect(ts.Build(reg, part)).To(Succeed())
			Expect(ts.Block()).To(Equal(timestep.Block{First: 1, Last: 2, Valid: true}))
			Expect(ts.InitialisationBlock("init")).To(Equal(timestep.Block{First: 0, Last: 0, Valid: true}))
			Expect(ts.InitialisationBlock("other")).To(Equal(ts.Block()))
			Expect(ts.InitialisationProcesses("init")).To(HaveLen(2))
			Expect(ts.InitialisationProcesses("other")).To(HaveLen(3))
		})
	})

	Describe("Execute", func() {
		It("delivers notifications in boundary order", func() {
			register("R", process.TypeRecruitment)
			register("M", process.TypeMortality)
			register("F", process.TypeMortality)
			register("G", process.TypeAgeing)
			ts := timestep.New("annual", []string{"R", "M", "F", "G"})
			Expect(ts.Build(reg, part)).To(Succeed())

			ts.SubscribeToYear(&recorder{name: "year", log: log})
			Expect(ts.SubscribeToBlock(&recorder{name: "block", log: log})).To(Succeed())
			proc, err := ts.SubscribeToProcess(&recorder{name: "proc", log: log}, []int{2001}, "F")
			Expect(err).NotTo(HaveOccurred())
			Expect(proc.Label()).To(Equal("F"))

			Expect(ts.Execute(2000)).To(Succeed())
			Expect(log.entries).To(Equal([]string{
				"pre:year@2000", "R@2000", "pre:block@2000", "M@2000", "F@2000", "post:block@2000", "G@2000", "post:year@2000",
			}))

			log.entries = nil
			Expect(ts.Execute(2001)).To(Succeed())
			Expect(log.entries).To(Equal([]string{
				"pre:year@2001", "R@2001", "pre:block@2001", "M@2001",
				"pre:proc@2001", "F@2001", "post:proc@2001", "post:block@2001",
				"G@2001", "post:year@2001",
			}))
		})

		It("sends exactly one block notification pair per year", func() {
			register("M", process.TypeMortality)
			ts := timestep.New("annual", []string{"M"})
			Expect(ts.Build(reg, part)).To(Succeed())
			Expect(ts.SubscribeToBlock(&recorder{name: "block", log: log})).To(Succeed())

			Expect(ts.Execute(2000)).To(Succeed())
			Expect(log.entries).To(Equal([]string{"pre:block@2000", "M@2000", "post:block@2000"}))
		})

		It("notifies executors in registration order", func() {
			register("M", process.TypeMortality)
			ts := timestep.New("annual", []string{"M"})
			Expect(ts.Build(reg, part)).To(Succeed())
			Expect(ts.SubscribeToBlock(&recorder{name: "first", log: log})).To(Succeed())
			Expect(ts.SubscribeToBlock(&recorder{name: "second", log: log})).To(Succeed())

			Expect(ts.Execute(2000)).To(Succeed())
			Expect(log.entries).To(Equal([]string{
				"pre:first@2000", "pre:second@2000", "M@2000", "post:first@2000", "post:second@2000",
			}))
		})

		It("fails when a process leaves a negative abundance", func() {
			s := register("bad", process.TypeMortality)
			s.apply = func(p *partition.Partition) {
				c, _ := p.Category("stock")
				c.Data[0] = -1
			}
			ts := timestep.New("annual", []string{"bad"})
			Expect(ts.Build(reg, part)).To(Succeed())

			Expect(ts.Execute(2000)).To(MatchError(partition.ErrNegativeAbundance))
		})
	})

	Describe("subscriptions", func() {
		It("rejects block subscriptions without a mortality block", func() {
			register("R", process.TypeRecruitment)
			ts := timestep.New("annual", []string{"R"})
			Expect(ts.Build(reg, part)).To(Succeed())

			Expect(ts.SubscribeToBlock(&recorder{log: log})).To(MatchError(timestep.ErrNoMortalityBlock))
		})

		It("rejects unknown process subscriptions", func() {
			register("R", process.TypeRecruitment)
			ts := timestep.New("annual", []string{"R"})
			Expect(ts.Build(reg, part)).To(Succeed())

			_, err := ts.SubscribeToProcess(&recorder{log: log}, []int{2000}, "M")
			Expect(err).To(MatchError(partition.ErrNotFound))
		})

		It("rejects subscriptions before build", func() {
			ts := timestep.New("annual", nil)
			Expect(ts.SubscribeToBlock(&recorder{log: log})).NotTo(Succeed())
		})
	})

	Describe("ExecuteForInitialisation", func() {
		It("runs the override sequence and only initialisation subscribers", func() {
			register("R", process.TypeRecruitment)
			register("M", process.TypeMortality)
			ts := timestep.New("annual", []string{"R", "M"})
			ts.SetInitialisationProcessLabels("init", []string{"M"})
			Expect(ts.Build(reg, part)).To(Succeed())

			ts.SubscribeToYear(&recorder{name: "year", log: log})
			ts.SubscribeToInitialisation(&recorder{name: "init", log: log})
			Expect(ts.SubscribeToBlock(&recorder{name: "block", log: log})).To(Succeed())

			Expect(ts.ExecuteForInitialisation("init")).To(Succeed())
			Expect(log.entries).To(Equal([]string{"pre:init@0", "M@0", "post:init@0"}))

			log.entries = nil
			Expect(ts.ExecuteForInitialisation("other")).To(Succeed())
			Expect(log.entries).To(Equal([]string{"pre:init@0", "R@0", "M@0", "post:init@0"}))
		})

		It("notifies the phase's block subscribers around its own block", func() {
			register("R", process.TypeRecruitment)
			register("M1", process.TypeMortality)
			register("A", process.TypeAgeing)
			register("M2", process.TypeMortality)
			register("M3", process.TypeMortality)
			ts := timestep.New("annual", []string{"R", "M1", "A"})
			ts.SetInitialisationProcessLabels("init", []string{"M1", "A", "M2", "M3"})
			Expect(ts.Build(reg, part)).To(Succeed())

			Expect(ts.SubscribeToInitialisationBlock("init", &recorder{name: "iblock", log: log})).To(Succeed())
			Expect(ts.SubscribeToBlock(&recorder{name: "block", log: log})).To(Succeed())

			Expect(ts.ExecuteForInitialisation("init")).To(Succeed())
			Expect(log.entries).To(Equal([]string{"M1@0", "A@0", "pre:iblock@0", "M2@0", "M3@0", "post:iblock@0"}))

			log.entries = nil
			Expect(ts.ExecuteForInitialisation("other")).To(Succeed())
			Expect(log.entries).To(Equal([]string{"R@0", "M1@0", "A@0"}))

			log.entries = nil
			Expect(ts.Execute(2000)).To(Succeed())
			Expect(log.entries).To(Equal([]string{"R@2000", "pre:block@2000", "M1@2000", "post:block@2000", "A@2000"}))
		})

		It("rejects initialisation block subscriptions without a mortality block", func() {
			register("R", process.TypeRecruitment)
			register("M", process.TypeMortality)
			ts := timestep.New("annual", []string{"R", "M"})
			ts.SetInitialisationProcessLabels("init", []string{"R"})
			Expect(ts.Build(reg, part)).To(Succeed())

			err := ts.SubscribeToInitialisationBlock("init", &recorder{log: log})
			Expect(err).To(MatchError(timestep.ErrNoMortalityBlock))
			Expect(ts.SubscribeToInitialisationBlock("other", &recorder{log: log})).To(Succeed())
		})
	})
})

var _ = Describe("Manager", func() {
	It("runs time steps in order and flattens initialisation processes", func() {
		log := &journal{}
		reg := process.NewRegistry()
		part, err := partition.New(1, 3, true, []string{"stock"})
		Expect(err).NotTo(HaveOccurred())
		for _, s := range []*stubProcess{
			{label: "R", typ: process.TypeRecruitment, log: log},
			{label: "M", typ: process.TypeMortality, log: log},
			{label: "G", typ: process.TypeAgeing, log: log},
		} {
			Expect(reg.Register(s)).To(Succeed())
		}

		m := timestep.NewManager()
		Expect(m.Add(timestep.New("summer", []string{"R", "M"}))).To(Succeed())
		Expect(m.Add(timestep.New("winter", []string{"G"}))).To(Succeed())
		Expect(m.Add(timestep.New("winter", nil))).NotTo(Succeed())
		Expect(m.Build(reg, part)).To(Succeed())

		Expect(m.Execute(1990)).To(Succeed())
		Expect(log.entries).To(Equal([]string{"R@1990", "M@1990", "G@1990"}))

		labels := []string{}
		for _, p := range m.InitialisationProcesses("init") {
			labels = append(labels, p.Label())
		}
		Expect(labels).To(Equal([]string{"R", "M", "G"}))

		_, err = m.Get("spring")
		Expect(err).To(MatchError(partition.ErrNotFound))
	})

	It("requires at least one time step", func() {
		part, _ := partition.New(1, 3, true, []string{"stock"})
		Expect(timestep.NewManager().Build(process.NewRegistry(), part)).NotTo(Succeed())
	})
})
