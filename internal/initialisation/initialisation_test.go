package initialisation_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cohortsim/internal/derived"
	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
)

const survival = 0.2

func standardCycle() []process.Process {
	return []process.Process{
		process.NewAgeing("ageing", []string{"stock"}),
		process.NewConstantRecruitment("recruitment", []string{"stock"}, []float64{1}, 1000, -1),
		process.NewNaturalMortality("m", []string{"stock"}, survival, 1, nil),
	}
}

var _ = Describe("Iterative", func() {
	It("never stops early when lambda is zero", func() {
		w := newWorld(1, 6, []string{"stock"}, standardCycle()...)
		rec := &countingRecorder{years: map[string]int{}}
		env := w.env()
		env.Recorder = rec

		phase := initialisation.NewIterative("init", 12, 0, []int{3, 6, 12})
		Expect(phase.Validate()).To(Succeed())
		Expect(phase.Build(env)).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(phase.Report().YearsRun).To(Equal(12))
		Expect(phase.Report().Converged).To(BeFalse())
		Expect(rec.years["init"]).To(Equal(12))
		Expect(rec.variances).To(HaveLen(3))
	})

	It("runs past the last check year up to years", func() {
		w := newWorld(1, 6, []string{"stock"}, standardCycle()...)
		rec := &countingRecorder{years: map[string]int{}}
		env := w.env()
		env.Recorder = rec

		phase := initialisation.NewIterative("init", 12, 0, []int{3, 6})
		Expect(phase.Validate()).To(Succeed())
		Expect(phase.Build(env)).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(phase.Report().YearsRun).To(Equal(12))
		Expect(rec.years["init"]).To(Equal(12))
		Expect(rec.variances).To(HaveLen(2))
	})

	It("stops after the first check year when lambda is infinite", func() {
		w := newWorld(1, 6, []string{"stock"}, standardCycle()...)
		phase := initialisation.NewIterative("init", 20, math.Inf(1), []int{4, 10, 20})
		Expect(phase.Validate()).To(Succeed())
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(phase.Report().YearsRun).To(Equal(4))
		Expect(phase.Report().Converged).To(BeTrue())
	})

	It("runs exactly years without convergence checks", func() {
		w := newWorld(1, 6, []string{"stock"}, standardCycle()...)
		phase := initialisation.NewIterative("init", 7, 0.01, nil)
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(phase.Report().YearsRun).To(Equal(7))
		Expect(w.category("stock").Data[0]).To(BeNumerically("~", 1000*math.Exp(-survival), 1e-9))
	})

	It("converges once the partition stops changing", func() {
		w := newWorld(1, 4, []string{"stock"}, standardCycle()...)
		phase := initialisation.NewIterative("init", 400, 1e-6, []int{50, 100, 200, 400})
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(phase.Report().Converged).To(BeTrue())
		Expect(phase.Report().YearsRun).To(BeNumerically("<", 400))
		Expect(phase.Report().Variance).To(BeNumerically("<", 1e-6))
	})

	It("rescales to the B0 target and runs one extra year", func() {
		ssb := derived.NewAbundance("ssb", "annual", []string{"stock"}, nil)
		bh := process.NewBevertonHolt("recruitment", []string{"stock"}, process.BevertonHoltParams{
			B0:          5000,
			B0Phase:     "init",
			Steepness:   0.75,
			Proportions: []float64{1},
			Age:         -1,
		}, ssb)
		w := newWorld(1, 8, []string{"stock"},
			process.NewAgeing("ageing", []string{"stock"}),
			bh,
			process.NewNaturalMortality("m", []string{"stock"}, survival, 1, nil),
		).withSSB(ssb)

		phase := initialisation.NewIterative("init", 300, 0, nil)
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(phase.Report().YearsRun).To(Equal(301))
		last, err := ssb.LastInitialisationValue()
		Expect(err).NotTo(HaveOccurred())
		Expect(last).To(BeNumerically("~", 5000, 1e-6))
		Expect(bh.R0()).To(BeNumerically(">", 1))
	})

	It("rescales lagged spawning biomass with the partition", func() {
		ssb := derived.NewAbundance("ssb", "annual", []string{"stock"}, nil)
		bh := process.NewBevertonHolt("recruitment", []string{"stock"}, process.BevertonHoltParams{
			B0:          5000,
			B0Phase:     "init",
			Steepness:   0.75,
			SSBOffset:   3,
			Proportions: []float64{1},
			Age:         -1,
		}, ssb)
		w := newWorld(1, 8, []string{"stock"},
			process.NewAgeing("ageing", []string{"stock"}),
			bh,
			process.NewNaturalMortality("m", []string{"stock"}, survival, 1, nil),
		).withSSB(ssb)

		phase := initialisation.NewIterative("init", 300, 0, nil)
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		for year := 1997; year <= 1999; year++ {
			v, err := ssb.Value(year)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNumerically("~", 5000, 1e-6), "year %d", year)
		}
	})

	It("rejects inconsistent configuration", func() {
		Expect(initialisation.NewIterative("init", 0, 0, nil).Validate()).NotTo(Succeed())
		Expect(initialisation.NewIterative("init", 10, 0, []int{5, 3}).Validate()).NotTo(Succeed())
		Expect(initialisation.NewIterative("init", 10, 0, []int{3, 3}).Validate()).NotTo(Succeed())
		Expect(initialisation.NewIterative("init", 10, 0, []int{20}).Validate()).NotTo(Succeed())
		Expect(initialisation.NewIterative("init", 10, -1, nil).Validate()).NotTo(Succeed())
		Expect(initialisation.NewIterative("", 10, 0, nil).Validate()).NotTo(Succeed())
		Expect(initialisation.NewIterative("init", 0, 0, []int{5}).Validate()).NotTo(Succeed())
	})
})

var _ = Describe("Derived", func() {
	It("corrects the plus group from the one-year growth ratio", func() {
		c := initialisation.PlusGroupGrowth(100, 150)
		Expect(c).To(BeNumerically("~", 0.5, 1e-12))
		Expect(100 * (1 / (1 - c))).To(BeNumerically("~", 200, 1e-9))
	})

	It("scales the plus group by 1/(1-c) after a discarded year", func() {
		w := newWorld(1, 3, []string{"stock"}, &plusGroupGrowth{rate: 1.5})
		copy(w.category("stock").Data, []float64{0, 0, 100 / 2.25})
		trace := &plusGroupTrace{category: w.category("stock")}
		ts, err := w.manager.Get("annual")
		Expect(err).NotTo(HaveOccurred())
		ts.SubscribeToInitialisation(trace)

		phase := initialisation.NewDerived("init", 1)
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		// 2 fill years, 1 discarded year, 1 settle year
		Expect(trace.before).To(HaveLen(4))
		Expect(trace.before[2]).To(BeNumerically("~", 100, 1e-9))
		Expect(trace.after[2]).To(BeNumerically("~", 150, 1e-9))
		Expect(trace.before[3]).To(BeNumerically("~", 200, 1e-9))
	})

	It("drops derived values recorded in the discarded year", func() {
		ssb := derived.NewAbundance("ssb", "annual", []string{"stock"}, nil)
		w := newWorld(1, 5, []string{"stock"}, standardCycle()...).withSSB(ssb)
		phase := initialisation.NewDerived("init", 0)
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(ssb.InitialisationValues()).To(HaveLen(phase.Report().YearsRun - 1))
		last, err := ssb.LastInitialisationValue()
		Expect(err).NotTo(HaveOccurred())
		Expect(last).To(BeNumerically("~", w.partition.Total(), 1e-9))
	})

	It("clamps the growth ratio", func() {
		Expect(initialisation.PlusGroupGrowth(100, 50)).To(Equal(0.0))
		Expect(initialisation.PlusGroupGrowth(100, 1000)).To(Equal(initialisation.MaxPlusGroupGrowth))
		Expect(initialisation.PlusGroupGrowth(0, 10)).To(Equal(0.0))
	})

	It("reaches the equilibrium partition", func() {
		w := newWorld(1, 5, []string{"stock"}, standardCycle()...)
		phase := initialisation.NewDerived("init", 0)
		Expect(phase.Validate()).To(Succeed())
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		s := math.Exp(-survival)
		data := w.category("stock").Data
		for age := 1; age <= 4; age++ {
			Expect(data[age-1]).To(BeNumerically("~", 1000*math.Pow(s, float64(age)), 1e-6))
		}
		plus := 1000 * math.Pow(s, 5) / (1 - s)
		Expect(math.Abs(data[4]-plus) / plus).To(BeNumerically("<", 0.05))
		Expect(phase.Report().Converged).To(BeTrue())
	})

	It("runs one fewer year when recruitment precedes ageing", func() {
		first := newWorld(1, 5, []string{"stock"},
			process.NewAgeing("ageing", []string{"stock"}),
			process.NewConstantRecruitment("recruitment", []string{"stock"}, []float64{1}, 1000, -1),
		)
		second := newWorld(1, 5, []string{"stock"},
			process.NewConstantRecruitment("recruitment", []string{"stock"}, []float64{1}, 1000, -1),
			process.NewAgeing("ageing", []string{"stock"}),
		)

		a := initialisation.NewDerived("init", 1)
		b := initialisation.NewDerived("init", 1)
		Expect(a.Build(first.env())).To(Succeed())
		Expect(b.Build(second.env())).To(Succeed())
		Expect(a.Execute()).To(Succeed())
		Expect(b.Execute()).To(Succeed())

		// age spread 5: 4 years vs 3, then one trial and one settle year each
		Expect(a.Report().YearsRun).To(Equal(6))
		Expect(b.Report().YearsRun).To(Equal(5))
	})

	It("advances the spawning biomass lag after settling", func() {
		w := newWorld(1, 5, []string{"stock"}, append(standardCycle(), &lagged{offset: 3})...)
		phase := initialisation.NewDerived("init", 1)
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		// 4 fill years, 1 trial, 1 settle, 3 lag
		Expect(phase.Report().YearsRun).To(Equal(9))
	})
})

var _ = Describe("Cinitial", func() {
	It("redistributes a group target across the existing composition", func() {
		w := newWorld(1, 2, []string{"male", "female"},
			process.NewNaturalMortality("m", []string{"male", "female"}, survival, 1, nil),
		)
		male, female := w.category("male"), w.category("female")
		copy(male.Data, []float64{5, 1})
		copy(female.Data, []float64{15, 3})

		phase := initialisation.NewCinitial("init", []string{"male+female"}, [][]float64{{30, 8}})
		Expect(phase.Validate()).To(Succeed())
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(male.Data[0]).To(BeNumerically("~", 7.5, 1e-12))
		Expect(female.Data[0]).To(BeNumerically("~", 22.5, 1e-12))
		Expect(male.Data[1]).To(BeNumerically("~", 2, 1e-12))
		Expect(female.Data[1]).To(BeNumerically("~", 6, 1e-12))
		Expect(phase.Report().YearsRun).To(Equal(1))
	})

	It("leaves an empty group unchanged", func() {
		w := newWorld(1, 2, []string{"stock"},
			process.NewNaturalMortality("m", []string{"stock"}, survival, 1, nil),
		)
		phase := initialisation.NewCinitial("init", []string{"stock"}, [][]float64{{30, 8}})
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())
		Expect(w.category("stock").Data).To(Equal([]float64{0, 0}))
	})

	It("keeps derived values from the one year and pads them over the lag", func() {
		ssb := derived.NewAbundance("ssb", "annual", []string{"stock"}, nil)
		w := newWorld(1, 2, []string{"stock"},
			process.NewNaturalMortality("m", []string{"stock"}, survival, 1, nil),
			&lagged{offset: 2},
		).withSSB(ssb)
		copy(w.category("stock").Data, []float64{1, 1})

		phase := initialisation.NewCinitial("init", []string{"stock"}, [][]float64{{100, 50}})
		Expect(phase.Build(w.env())).To(Succeed())
		Expect(phase.Execute()).To(Succeed())

		Expect(w.category("stock").Data).To(Equal([]float64{100, 50}))
		values := ssb.InitialisationValues()
		Expect(values).To(HaveLen(3))
		Expect(values[0]).To(BeNumerically("~", 150*math.Exp(-survival), 1e-9))
		Expect(values[2]).To(Equal(values[0]))
	})

	It("fails on table shape mismatches", func() {
		w := newWorld(1, 3, []string{"male", "female"},
			process.NewNaturalMortality("m", []string{"male"}, survival, 1, nil),
		)

		rows := initialisation.NewCinitial("init", []string{"male", "female"}, [][]float64{{1, 2, 3}})
		Expect(rows.Validate()).To(MatchError(partition.ErrDimensionMismatch))

		cols := initialisation.NewCinitial("init", []string{"male"}, [][]float64{{1, 2}})
		Expect(cols.Validate()).To(Succeed())
		Expect(cols.Build(w.env())).To(MatchError(partition.ErrDimensionMismatch))

		unknown := initialisation.NewCinitial("init", []string{"male+juvenile"}, [][]float64{{1, 2, 3}})
		Expect(unknown.Build(w.env())).To(MatchError(partition.ErrNotFound))
	})
})
