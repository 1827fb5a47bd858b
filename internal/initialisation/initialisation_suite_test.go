package initialisation_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cohortsim/internal/derived"
	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
	"github.com/san-kum/cohortsim/internal/timestep"
)

func TestInitialisation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Initialisation Suite")
}

// world is a built single time step model used to drive phases.
type world struct {
	partition *partition.Partition
	registry  *process.Registry
	manager   *timestep.Manager
	ssb       *derived.Quantity
}

func newWorld(minAge, maxAge int, labels []string, procs ...process.Process) *world {
	p, err := partition.New(minAge, maxAge, true, labels)
	Expect(err).NotTo(HaveOccurred())

	reg := process.NewRegistry()
	order := make([]string, 0, len(procs))
	for _, proc := range procs {
		Expect(reg.Register(proc)).To(Succeed())
		order = append(order, proc.Label())
	}
	Expect(reg.Validate()).To(Succeed())
	Expect(reg.Build(p)).To(Succeed())

	m := timestep.NewManager()
	Expect(m.Add(timestep.New("annual", order))).To(Succeed())
	Expect(m.Build(reg, p)).To(Succeed())

	return &world{partition: p, registry: reg, manager: m}
}

// withSSB attaches a spawning biomass quantity recorded after every
// initialisation year.
func (w *world) withSSB(q *derived.Quantity) *world {
	Expect(q.Build(w.partition, 2000)).To(Succeed())
	ts, err := w.manager.Get("annual")
	Expect(err).NotTo(HaveOccurred())
	ts.SubscribeToInitialisation(q)
	q.SetInitialising(true)
	w.ssb = q
	return w
}

func (w *world) env() initialisation.Env {
	env := initialisation.Env{Partition: w.partition, Runner: w.manager}
	if w.ssb != nil {
		env.Derived = []initialisation.History{w.ssb}
	}
	return env
}

func (w *world) category(label string) *partition.Category {
	c, err := w.partition.Category(label)
	Expect(err).NotTo(HaveOccurred())
	return c
}

// lagged is a recruitment stand-in that only reports a spawning biomass lag.
type lagged struct {
	offset int
}

func (l *lagged) Label() string                    { return "lagged" }
func (l *lagged) Type() process.Type               { return process.TypeRecruitment }
func (l *lagged) Validate() error                  { return nil }
func (l *lagged) Build(*partition.Partition) error { return nil }
func (l *lagged) Reset()                           {}
func (l *lagged) Execute(int, string) error        { return nil }
func (l *lagged) SSBOffset() int                   { return l.offset }

// plusGroupGrowth multiplies every plus group by rate each year.
type plusGroupGrowth struct {
	rate      float64
	partition *partition.Partition
}

func (g *plusGroupGrowth) Label() string      { return "growth" }
func (g *plusGroupGrowth) Type() process.Type { return process.TypeTransition }
func (g *plusGroupGrowth) Validate() error    { return nil }
func (g *plusGroupGrowth) Reset()             {}

func (g *plusGroupGrowth) Build(p *partition.Partition) error {
	g.partition = p
	return nil
}

func (g *plusGroupGrowth) Execute(int, string) error {
	last := g.partition.AgeSpread() - 1
	g.partition.Each(func(c *partition.Category) { c.Data[last] *= g.rate })
	return nil
}

// plusGroupTrace records a category's plus group around each year.
type plusGroupTrace struct {
	category      *partition.Category
	before, after []float64
}

func (t *plusGroupTrace) PreExecute(int, string) {
	t.before = append(t.before, t.category.Data[len(t.category.Data)-1])
}

func (t *plusGroupTrace) PostExecute(int, string) {
	t.after = append(t.after, t.category.Data[len(t.category.Data)-1])
}

type countingRecorder struct {
	years     map[string]int
	variances []float64
}

func (c *countingRecorder) InitialisationYear(phase string) { c.years[phase]++ }

func (c *countingRecorder) ConvergenceVariance(_ string, v float64) {
	c.variances = append(c.variances, v)
}
