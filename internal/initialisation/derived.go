package initialisation

import (
	"log/slog"
	"math"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
)

const (
	// PlusGroupTolerance is the relative year-over-year plus-group change
	// below which the Derived strategy stops iterating.
	PlusGroupTolerance = 0.005
	// MaxPlusGroupGrowth caps the one-year plus-group growth ratio.
	MaxPlusGroupGrowth = 0.9
	// DefaultMaxPlusGroupYears bounds the plus-group convergence loop.
	DefaultMaxPlusGroupYears = 500
)

// Derived fills every age class by running the cycle once per age, then
// solves the plus group analytically from one trial year and iterates until
// it settles.
type Derived struct {
	base
	maxYears  int
	converged bool
}

func NewDerived(label string, maxPlusGroupYears int) *Derived {
	if maxPlusGroupYears <= 0 {
		maxPlusGroupYears = DefaultMaxPlusGroupYears
	}
	return &Derived{base: base{label: label}, maxYears: maxPlusGroupYears}
}

func (d *Derived) Type() string { return "derived" }

func (d *Derived) Validate() error { return d.validateBase() }

func (d *Derived) Build(env Env) error { return d.buildBase(env) }

func (d *Derived) Execute() error {
	d.yearsRun = 0
	d.converged = false
	p := d.env.Partition

	years := p.AgeSpread() - 1
	if recruitmentBeforeAgeing(d.env.Runner.InitialisationProcesses(d.label)) {
		years--
	}
	if years < 0 {
		years = 0
	}
	if err := d.advance(years); err != nil {
		return err
	}

	if p.PlusGroup() {
		if err := d.correctPlusGroup(); err != nil {
			return err
		}
		if err := d.settlePlusGroup(); err != nil {
			return err
		}
	} else {
		d.converged = true
	}

	return d.advance(d.ssbOffset())
}

// correctPlusGroup runs one trial year, restores the partition and
// scales each plus group by 1/(1-c), c being the clamped growth ratio.
// Derived values recorded during the trial year are dropped with it.
func (d *Derived) correctPlusGroup() error {
	p := d.env.Partition
	snap, err := p.Snapshot()
	if err != nil {
		return err
	}
	recorded := make([]int, len(d.env.Derived))
	for i, h := range d.env.Derived {
		recorded[i] = h.InitialisationLen()
	}
	if err := d.advance(1); err != nil {
		return err
	}

	last := p.AgeSpread() - 1
	growth := make(map[string]float64)
	p.Each(func(c *partition.Category) {
		growth[c.Name] = PlusGroupGrowth(snap.At(c.Name, last), c.Data[last])
	})

	if err := snap.Restore(p); err != nil {
		return err
	}
	for i, h := range d.env.Derived {
		h.TruncateInitialisationValues(recorded[i])
	}
	p.Each(func(c *partition.Category) {
		c.Data[last] *= 1 / (1 - growth[c.Name])
	})
	return nil
}

// settlePlusGroup advances one year at a time until every plus group
// changes by less than PlusGroupTolerance, or maxYears is reached.
func (d *Derived) settlePlusGroup() error {
	p := d.env.Partition
	last := p.AgeSpread() - 1
	labels := p.Labels()
	prev := make([]float64, len(labels))

	for i := 0; i < d.maxYears; i++ {
		for k, label := range labels {
			c, _ := p.Category(label)
			prev[k] = c.Data[last]
		}
		if err := d.advance(1); err != nil {
			return err
		}
		settled := true
		for k, label := range labels {
			c, _ := p.Category(label)
			if !withinTolerance(prev[k], c.Data[last]) {
				settled = false
				break
			}
		}
		if settled {
			d.converged = true
			return nil
		}
	}

	d.env.Logger.Warn("plus group did not settle",
		slog.String("phase", d.label),
		slog.Int("max_years", d.maxYears),
	)
	return nil
}

func withinTolerance(prev, cur float64) bool {
	if prev == 0 {
		return cur == 0
	}
	return math.Abs(cur-prev)/prev < PlusGroupTolerance
}

// PlusGroupGrowth is clamp(after/before - 1, 0, MaxPlusGroupGrowth). An
// empty plus group has no growth.
func PlusGroupGrowth(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	c := after/before - 1
	return math.Max(0, math.Min(MaxPlusGroupGrowth, c))
}

// recruitmentBeforeAgeing reports whether the first recruitment process runs
// before the first ageing process in the cycle.
func recruitmentBeforeAgeing(procs []process.Process) bool {
	recruitment, ageing := -1, -1
	for i, p := range procs {
		switch p.Type() {
		case process.TypeRecruitment:
			if recruitment < 0 {
				recruitment = i
			}
		case process.TypeAgeing:
			if ageing < 0 {
				ageing = i
			}
		}
	}
	return recruitment >= 0 && ageing >= 0 && recruitment < ageing
}

func (d *Derived) Report() Report {
	return Report{Label: d.label, Type: d.Type(), YearsRun: d.yearsRun, Converged: d.converged}
}
