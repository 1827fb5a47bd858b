package process

import (
	"fmt"
	"math"

	"github.com/san-kum/cohortsim/internal/partition"
)

// recruits holds what both recruitment processes share: how new fish are
// split across categories and which age they enter at.
type recruits struct {
	base
	proportions []float64
	age         int
	ageIndex    int
}

func (r *recruits) validateRecruits() error {
	if err := r.validateBase(); err != nil {
		return err
	}
	if len(r.proportions) != len(r.categoryLabels) {
		return &partition.DimensionError{
			What:     "recruitment proportions",
			Want:     len(r.categoryLabels),
			Got:      len(r.proportions),
			Location: fmt.Sprintf("process %q", r.label),
		}
	}
	sum := 0.0
	for _, p := range r.proportions {
		if p < 0 {
			return fmt.Errorf("process %q: proportions must be non-negative", r.label)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-5 {
		return fmt.Errorf("process %q: proportions sum to %f, expected 1", r.label, sum)
	}
	return nil
}

func (r *recruits) buildRecruits(p *partition.Partition) error {
	if err := r.buildCategories(p); err != nil {
		return err
	}
	if r.age < 0 {
		r.age = p.MinAge()
	}
	if r.age < p.MinAge() || r.age > p.MaxAge() {
		return &partition.DimensionError{
			What:     "recruitment age",
			Want:     p.MinAge(),
			Got:      r.age,
			Location: fmt.Sprintf("process %q", r.label),
		}
	}
	r.ageIndex = r.age - p.MinAge()
	return nil
}

func (r *recruits) distribute(total float64) {
	for i, c := range r.categories {
		c.Data[r.ageIndex] += total * r.proportions[i]
	}
}

// ConstantRecruitment adds R0 new individuals every year.
type ConstantRecruitment struct {
	recruits
	r0 float64
}

// NewConstantRecruitment recruits at age; a negative age means the
// partition's minimum age.
func NewConstantRecruitment(label string, categories []string, proportions []float64, r0 float64, age int) *ConstantRecruitment {
	return &ConstantRecruitment{
		recruits: recruits{
			base:        base{label: label, typ: TypeRecruitment, categoryLabels: categories},
			proportions: proportions,
			age:         age,
		},
		r0: r0,
	}
}

func (r *ConstantRecruitment) Validate() error {
	if err := r.validateRecruits(); err != nil {
		return err
	}
	if r.r0 < 0 {
		return fmt.Errorf("process %q: r0 must be non-negative, got %f", r.label, r.r0)
	}
	return nil
}

func (r *ConstantRecruitment) Build(p *partition.Partition) error { return r.buildRecruits(p) }

func (r *ConstantRecruitment) Reset() {}

func (r *ConstantRecruitment) Execute(int, string) error {
	r.distribute(r.r0)
	return nil
}

// SSBSource supplies spawning biomass history to stock-recruit processes.
type SSBSource interface {
	Label() string
	Value(year int) (float64, error)
	LastInitialisationValue() (float64, error)
}

// BevertonHolt recruits R0 during initialisation and R0 * YCS * SR(SSB/B0)
// in dated years, reading spawning biomass SSBOffset years back.
//
// When B0 is given instead of R0, R0 starts at 1 and ScalePartition rescales
// both R0 and the partition at the end of the named initialisation phase so
// that spawning biomass matches B0.
type BevertonHolt struct {
	recruits
	r0         float64
	b0         float64
	steepness  float64
	ssbOffset  int
	ycs        map[int]float64
	b0Phase    string
	ssb        SSBSource
	partition  *partition.Partition
	currentR0  float64
	currentB0  float64
	b0Resolved bool
}

type BevertonHoltParams struct {
	R0          float64
	B0          float64
	B0Phase     string
	Steepness   float64
	SSBOffset   int
	YCS         map[int]float64
	Proportions []float64
	Age         int
}

func NewBevertonHolt(label string, categories []string, params BevertonHoltParams, ssb SSBSource) *BevertonHolt {
	ycs := params.YCS
	if ycs == nil {
		ycs = make(map[int]float64)
	}
	return &BevertonHolt{
		recruits: recruits{
			base:        base{label: label, typ: TypeRecruitment, categoryLabels: categories},
			proportions: params.Proportions,
			age:         params.Age,
		},
		r0:        params.R0,
		b0:        params.B0,
		steepness: params.Steepness,
		ssbOffset: params.SSBOffset,
		ycs:       ycs,
		b0Phase:   params.B0Phase,
		ssb:       ssb,
	}
}

func (r *BevertonHolt) Validate() error {
	if err := r.validateRecruits(); err != nil {
		return err
	}
	switch {
	case r.r0 > 0 && r.b0 > 0:
		return fmt.Errorf("process %q: specify r0 or b0, not both", r.label)
	case r.r0 <= 0 && r.b0 <= 0:
		return fmt.Errorf("process %q: one of r0 or b0 must be positive", r.label)
	case r.b0 > 0 && r.b0Phase == "":
		return fmt.Errorf("process %q: b0 requires b0_initialisation_phase", r.label)
	}
	if r.steepness <= 0.2 || r.steepness > 1 {
		return fmt.Errorf("process %q: steepness must be in (0.2, 1], got %f", r.label, r.steepness)
	}
	if r.ssbOffset < 0 {
		return fmt.Errorf("process %q: ssb_offset must be non-negative", r.label)
	}
	if r.ssb == nil {
		return fmt.Errorf("process %q: spawning biomass derived quantity is required", r.label)
	}
	return nil
}

func (r *BevertonHolt) Build(p *partition.Partition) error {
	r.partition = p
	if err := r.buildRecruits(p); err != nil {
		return err
	}
	r.Reset()
	return nil
}

func (r *BevertonHolt) Reset() {
	r.currentR0 = r.r0
	r.currentB0 = r.b0
	r.b0Resolved = r.b0 > 0
	if r.r0 <= 0 {
		r.currentR0 = 1
	}
}

func (r *BevertonHolt) R0() float64 { return r.currentR0 }
func (r *BevertonHolt) B0() float64 { return r.currentB0 }

func (r *BevertonHolt) SSBOffset() int { return r.ssbOffset }

func (r *BevertonHolt) ScalingPhase() string {
	if r.b0 <= 0 {
		return ""
	}
	return r.b0Phase
}

func (r *BevertonHolt) ScalesInPhase(phase string) bool {
	return r.b0 > 0 && r.b0Phase == phase
}

// ScalePartition multiplies R0 and every category by B0 / SSB, where SSB is
// the last value recorded during initialisation.
func (r *BevertonHolt) ScalePartition() (float64, error) {
	ssb, err := r.ssb.LastInitialisationValue()
	if err != nil {
		return 0, fmt.Errorf("process %q: %w", r.label, err)
	}
	if ssb <= 0 {
		return 0, fmt.Errorf("process %q: cannot scale to b0 from spawning biomass %g", r.label, ssb)
	}
	scale := r.currentB0 / ssb
	r.currentR0 *= scale
	r.partition.Scale(scale)
	return scale, nil
}

func (r *BevertonHolt) Execute(year int, _ string) error {
	if year == InitialisationYear {
		r.distribute(r.currentR0)
		return nil
	}

	if !r.b0Resolved {
		b0, err := r.ssb.LastInitialisationValue()
		if err != nil {
			return fmt.Errorf("process %q: b0 from initialisation: %w", r.label, err)
		}
		r.currentB0 = b0
		r.b0Resolved = true
	}

	ssb, err := r.ssb.Value(year - r.ssbOffset)
	if err != nil {
		return fmt.Errorf("process %q: %w", r.label, err)
	}
	r.distribute(r.currentR0 * yearValue(r.ycs, year, 1) * r.stockRecruit(ssb))
	return nil
}

func (r *BevertonHolt) stockRecruit(ssb float64) float64 {
	if r.currentB0 <= 0 {
		return 1
	}
	ratio := ssb / r.currentB0
	h := r.steepness
	denom := 1 - ((5*h-1)/(4*h))*(1-ratio)
	if denom <= 0 {
		return 0
	}
	return ratio / denom
}
