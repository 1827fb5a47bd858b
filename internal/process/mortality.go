package process

import (
	"fmt"
	"math"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/selectivity"
)

// ConstantExploitation removes a fixed exploitation rate U, scaled by
// selectivity, from every age of its categories.
type ConstantExploitation struct {
	base
	u           float64
	uByYear     map[int]float64
	selectivity selectivity.Selectivity
}

func NewConstantExploitation(label string, categories []string, u float64, sel selectivity.Selectivity) *ConstantExploitation {
	if sel == nil {
		sel = selectivity.Constant{C: 1}
	}
	return &ConstantExploitation{
		base:        base{label: label, typ: TypeMortality, categoryLabels: categories},
		u:           u,
		uByYear:     make(map[int]float64),
		selectivity: sel,
	}
}

// SetYearRate overrides U for one dated year.
func (m *ConstantExploitation) SetYearRate(year int, u float64) { m.uByYear[year] = u }

func (m *ConstantExploitation) Validate() error {
	if err := m.validateBase(); err != nil {
		return err
	}
	if m.u < 0 || m.u > 1 {
		return fmt.Errorf("process %q: u must be in [0, 1], got %f", m.label, m.u)
	}
	for year, u := range m.uByYear {
		if u < 0 || u > 1 {
			return fmt.Errorf("process %q: u in year %d must be in [0, 1], got %f", m.label, year, u)
		}
	}
	return selectivity.Validate(m.selectivity)
}

func (m *ConstantExploitation) Build(p *partition.Partition) error { return m.buildCategories(p) }

func (m *ConstantExploitation) Reset() {}

func (m *ConstantExploitation) Execute(year int, _ string) error {
	u := yearValue(m.uByYear, year, m.u)
	for _, c := range m.categories {
		for i := range c.Data {
			c.Data[i] *= 1 - u*m.selectivity.Value(c.MinAge+i)
		}
	}
	return nil
}

// NaturalMortality applies exp(-M * ratio * selectivity). Ratio is the share
// of the annual rate applied in this time step.
type NaturalMortality struct {
	base
	m           float64
	ratio       float64
	selectivity selectivity.Selectivity
}

func NewNaturalMortality(label string, categories []string, m, ratio float64, sel selectivity.Selectivity) *NaturalMortality {
	if sel == nil {
		sel = selectivity.Constant{C: 1}
	}
	return &NaturalMortality{
		base:        base{label: label, typ: TypeMortality, categoryLabels: categories},
		m:           m,
		ratio:       ratio,
		selectivity: sel,
	}
}

func (n *NaturalMortality) Validate() error {
	if err := n.validateBase(); err != nil {
		return err
	}
	if n.m < 0 {
		return fmt.Errorf("process %q: m must be non-negative, got %f", n.label, n.m)
	}
	if n.ratio < 0 || n.ratio > 1 {
		return fmt.Errorf("process %q: time step ratio must be in [0, 1], got %f", n.label, n.ratio)
	}
	return selectivity.Validate(n.selectivity)
}

func (n *NaturalMortality) Build(p *partition.Partition) error { return n.buildCategories(p) }

func (n *NaturalMortality) Reset() {}

func (n *NaturalMortality) Execute(int, string) error {
	for _, c := range n.categories {
		for i := range c.Data {
			c.Data[i] *= math.Exp(-n.m * n.ratio * n.selectivity.Value(c.MinAge+i))
		}
	}
	return nil
}
