package process

import (
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/selectivity"
)

// Transition moves proportion * selectivity of each source category into
// its paired destination category, age by age. Maturation is a transition
// from immature to mature categories.
type Transition struct {
	base
	to          []string
	proportions []float64
	selectivity selectivity.Selectivity
	from        []*partition.Category
	dest        []*partition.Category
}

func NewTransition(label string, from, to []string, proportions []float64, sel selectivity.Selectivity) *Transition {
	if sel == nil {
		sel = selectivity.Constant{C: 1}
	}
	all := append(append([]string{}, from...), to...)
	return &Transition{
		base:        base{label: label, typ: TypeTransition, categoryLabels: all},
		to:          to,
		proportions: proportions,
		selectivity: sel,
	}
}

func (t *Transition) Validate() error {
	if err := t.validateBase(); err != nil {
		return err
	}
	n := len(t.categoryLabels) - len(t.to)
	if n != len(t.to) || n == 0 {
		return &partition.DimensionError{
			What:     "transition destination categories",
			Want:     n,
			Got:      len(t.to),
			Location: fmt.Sprintf("process %q", t.label),
		}
	}
	if len(t.proportions) != n {
		return &partition.DimensionError{
			What:     "transition proportions",
			Want:     n,
			Got:      len(t.proportions),
			Location: fmt.Sprintf("process %q", t.label),
		}
	}
	for _, p := range t.proportions {
		if p < 0 || p > 1 {
			return fmt.Errorf("process %q: proportions must be in [0, 1], got %f", t.label, p)
		}
	}
	return selectivity.Validate(t.selectivity)
}

func (t *Transition) Build(p *partition.Partition) error {
	if err := t.buildCategories(p); err != nil {
		return err
	}
	n := len(t.to)
	t.from = t.categories[:len(t.categories)-n]
	t.dest = t.categories[len(t.categories)-n:]
	return nil
}

func (t *Transition) Reset() {}

func (t *Transition) Execute(int, string) error {
	for k, src := range t.from {
		dst := t.dest[k]
		for i := range src.Data {
			moved := src.Data[i] * t.proportions[k] * t.selectivity.Value(src.MinAge+i)
			src.Data[i] -= moved
			dst.Data[i] += moved
		}
	}
	return nil
}
