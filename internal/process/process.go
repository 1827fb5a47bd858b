// Package process defines the units of per-year state mutation applied to a
// partition: mortality, recruitment, ageing and category transitions.
//
// Processes hold references to the categories they act on and never touch
// any other category. A [Registry] resolves processes by label for time steps.
package process

import (
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
)

// InitialisationYear is the year passed to Execute while an initialisation
// phase drives the annual cycle. Dated years are always positive.
const InitialisationYear = 0

// Type tags a process for mortality block detection.
type Type int

const (
	TypeUnknown Type = iota
	TypeMortality
	TypeRecruitment
	TypeAgeing
	TypeTransition
)

func (t Type) String() string {
	switch t {
	case TypeMortality:
		return "mortality"
	case TypeRecruitment:
		return "recruitment"
	case TypeAgeing:
		return "ageing"
	case TypeTransition:
		return "transition"
	default:
		return "unknown"
	}
}

type Process interface {
	Label() string
	Type() Type
	// Validate checks parameters before any category is resolved.
	Validate() error
	// Build resolves category references against the partition.
	Build(p *partition.Partition) error
	// Reset restores per-iteration state such as rescaled parameters.
	Reset()
	Execute(year int, timeStep string) error
}

// PartitionScaler is implemented by recruitment processes that derive R0
// from a biomass target at the end of an initialisation phase.
type PartitionScaler interface {
	Process
	// ScalingPhase is the initialisation phase that rescales, or "" when
	// the process is not configured with a biomass target.
	ScalingPhase() string
	ScalesInPhase(phase string) bool
	// ScalePartition rescales and returns the factor applied.
	ScalePartition() (float64, error)
}

// SSBLagged is implemented by processes that read spawning biomass from an
// earlier year.
type SSBLagged interface {
	SSBOffset() int
}

// base carries the label, type and category references shared by all
// concrete processes.
type base struct {
	label          string
	typ            Type
	categoryLabels []string
	categories     []*partition.Category
}

func (b *base) Label() string { return b.label }
func (b *base) Type() Type    { return b.typ }

func (b *base) validateBase() error {
	if b.label == "" {
		return fmt.Errorf("%s process: label is required", b.typ)
	}
	if len(b.categoryLabels) == 0 {
		return fmt.Errorf("process %q: at least one category is required", b.label)
	}
	return nil
}

func (b *base) buildCategories(p *partition.Partition) error {
	b.categories = b.categories[:0]
	for i, label := range b.categoryLabels {
		c, err := p.Category(label)
		if err != nil {
			return &partition.ReferenceError{
				Kind:     "category",
				Label:    label,
				Location: fmt.Sprintf("process %q categories[%d]", b.label, i),
			}
		}
		b.categories = append(b.categories, c)
	}
	return nil
}

// yearValue looks a year up in a per-year table, falling back to def.
func yearValue(table map[int]float64, year int, def float64) float64 {
	if v, ok := table[year]; ok {
		return v
	}
	return def
}
