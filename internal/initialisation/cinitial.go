package initialisation

import (
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
)

// Cinitial scales the partition so each category group matches a table of
// target abundances by age, keeping the relative composition within the
// group. It then runs one year so derived quantities have a value, and puts
// the abundances back as they were before that year.
type Cinitial struct {
	base
	groups []string
	table  [][]float64

	combined *partition.CombinedCategories
}

// NewCinitial takes one table row per group label; a label may join
// several categories with "+". Rows hold one target per age.
func NewCinitial(label string, groups []string, table [][]float64) *Cinitial {
	return &Cinitial{base: base{label: label}, groups: groups, table: table}
}

func (ci *Cinitial) Type() string { return "cinitial" }

func (ci *Cinitial) Validate() error {
	if err := ci.validateBase(); err != nil {
		return err
	}
	if len(ci.groups) == 0 {
		return fmt.Errorf("initialisation phase %q: at least one category group is required", ci.label)
	}
	if len(ci.table) != len(ci.groups) {
		return &partition.DimensionError{
			What:     "cinitial table rows",
			Want:     len(ci.groups),
			Got:      len(ci.table),
			Location: fmt.Sprintf("initialisation phase %q", ci.label),
		}
	}
	for i, row := range ci.table {
		for _, v := range row {
			if v < 0 {
				return fmt.Errorf("initialisation phase %q: table row %d holds a negative target", ci.label, i)
			}
		}
	}
	return nil
}

func (ci *Cinitial) Build(env Env) error {
	if err := ci.buildBase(env); err != nil {
		return err
	}
	spread := env.Partition.AgeSpread()
	for i, row := range ci.table {
		if len(row) != spread {
			return &partition.DimensionError{
				What:     "cinitial table columns",
				Want:     spread,
				Got:      len(row),
				Location: fmt.Sprintf("initialisation phase %q table row %d", ci.label, i),
			}
		}
	}
	combined, err := partition.NewCombinedCategories(env.Partition, ci.groups)
	if err != nil {
		return fmt.Errorf("initialisation phase %q: %w", ci.label, err)
	}
	ci.combined = combined
	return nil
}

func (ci *Cinitial) Execute() error {
	ci.yearsRun = 0
	ci.redistribute()

	snap, err := ci.env.Partition.Snapshot()
	if err != nil {
		return err
	}
	if err := ci.advance(1); err != nil {
		return err
	}
	if err := snap.Restore(ci.env.Partition); err != nil {
		return err
	}

	lag := ci.ssbOffset()
	for _, h := range ci.env.Derived {
		h.PadInitialisationValues(lag + 1)
	}
	return nil
}

// redistribute multiplies every member of a group at each age by
// target / group total. A group with no abundance at an age is left as is.
func (ci *Cinitial) redistribute() {
	for age := 0; age < ci.env.Partition.AgeSpread(); age++ {
		for g := 0; g < ci.combined.Size(); g++ {
			factor := 1.0
			if total := ci.combined.GroupTotal(g, age); total != 0 {
				factor = ci.table[g][age] / total
			}
			for _, c := range ci.combined.Group(g) {
				c.Data[age] *= factor
			}
		}
	}
}

func (ci *Cinitial) Report() Report {
	return Report{Label: ci.label, Type: ci.Type(), YearsRun: ci.yearsRun, Converged: true}
}
