package process

import "github.com/san-kum/cohortsim/internal/partition"

// Ageing moves every cohort up one age. With a plus group the two oldest
// bins merge; without one the oldest bin leaves the partition.
type Ageing struct {
	base
	plusGroup bool
}

func NewAgeing(label string, categories []string) *Ageing {
	return &Ageing{base: base{label: label, typ: TypeAgeing, categoryLabels: categories}}
}

func (a *Ageing) Validate() error { return a.validateBase() }

func (a *Ageing) Build(p *partition.Partition) error {
	a.plusGroup = p.PlusGroup()
	return a.buildCategories(p)
}

func (a *Ageing) Reset() {}

func (a *Ageing) Execute(int, string) error {
	for _, c := range a.categories {
		n := len(c.Data)
		if n == 1 {
			if !a.plusGroup {
				c.Data[0] = 0
			}
			continue
		}
		if a.plusGroup {
			c.Data[n-1] += c.Data[n-2]
		} else {
			c.Data[n-1] = c.Data[n-2]
		}
		for i := n - 2; i > 0; i-- {
			c.Data[i] = c.Data[i-1]
		}
		c.Data[0] = 0
	}
	return nil
}
