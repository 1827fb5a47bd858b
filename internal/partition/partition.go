package partition

import (
	"fmt"
	"math"
)

// Category is one cohort series. Data[i] is the abundance at age MinAge+i.
type Category struct {
	Name   string
	MinAge int
	MaxAge int
	Data   []float64
}

func newCategory(name string, minAge, maxAge int) *Category {
	return &Category{
		Name:   name,
		MinAge: minAge,
		MaxAge: maxAge,
		Data:   make([]float64, maxAge-minAge+1),
	}
}

func (c *Category) AgeSpread() int { return c.MaxAge - c.MinAge + 1 }

// Index maps an age to its position in Data.
func (c *Category) Index(age int) (int, error) {
	if age < c.MinAge || age > c.MaxAge {
		return 0, &DimensionError{
			What:     fmt.Sprintf("age %d outside category %q", age, c.Name),
			Want:     c.MaxAge,
			Got:      age,
			Location: c.Name,
		}
	}
	return age - c.MinAge, nil
}

func (c *Category) Total() float64 {
	sum := 0.0
	for _, v := range c.Data {
		sum += v
	}
	return sum
}

// Scale multiplies every age bin by factor.
func (c *Category) Scale(factor float64) {
	for i := range c.Data {
		c.Data[i] *= factor
	}
}

// Partition maps category labels to categories sharing one age range.
type Partition struct {
	minAge    int
	maxAge    int
	plusGroup bool
	order     []string
	byName    map[string]*Category
}

// New builds a partition with zeroed categories over [minAge, maxAge].
func New(minAge, maxAge int, plusGroup bool, labels []string) (*Partition, error) {
	if minAge < 0 || maxAge < minAge {
		return nil, &DimensionError{What: "age range max_age", Want: minAge, Got: maxAge, Location: "model"}
	}
	if len(labels) == 0 {
		return nil, &DimensionError{What: "category count", Want: 1, Got: 0, Location: "model.categories"}
	}

	p := &Partition{
		minAge:    minAge,
		maxAge:    maxAge,
		plusGroup: plusGroup,
		order:     make([]string, 0, len(labels)),
		byName:    make(map[string]*Category, len(labels)),
	}
	for i, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("model.categories[%d]: empty label", i)
		}
		if _, dup := p.byName[label]; dup {
			return nil, fmt.Errorf("model.categories[%d]: duplicate category %q", i, label)
		}
		p.byName[label] = newCategory(label, minAge, maxAge)
		p.order = append(p.order, label)
	}
	return p, nil
}

func (p *Partition) MinAge() int     { return p.minAge }
func (p *Partition) MaxAge() int     { return p.maxAge }
func (p *Partition) AgeSpread() int  { return p.maxAge - p.minAge + 1 }
func (p *Partition) PlusGroup() bool { return p.plusGroup }

// Labels returns category labels in declaration order.
func (p *Partition) Labels() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Category returns the live category for label.
func (p *Partition) Category(label string) (*Category, error) {
	c, ok := p.byName[label]
	if !ok {
		return nil, &ReferenceError{Kind: "category", Label: label}
	}
	return c, nil
}

// Categories resolves labels in order.
func (p *Partition) Categories(labels []string) ([]*Category, error) {
	out := make([]*Category, 0, len(labels))
	for _, label := range labels {
		c, err := p.Category(label)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Each visits categories in declaration order.
func (p *Partition) Each(fn func(c *Category)) {
	for _, label := range p.order {
		fn(p.byName[label])
	}
}

// Reset zeroes every abundance vector. Called once per model iteration.
func (p *Partition) Reset() {
	for _, label := range p.order {
		c := p.byName[label]
		for i := range c.Data {
			c.Data[i] = 0
		}
	}
}

// Scale multiplies every category by factor.
func (p *Partition) Scale(factor float64) {
	for _, label := range p.order {
		p.byName[label].Scale(factor)
	}
}

// Total sums abundance over all categories and ages, in declaration order.
func (p *Partition) Total() float64 {
	sum := 0.0
	for _, label := range p.order {
		sum += p.byName[label].Total()
	}
	return sum
}

// Validate checks the fixed-length invariant and that no abundance is
// negative or non-finite. process names the last writer for error reports.
func (p *Partition) Validate(process string) error {
	spread := p.AgeSpread()
	for _, label := range p.order {
		c := p.byName[label]
		if len(c.Data) != spread {
			return &DimensionError{What: "abundance length", Want: spread, Got: len(c.Data), Location: label}
		}
		for i, v := range c.Data {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return &AbundanceError{Category: label, Age: c.MinAge + i, Value: v, Process: process}
			}
		}
	}
	return nil
}
