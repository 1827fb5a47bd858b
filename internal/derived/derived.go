// Package derived computes scalar summaries of the partition, such as
// spawning biomass, at the end of a chosen time step each year.
//
// A [Quantity] keeps two histories: the values recorded while initialisation
// phases run, and one value per dated year. Lookups for years before the
// first dated year fall back into the initialisation history, which is how
// stock-recruit processes read lagged spawning biomass in the first years.
package derived

import (
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/selectivity"
)

type Quantity struct {
	label          string
	timeStep       string
	categoryLabels []string
	selectivity    selectivity.Selectivity
	weight         selectivity.Weight

	categories   []*partition.Category
	firstYear    int
	initialising bool
	initValues   []float64
	values       map[int]float64
}

// NewBiomass sums abundance * selectivity * mean weight.
func NewBiomass(label, timeStep string, categories []string, sel selectivity.Selectivity, weight selectivity.Weight) *Quantity {
	if sel == nil {
		sel = selectivity.Constant{C: 1}
	}
	if weight == nil {
		weight = selectivity.UnitWeight{}
	}
	return &Quantity{
		label:          label,
		timeStep:       timeStep,
		categoryLabels: categories,
		selectivity:    sel,
		weight:         weight,
		values:         make(map[int]float64),
	}
}

// NewAbundance sums abundance * selectivity.
func NewAbundance(label, timeStep string, categories []string, sel selectivity.Selectivity) *Quantity {
	return NewBiomass(label, timeStep, categories, sel, selectivity.UnitWeight{})
}

func (q *Quantity) Label() string    { return q.label }
func (q *Quantity) TimeStep() string { return q.timeStep }

func (q *Quantity) Validate() error {
	if q.label == "" {
		return fmt.Errorf("derived quantity: label is required")
	}
	if q.timeStep == "" {
		return fmt.Errorf("derived quantity %q: time_step is required", q.label)
	}
	if len(q.categoryLabels) == 0 {
		return fmt.Errorf("derived quantity %q: at least one category is required", q.label)
	}
	return selectivity.Validate(q.selectivity)
}

// Build resolves categories; "+" composites are flattened.
func (q *Quantity) Build(p *partition.Partition, firstYear int) error {
	cc, err := partition.NewCombinedCategories(p, q.categoryLabels)
	if err != nil {
		return fmt.Errorf("derived quantity %q: %w", q.label, err)
	}
	q.categories = cc.Categories()
	q.firstYear = firstYear
	return nil
}

// Reset clears both histories. Called once per model iteration.
func (q *Quantity) Reset() {
	q.initValues = q.initValues[:0]
	q.values = make(map[int]float64)
	q.initialising = false
}

// SetInitialising routes values recorded from now on into the
// initialisation history.
func (q *Quantity) SetInitialising(on bool) { q.initialising = on }

func (q *Quantity) PreExecute(int, string) {}

// PostExecute evaluates the quantity at the end of its time step.
func (q *Quantity) PostExecute(year int, _ string) {
	v := q.evaluate()
	if q.initialising {
		q.initValues = append(q.initValues, v)
		return
	}
	q.values[year] = v
}

func (q *Quantity) evaluate() float64 {
	sum := 0.0
	for _, c := range q.categories {
		for i, n := range c.Data {
			age := c.MinAge + i
			sum += n * q.selectivity.Value(age) * q.weight.MeanWeight(age)
		}
	}
	return sum
}

// Value returns the value for a dated year. Years before the first dated
// year count back from the end of the initialisation history, holding the
// earliest value when the history is shorter than the lag.
func (q *Quantity) Value(year int) (float64, error) {
	if v, ok := q.values[year]; ok {
		return v, nil
	}
	if year < q.firstYear {
		if len(q.initValues) == 0 {
			return 0, fmt.Errorf("derived quantity %q: no initialisation values for year %d", q.label, year)
		}
		idx := len(q.initValues) - (q.firstYear - year)
		if idx < 0 {
			idx = 0
		}
		return q.initValues[idx], nil
	}
	return 0, fmt.Errorf("derived quantity %q: no value for year %d", q.label, year)
}

func (q *Quantity) LastInitialisationValue() (float64, error) {
	if len(q.initValues) == 0 {
		return 0, fmt.Errorf("derived quantity %q: no initialisation values", q.label)
	}
	return q.initValues[len(q.initValues)-1], nil
}

func (q *Quantity) InitialisationValues() []float64 {
	out := make([]float64, len(q.initValues))
	copy(out, q.initValues)
	return out
}

// Values returns dated-year values.
func (q *Quantity) Values() map[int]float64 {
	out := make(map[int]float64, len(q.values))
	for k, v := range q.values {
		out[k] = v
	}
	return out
}

// PadInitialisationValues replicates the earliest initialisation value
// backward until the history holds at least n values.
func (q *Quantity) PadInitialisationValues(n int) {
	if len(q.initValues) == 0 || len(q.initValues) >= n {
		return
	}
	padded := make([]float64, n-len(q.initValues), n)
	for i := range padded {
		padded[i] = q.initValues[0]
	}
	q.initValues = append(padded, q.initValues...)
}

func (q *Quantity) InitialisationLen() int { return len(q.initValues) }

// TruncateInitialisationValues drops values recorded after the first n.
func (q *Quantity) TruncateInitialisationValues(n int) {
	if n >= 0 && n < len(q.initValues) {
		q.initValues = q.initValues[:n]
	}
}

// ScaleInitialisationValues multiplies the initialisation history by factor.
func (q *Quantity) ScaleInitialisationValues(factor float64) {
	for i := range q.initValues {
		q.initValues[i] *= factor
	}
}
