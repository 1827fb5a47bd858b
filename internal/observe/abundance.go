// Package observe provides executors that capture model state at time step
// boundaries, interpolated across the mortality block or a single process.
package observe

import (
	"fmt"
	"sort"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/timestep"
)

// Record is the expected abundance at age of one category group in one year.
type Record struct {
	Year   int       `json:"year"`
	Group  string    `json:"group"`
	Values []float64 `json:"values"`
}

// Observer is an executor the model builds after its time steps.
type Observer interface {
	timestep.Executor
	Label() string
	Validate() error
	Build(m *timestep.Manager, p *partition.Partition) error
	Reset()
	Records() []Record
}

// Abundance caches its categories before the mortality block (or a named
// process) and, after it, records a blend of the cached and live values at
// Proportion of the way through.
type Abundance struct {
	label      string
	timeStep   string
	process    string
	categories []string
	years      []int
	proportion float64
	blend      partition.Blend

	active  map[int]bool
	cached  *partition.CachedCombinedCategories
	records []Record
}

type AbundanceParams struct {
	TimeStep   string
	Process    string
	Categories []string
	Years      []int
	Proportion float64
	Blend      partition.Blend
}

func NewAbundance(label string, params AbundanceParams) *Abundance {
	years := append([]int(nil), params.Years...)
	sort.Ints(years)
	return &Abundance{
		label:      label,
		timeStep:   params.TimeStep,
		process:    params.Process,
		categories: params.Categories,
		years:      years,
		proportion: params.Proportion,
		blend:      params.Blend,
	}
}

func (a *Abundance) Label() string { return a.label }

func (a *Abundance) Validate() error {
	if a.label == "" {
		return fmt.Errorf("observer: label is required")
	}
	if a.timeStep == "" {
		return fmt.Errorf("observer %q: time_step is required", a.label)
	}
	if len(a.categories) == 0 {
		return fmt.Errorf("observer %q: at least one category is required", a.label)
	}
	if len(a.years) == 0 {
		return fmt.Errorf("observer %q: at least one year is required", a.label)
	}
	if a.proportion < 0 || a.proportion > 1 {
		return fmt.Errorf("observer %q: proportion must be in [0, 1], got %f", a.label, a.proportion)
	}
	return nil
}

func (a *Abundance) Build(m *timestep.Manager, p *partition.Partition) error {
	ts, err := m.Get(a.timeStep)
	if err != nil {
		return fmt.Errorf("observer %q: %w", a.label, err)
	}
	cached, err := partition.NewCachedCombinedCategories(p, a.categories)
	if err != nil {
		return fmt.Errorf("observer %q: %w", a.label, err)
	}
	a.cached = cached

	a.active = make(map[int]bool, len(a.years))
	for _, y := range a.years {
		a.active[y] = true
	}

	if a.process != "" {
		if _, err := ts.SubscribeToProcess(a, a.years, a.process); err != nil {
			return fmt.Errorf("observer %q: %w", a.label, err)
		}
		return nil
	}
	if err := ts.SubscribeToBlock(a); err != nil {
		return fmt.Errorf("observer %q: %w", a.label, err)
	}
	return nil
}

func (a *Abundance) Reset() { a.records = a.records[:0] }

func (a *Abundance) PreExecute(year int, _ string) {
	if !a.active[year] {
		return
	}
	a.cached.BuildCache()
}

func (a *Abundance) PostExecute(year int, _ string) {
	if !a.active[year] || !a.cached.Built() {
		return
	}
	for i := 0; i < a.cached.Size(); i++ {
		group := a.cached.Group(i)
		values := make([]float64, len(group[0].Data))
		for idx := range values {
			before := a.cached.CachedGroupTotal(i, idx)
			after := a.cached.GroupTotal(i, idx)
			values[idx] = partition.Interpolate(before, after, a.proportion, a.blend)
		}
		a.records = append(a.records, Record{Year: year, Group: a.cached.Label(i), Values: values})
	}
}

func (a *Abundance) Records() []Record {
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}
