package initialisation

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
)

// Iterative runs the cycle for a fixed number of years. With convergence
// years it checks, at each listed year, how far one year moved the
// partition and stops early once that is below lambda; otherwise it runs
// all years. Afterwards any B0
// recruitment tied to this phase rescales the partition, and one more year
// refreshes derived quantities at the new scale.
type Iterative struct {
	base
	years            int
	lambda           float64
	convergenceYears []int

	cache     *partition.CachedCombinedCategories
	converged bool
	variance  float64
}

func NewIterative(label string, years int, lambda float64, convergenceYears []int) *Iterative {
	conv := append([]int(nil), convergenceYears...)
	return &Iterative{
		base:             base{label: label},
		years:            years,
		lambda:           lambda,
		convergenceYears: conv,
	}
}

func (it *Iterative) Type() string { return "iterative" }

func (it *Iterative) Validate() error {
	if err := it.validateBase(); err != nil {
		return err
	}
	if it.years < 1 {
		return fmt.Errorf("initialisation phase %q: years must be at least 1, got %d", it.label, it.years)
	}
	if !sort.IntsAreSorted(it.convergenceYears) {
		return fmt.Errorf("initialisation phase %q: convergence_years must be ascending", it.label)
	}
	for i, y := range it.convergenceYears {
		if y < 1 || (i > 0 && y == it.convergenceYears[i-1]) {
			return fmt.Errorf("initialisation phase %q: convergence_years must be distinct and positive", it.label)
		}
		if y > it.years {
			return fmt.Errorf("initialisation phase %q: convergence year %d exceeds years %d", it.label, y, it.years)
		}
	}
	if it.lambda < 0 || math.IsNaN(it.lambda) {
		return fmt.Errorf("initialisation phase %q: lambda must be non-negative", it.label)
	}
	return nil
}

func (it *Iterative) Build(env Env) error {
	if err := it.buildBase(env); err != nil {
		return err
	}
	cache, err := partition.NewCachedCombinedCategories(env.Partition, env.Partition.Labels())
	if err != nil {
		return err
	}
	it.cache = cache
	return nil
}

func (it *Iterative) Execute() error {
	it.yearsRun = 0
	it.converged = false
	it.variance = math.NaN()

	checks := make(map[int]bool, len(it.convergenceYears))
	for _, y := range it.convergenceYears {
		checks[y] = true
	}

	for year := 1; year <= it.years; year++ {
		if checks[year] {
			it.cache.BuildCache()
		}
		if err := it.advance(1); err != nil {
			return err
		}
		if !checks[year] {
			continue
		}
		it.variance = it.convergenceVariance()
		if it.env.Recorder != nil {
			it.env.Recorder.ConvergenceVariance(it.label, it.variance)
		}
		it.env.Logger.Debug("initialisation convergence check",
			slog.String("phase", it.label),
			slog.Int("year", year),
			slog.Float64("variance", it.variance),
		)
		if it.variance < it.lambda {
			it.converged = true
			break
		}
	}

	scaled, err := it.scaleToB0()
	if err != nil {
		return err
	}
	if scaled {
		return it.advance(1)
	}
	return nil
}

// convergenceVariance sums, over categories, the absolute change across the
// last year relative to the category's current total.
func (it *Iterative) convergenceVariance() float64 {
	variance := 0.0
	for i := 0; i < it.cache.Size(); i++ {
		for j, c := range it.cache.Group(i) {
			total := c.Total()
			if total == 0 {
				continue
			}
			cached := it.cache.Cached(i, j)
			diff := 0.0
			for k, v := range c.Data {
				diff += math.Abs(cached[k] - v)
			}
			variance += diff / total
		}
	}
	return variance
}

func (it *Iterative) scaleToB0() (bool, error) {
	seen := make(map[string]bool)
	scaled := false
	for _, p := range it.env.Runner.InitialisationProcesses(it.label) {
		s, ok := p.(process.PartitionScaler)
		if !ok || seen[p.Label()] || !s.ScalesInPhase(it.label) {
			continue
		}
		seen[p.Label()] = true
		factor, err := s.ScalePartition()
		if err != nil {
			return false, fmt.Errorf("initialisation phase %q: %w", it.label, err)
		}
		// derived quantities are linear in abundance, so lagged lookups
		// into the history see the rescaled stock
		for _, h := range it.env.Derived {
			h.ScaleInitialisationValues(factor)
		}
		scaled = true
	}
	return scaled, nil
}

func (it *Iterative) Report() Report {
	r := Report{Label: it.label, Type: it.Type(), YearsRun: it.yearsRun, Converged: it.converged}
	if !math.IsNaN(it.variance) {
		r.Variance = it.variance
	}
	return r
}
