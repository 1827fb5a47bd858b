package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/cohortsim/internal/config"
	"github.com/san-kum/cohortsim/internal/derived"
	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/observe"
	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
	"github.com/san-kum/cohortsim/internal/selectivity"
)

// Refs resolves labels that factories refer to.
type Refs interface {
	Selectivity(label, location string) (selectivity.Selectivity, error)
	DerivedQuantity(label, location string) (*derived.Quantity, error)
	MinAge() int
}

type (
	SelectivityFactory func(cfg config.SelectivityConfig, refs Refs) (selectivity.Selectivity, error)
	ProcessFactory     func(cfg config.ProcessConfig, refs Refs) (process.Process, error)
	PhaseFactory       func(cfg config.PhaseConfig) (initialisation.Phase, error)
	DerivedFactory     func(cfg config.DerivedConfig, refs Refs) (*derived.Quantity, error)
	ObserverFactory    func(cfg config.ObserverConfig) (observe.Observer, error)
)

// Registry maps configuration type names to constructors.
type Registry struct {
	selectivities map[string]SelectivityFactory
	processes     map[string]ProcessFactory
	phases        map[string]PhaseFactory
	derived       map[string]DerivedFactory
	observers     map[string]ObserverFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		selectivities: make(map[string]SelectivityFactory),
		processes:     make(map[string]ProcessFactory),
		phases:        make(map[string]PhaseFactory),
		derived:       make(map[string]DerivedFactory),
		observers:     make(map[string]ObserverFactory),
	}

	r.selectivities["constant"] = func(c config.SelectivityConfig, _ Refs) (selectivity.Selectivity, error) {
		return selectivity.Constant{C: param(c.Parameters, "c", 1)}, nil
	}
	r.selectivities["knife_edge"] = func(c config.SelectivityConfig, _ Refs) (selectivity.Selectivity, error) {
		e, err := required(c.Parameters, "e", c.Label)
		if err != nil {
			return nil, err
		}
		return selectivity.KnifeEdge{E: e, Alpha: param(c.Parameters, "alpha", 1)}, nil
	}
	r.selectivities["logistic"] = func(c config.SelectivityConfig, _ Refs) (selectivity.Selectivity, error) {
		a50, err := required(c.Parameters, "a50", c.Label)
		if err != nil {
			return nil, err
		}
		ato95, err := required(c.Parameters, "ato95", c.Label)
		if err != nil {
			return nil, err
		}
		return selectivity.Logistic{A50: a50, Ato95: ato95, Alpha: param(c.Parameters, "alpha", 1)}, nil
	}
	r.selectivities["double_normal"] = func(c config.SelectivityConfig, _ Refs) (selectivity.Selectivity, error) {
		vals, err := requiredAll(c.Parameters, c.Label, "mu", "sigma_l", "sigma_r")
		if err != nil {
			return nil, err
		}
		return selectivity.DoubleNormal{Mu: vals[0], SigmaL: vals[1], SigmaR: vals[2], Alpha: param(c.Parameters, "alpha", 1)}, nil
	}
	r.selectivities["all_values"] = func(c config.SelectivityConfig, refs Refs) (selectivity.Selectivity, error) {
		if len(c.Values) == 0 {
			return nil, fmt.Errorf("selectivity %q: values are required", c.Label)
		}
		minAge := refs.MinAge()
		if v, ok := c.Parameters["min_age"]; ok {
			minAge = int(v)
		}
		return selectivity.AllValues{MinAge: minAge, Values: append([]float64(nil), c.Values...)}, nil
	}

	r.processes["ageing"] = func(c config.ProcessConfig, _ Refs) (process.Process, error) {
		return process.NewAgeing(c.Label, c.Categories), nil
	}
	r.processes["constant_exploitation"] = func(c config.ProcessConfig, refs Refs) (process.Process, error) {
		u, err := required(c.Parameters, "u", c.Label)
		if err != nil {
			return nil, err
		}
		sel, err := optionalSelectivity(refs, c)
		if err != nil {
			return nil, err
		}
		p := process.NewConstantExploitation(c.Label, c.Categories, u, sel)
		for year, rate := range c.YearValues {
			p.SetYearRate(year, rate)
		}
		return p, nil
	}
	r.processes["natural_mortality"] = func(c config.ProcessConfig, refs Refs) (process.Process, error) {
		m, err := required(c.Parameters, "m", c.Label)
		if err != nil {
			return nil, err
		}
		sel, err := optionalSelectivity(refs, c)
		if err != nil {
			return nil, err
		}
		return process.NewNaturalMortality(c.Label, c.Categories, m, param(c.Parameters, "ratio", 1), sel), nil
	}
	r.processes["constant_recruitment"] = func(c config.ProcessConfig, _ Refs) (process.Process, error) {
		r0, err := required(c.Parameters, "r0", c.Label)
		if err != nil {
			return nil, err
		}
		return process.NewConstantRecruitment(c.Label, c.Categories, c.Proportions, r0, recruitAge(c)), nil
	}
	r.processes["recruitment_beverton_holt"] = func(c config.ProcessConfig, refs Refs) (process.Process, error) {
		if c.DerivedQuantity == "" {
			return nil, fmt.Errorf("process %q: derived_quantity is required", c.Label)
		}
		ssb, err := refs.DerivedQuantity(c.DerivedQuantity, fmt.Sprintf("process %q", c.Label))
		if err != nil {
			return nil, err
		}
		return process.NewBevertonHolt(c.Label, c.Categories, process.BevertonHoltParams{
			R0:          param(c.Parameters, "r0", 0),
			B0:          param(c.Parameters, "b0", 0),
			B0Phase:     c.B0Phase,
			Steepness:   param(c.Parameters, "steepness", 1),
			SSBOffset:   int(param(c.Parameters, "ssb_offset", 0)),
			YCS:         c.YearValues,
			Proportions: c.Proportions,
			Age:         recruitAge(c),
		}, ssb), nil
	}
	transition := func(c config.ProcessConfig, refs Refs) (process.Process, error) {
		sel, err := optionalSelectivity(refs, c)
		if err != nil {
			return nil, err
		}
		props := c.Proportions
		if len(props) == 0 {
			props = make([]float64, len(c.To))
			for i := range props {
				props[i] = 1
			}
		}
		return process.NewTransition(c.Label, c.Categories, c.To, props, sel), nil
	}
	r.processes["transition"] = transition
	r.processes["maturation"] = transition

	r.phases["iterative"] = func(c config.PhaseConfig) (initialisation.Phase, error) {
		return initialisation.NewIterative(c.Label, c.Years, c.Lambda, c.ConvergenceYears), nil
	}
	r.phases["derived"] = func(c config.PhaseConfig) (initialisation.Phase, error) {
		return initialisation.NewDerived(c.Label, c.MaxPlusGroupYears), nil
	}
	r.phases["cinitial"] = func(c config.PhaseConfig) (initialisation.Phase, error) {
		return initialisation.NewCinitial(c.Label, c.Categories, c.Table), nil
	}

	r.derived["biomass"] = func(c config.DerivedConfig, refs Refs) (*derived.Quantity, error) {
		sel, err := derivedSelectivity(refs, c)
		if err != nil {
			return nil, err
		}
		var weight selectivity.Weight = selectivity.UnitWeight{}
		if g := c.Growth; g != nil {
			weight = selectivity.VonBertalanffy{LInf: g.LInf, K: g.K, T0: g.T0, A: g.A, B: g.B}
		}
		return derived.NewBiomass(c.Label, c.TimeStep, c.Categories, sel, weight), nil
	}
	r.derived["abundance"] = func(c config.DerivedConfig, refs Refs) (*derived.Quantity, error) {
		sel, err := derivedSelectivity(refs, c)
		if err != nil {
			return nil, err
		}
		return derived.NewAbundance(c.Label, c.TimeStep, c.Categories, sel), nil
	}

	r.observers["abundance"] = func(c config.ObserverConfig) (observe.Observer, error) {
		blend, err := partition.ParseBlend(c.Blend)
		if err != nil {
			return nil, fmt.Errorf("observer %q: %w", c.Label, err)
		}
		return observe.NewAbundance(c.Label, observe.AbundanceParams{
			TimeStep:   c.TimeStep,
			Process:    c.Process,
			Categories: c.Categories,
			Years:      c.Years,
			Proportion: c.Proportion,
			Blend:      blend,
		}), nil
	}

	return r
}

func (r *Registry) RegisterProcess(name string, fn ProcessFactory) { r.processes[name] = fn }

func (r *Registry) RegisterSelectivity(name string, fn SelectivityFactory) {
	r.selectivities[name] = fn
}

func (r *Registry) GetSelectivity(cfg config.SelectivityConfig, refs Refs) (selectivity.Selectivity, error) {
	fn, ok := r.selectivities[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown selectivity type: %s", cfg.Type)
	}
	return fn(cfg, refs)
}

func (r *Registry) GetProcess(cfg config.ProcessConfig, refs Refs) (process.Process, error) {
	fn, ok := r.processes[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown process type: %s", cfg.Type)
	}
	return fn(cfg, refs)
}

func (r *Registry) GetPhase(cfg config.PhaseConfig) (initialisation.Phase, error) {
	fn, ok := r.phases[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown initialisation phase type: %s", cfg.Type)
	}
	return fn(cfg)
}

func (r *Registry) GetDerived(cfg config.DerivedConfig, refs Refs) (*derived.Quantity, error) {
	fn, ok := r.derived[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown derived quantity type: %s", cfg.Type)
	}
	return fn(cfg, refs)
}

func (r *Registry) GetObserver(cfg config.ObserverConfig) (observe.Observer, error) {
	fn, ok := r.observers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown observer type: %s", cfg.Type)
	}
	return fn(cfg)
}

func (r *Registry) ListProcesses() []string     { return sortedKeys(r.processes) }
func (r *Registry) ListSelectivities() []string { return sortedKeys(r.selectivities) }
func (r *Registry) ListPhases() []string        { return sortedKeys(r.phases) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func required(params map[string]float64, key, owner string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%q: parameter %s is required", owner, key)
	}
	return v, nil
}

func requiredAll(params map[string]float64, owner string, keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, err := required(params, k, owner)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func recruitAge(c config.ProcessConfig) int {
	if c.Age == nil {
		return -1
	}
	return *c.Age
}

func optionalSelectivity(refs Refs, c config.ProcessConfig) (selectivity.Selectivity, error) {
	if c.Selectivity == "" {
		return nil, nil
	}
	return refs.Selectivity(c.Selectivity, fmt.Sprintf("process %q", c.Label))
}

func derivedSelectivity(refs Refs, c config.DerivedConfig) (selectivity.Selectivity, error) {
	if c.Selectivity == "" {
		return nil, nil
	}
	return refs.Selectivity(c.Selectivity, fmt.Sprintf("derived quantity %q", c.Label))
}
