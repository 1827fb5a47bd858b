package config

import "sort"

// Presets are complete example models selectable by name.
var Presets = map[string]func() *Config{
	"single_stock": DefaultConfig,
	"two_sex_bh":   twoSexBevertonHolt,
	"maturation":   maturation,
}

// twoSexBevertonHolt is a B0-scaled Beverton-Holt stock split by sex,
// initialised with the derived strategy then a short iterative phase that
// applies the B0 rescale.
func twoSexBevertonHolt() *Config {
	sexes := []string{"male", "female"}
	return &Config{
		Model: ModelConfig{
			StartYear: 1975, FinalYear: 2010,
			MinAge: 1, MaxAge: 30, PlusGroup: true,
			Categories: sexes,
		},
		TimeSteps: []TimeStepConfig{
			{Label: "summer", Processes: []string{"recruitment", "natural_mortality_summer", "fishing"}},
			{Label: "winter", Processes: []string{"natural_mortality_winter", "ageing"}},
		},
		Processes: []ProcessConfig{
			{Label: "ageing", Type: "ageing", Categories: sexes},
			{
				Label: "recruitment", Type: "recruitment_beverton_holt", Categories: sexes,
				Proportions:     []float64{0.5, 0.5},
				Parameters:      map[string]float64{"b0": 75000, "steepness": 0.75, "ssb_offset": 1},
				YearValues:      map[int]float64{1990: 1.4, 1991: 0.6, 1992: 1.1},
				DerivedQuantity: "ssb",
				B0Phase:         "b0_scale",
			},
			{
				Label: "natural_mortality_summer", Type: "natural_mortality", Categories: sexes,
				Parameters: map[string]float64{"m": 0.15, "ratio": 0.6},
			},
			{
				Label: "natural_mortality_winter", Type: "natural_mortality", Categories: sexes,
				Parameters: map[string]float64{"m": 0.15, "ratio": 0.4},
			},
			{
				Label: "fishing", Type: "constant_exploitation", Categories: sexes, Selectivity: "trawl",
				Parameters: map[string]float64{"u": 0.05},
				YearValues: map[int]float64{1995: 0.15, 1996: 0.2, 1997: 0.2, 1998: 0.15},
			},
		},
		Selectivities: []SelectivityConfig{
			{Label: "trawl", Type: "double_normal", Parameters: map[string]float64{"mu": 8, "sigma_l": 3, "sigma_r": 10}},
			{Label: "maturity", Type: "logistic", Parameters: map[string]float64{"a50": 5, "ato95": 2}},
		},
		InitialisationPhases: []PhaseConfig{
			{Label: "equilibrium", Type: "derived"},
			{Label: "b0_scale", Type: "iterative", Years: 1},
		},
		DerivedQuantities: []DerivedConfig{
			{
				Label: "ssb", Type: "biomass", TimeStep: "summer", Categories: []string{"female"},
				Selectivity: "maturity",
				Growth:      &GrowthConfig{LInf: 60, K: 0.2, T0: -0.5, A: 1e-8, B: 3},
			},
		},
		Observers: []ObserverConfig{
			{
				Label: "trawl_survey", Type: "abundance", TimeStep: "summer",
				Categories: []string{"male+female"}, Years: []int{1990, 1995, 2000, 2005, 2010},
				Proportion: 0.5, Blend: "mean",
			},
		},
	}
}

// maturation moves immature fish into a mature category, and starts from a
// table of abundances scaled onto an iterated composition.
func maturation() *Config {
	cats := []string{"immature", "mature"}
	return &Config{
		Model: ModelConfig{
			StartYear: 2000, FinalYear: 2020,
			MinAge: 1, MaxAge: 8, PlusGroup: true,
			Categories: cats,
		},
		TimeSteps: []TimeStepConfig{
			{Label: "annual", Processes: []string{"recruitment", "maturation", "natural_mortality", "ageing"}},
		},
		Processes: []ProcessConfig{
			{
				Label: "recruitment", Type: "constant_recruitment", Categories: cats,
				Proportions: []float64{1, 0}, Parameters: map[string]float64{"r0": 10000},
			},
			{
				Label: "maturation", Type: "maturation", Categories: []string{"immature"}, To: []string{"mature"},
				Proportions: []float64{1}, Selectivity: "maturity",
			},
			{Label: "natural_mortality", Type: "natural_mortality", Categories: cats, Parameters: map[string]float64{"m": 0.3}},
			{Label: "ageing", Type: "ageing", Categories: cats},
		},
		Selectivities: []SelectivityConfig{
			{Label: "maturity", Type: "knife_edge", Parameters: map[string]float64{"e": 3, "alpha": 0.5}},
		},
		InitialisationPhases: []PhaseConfig{
			{Label: "iterate", Type: "iterative", Years: 50, Lambda: 1e-6, ConvergenceYears: []int{10, 20, 30, 40, 50}},
			{
				Label: "survey_start", Type: "cinitial", Categories: []string{"immature+mature"},
				Table: [][]float64{{8000, 6000, 4500, 3300, 2400, 1800, 1300, 3000}},
			},
		},
		DerivedQuantities: []DerivedConfig{
			{Label: "mature_numbers", Type: "abundance", TimeStep: "annual", Categories: []string{"mature"}},
		},
	}
}

// GetPreset returns a fresh copy of a preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
