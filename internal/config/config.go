package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStartYear = 1990
	DefaultFinalYear = 2010
	DefaultMinAge    = 1
	DefaultMaxAge    = 20
	DefaultR0        = 1e6
	DefaultM         = 0.2
	DefaultInitYears = 100
)

type Config struct {
	Model                ModelConfig         `yaml:"model"`
	TimeSteps            []TimeStepConfig    `yaml:"time_steps"`
	Processes            []ProcessConfig     `yaml:"processes"`
	Selectivities        []SelectivityConfig `yaml:"selectivities,omitempty"`
	InitialisationPhases []PhaseConfig       `yaml:"initialisation_phases,omitempty"`
	DerivedQuantities    []DerivedConfig     `yaml:"derived_quantities,omitempty"`
	Observers            []ObserverConfig    `yaml:"observers,omitempty"`
}

type ModelConfig struct {
	StartYear  int      `yaml:"start_year"`
	FinalYear  int      `yaml:"final_year"`
	MinAge     int      `yaml:"min_age"`
	MaxAge     int      `yaml:"max_age"`
	PlusGroup  bool     `yaml:"plus_group"`
	Categories []string `yaml:"categories"`
}

type TimeStepConfig struct {
	Label     string   `yaml:"label"`
	Processes []string `yaml:"processes"`
}

// ProcessConfig covers every process type; each type reads the fields it
// needs. Parameters holds the scalar inputs (u, m, r0, b0, steepness, ...).
type ProcessConfig struct {
	Label       string             `yaml:"label"`
	Type        string             `yaml:"type"`
	Categories  []string           `yaml:"categories"`
	To          []string           `yaml:"to,omitempty"`
	Selectivity string             `yaml:"selectivity,omitempty"`
	Proportions []float64          `yaml:"proportions,omitempty"`
	Parameters  map[string]float64 `yaml:"parameters,omitempty"`
	YearValues  map[int]float64    `yaml:"year_values,omitempty"`
	Age         *int               `yaml:"age,omitempty"`
	// DerivedQuantity names the spawning biomass for stock-recruit processes.
	DerivedQuantity string `yaml:"derived_quantity,omitempty"`
	B0Phase         string `yaml:"b0_initialisation_phase,omitempty"`
}

type SelectivityConfig struct {
	Label      string             `yaml:"label"`
	Type       string             `yaml:"type"`
	Parameters map[string]float64 `yaml:"parameters,omitempty"`
	Values     []float64          `yaml:"values,omitempty"`
}

type PhaseConfig struct {
	Label             string      `yaml:"label"`
	Type              string      `yaml:"type"`
	Years             int         `yaml:"years,omitempty"`
	Lambda            float64     `yaml:"lambda,omitempty"`
	ConvergenceYears  []int       `yaml:"convergence_years,omitempty"`
	MaxPlusGroupYears int         `yaml:"max_plus_group_years,omitempty"`
	Categories        []string    `yaml:"categories,omitempty"`
	Table             [][]float64 `yaml:"table,omitempty"`
	// TimeStepProcesses replaces the process order of a time step while
	// this phase runs.
	TimeStepProcesses map[string][]string `yaml:"time_step_processes,omitempty"`
}

type GrowthConfig struct {
	LInf float64 `yaml:"linf"`
	K    float64 `yaml:"k"`
	T0   float64 `yaml:"t0"`
	A    float64 `yaml:"a"`
	B    float64 `yaml:"b"`
}

type DerivedConfig struct {
	Label       string        `yaml:"label"`
	Type        string        `yaml:"type"`
	TimeStep    string        `yaml:"time_step"`
	Categories  []string      `yaml:"categories"`
	Selectivity string        `yaml:"selectivity,omitempty"`
	Growth      *GrowthConfig `yaml:"growth,omitempty"`
}

type ObserverConfig struct {
	Label      string   `yaml:"label"`
	Type       string   `yaml:"type"`
	TimeStep   string   `yaml:"time_step"`
	Process    string   `yaml:"process,omitempty"`
	Categories []string `yaml:"categories"`
	Years      []int    `yaml:"years"`
	Proportion float64  `yaml:"proportion,omitempty"`
	Blend      string   `yaml:"blend,omitempty"`
}

// DefaultConfig is a single unsexed stock with constant recruitment,
// natural and fishing mortality, initialised by iteration.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			StartYear:  DefaultStartYear,
			FinalYear:  DefaultFinalYear,
			MinAge:     DefaultMinAge,
			MaxAge:     DefaultMaxAge,
			PlusGroup:  true,
			Categories: []string{"stock"},
		},
		TimeSteps: []TimeStepConfig{
			{Label: "annual", Processes: []string{"ageing", "recruitment", "natural_mortality", "fishing"}},
		},
		Processes: []ProcessConfig{
			{Label: "ageing", Type: "ageing", Categories: []string{"stock"}},
			{
				Label: "recruitment", Type: "constant_recruitment", Categories: []string{"stock"},
				Proportions: []float64{1}, Parameters: map[string]float64{"r0": DefaultR0},
			},
			{
				Label: "natural_mortality", Type: "natural_mortality", Categories: []string{"stock"},
				Parameters: map[string]float64{"m": DefaultM},
			},
			{
				Label: "fishing", Type: "constant_exploitation", Categories: []string{"stock"},
				Selectivity: "fishery", Parameters: map[string]float64{"u": 0.1},
			},
		},
		Selectivities: []SelectivityConfig{
			{Label: "fishery", Type: "logistic", Parameters: map[string]float64{"a50": 4, "ato95": 2}},
		},
		InitialisationPhases: []PhaseConfig{
			{Label: "equilibrium", Type: "iterative", Years: DefaultInitYears},
		},
		DerivedQuantities: []DerivedConfig{
			{Label: "numbers", Type: "abundance", TimeStep: "annual", Categories: []string{"stock"}},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml over the defaults. Sections present in data replace
// the default sections wholesale.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks structure only: required fields, year and age ranges and
// label uniqueness. References between sections are resolved when the
// model is built.
func (c *Config) Validate() error {
	m := c.Model
	if m.StartYear < 1 {
		return fmt.Errorf("model.start_year must be positive, got %d", m.StartYear)
	}
	if m.FinalYear < m.StartYear {
		return fmt.Errorf("model.final_year %d is before start_year %d", m.FinalYear, m.StartYear)
	}
	if m.MinAge < 0 || m.MaxAge < m.MinAge {
		return fmt.Errorf("model: invalid age range [%d, %d]", m.MinAge, m.MaxAge)
	}
	if err := unique("model.categories", m.Categories); err != nil {
		return err
	}
	if len(c.TimeSteps) == 0 {
		return fmt.Errorf("time_steps: at least one time step is required")
	}

	sections := []struct {
		name   string
		labels []string
	}{
		{"time_steps", labelsOf(c.TimeSteps, func(t TimeStepConfig) string { return t.Label })},
		{"processes", labelsOf(c.Processes, func(p ProcessConfig) string { return p.Label })},
		{"selectivities", labelsOf(c.Selectivities, func(s SelectivityConfig) string { return s.Label })},
		{"initialisation_phases", labelsOf(c.InitialisationPhases, func(p PhaseConfig) string { return p.Label })},
		{"derived_quantities", labelsOf(c.DerivedQuantities, func(d DerivedConfig) string { return d.Label })},
		{"observers", labelsOf(c.Observers, func(o ObserverConfig) string { return o.Label })},
	}
	for _, s := range sections {
		if len(s.labels) == 0 {
			continue
		}
		if err := unique(s.name, s.labels); err != nil {
			return err
		}
	}

	for i, p := range c.Processes {
		if p.Type == "" {
			return fmt.Errorf("processes[%d]: type is required", i)
		}
	}
	for i, p := range c.InitialisationPhases {
		if p.Type == "" {
			return fmt.Errorf("initialisation_phases[%d]: type is required", i)
		}
	}
	return nil
}

func labelsOf[T any](items []T, label func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = label(item)
	}
	return out
}

func unique(section string, labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("%s: at least one entry is required", section)
	}
	seen := make(map[string]int, len(labels))
	for i, l := range labels {
		if l == "" {
			return fmt.Errorf("%s[%d]: label is required", section, i)
		}
		if j, ok := seen[l]; ok {
			return fmt.Errorf("%s[%d]: label %q already used at %s[%d]", section, i, l, section, j)
		}
		seen[l] = i
	}
	return nil
}
