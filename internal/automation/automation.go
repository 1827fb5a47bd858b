// Package automation runs batches of models: scripted scenarios and sweeps
// of one process parameter. Each run gets its own model, so runs proceed
// concurrently.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cohortsim/internal/config"
	"github.com/san-kum/cohortsim/internal/experiment"
	"github.com/san-kum/cohortsim/internal/model"
)

// Scenario is a named set of projections, typically alternative harvest
// levels applied to the same stock.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep picks a base model (a preset or a config file) and applies
// overrides to it.
type ScenarioStep struct {
	Name      string `yaml:"name"`
	Preset    string `yaml:"preset,omitempty"`
	Config    string `yaml:"config,omitempty"`
	FinalYear int    `yaml:"final_year,omitempty"`
	// Parameters overrides process parameters by process label.
	Parameters map[string]map[string]float64 `yaml:"parameters,omitempty"`
}

type StepResult struct {
	Name   string
	Config *config.Config
	Result *model.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// resolve builds the step's configuration.
func (s ScenarioStep) resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if s.FinalYear != 0 {
		cfg.Model.FinalYear = s.FinalYear
	}
	for label, params := range s.Parameters {
		for k, v := range params {
			if err := SetProcessParameter(cfg, label, k, v); err != nil {
				return nil, err
			}
		}
	}
	return cfg, cfg.Validate()
}

// SetProcessParameter sets one entry of a process's parameters map.
func SetProcessParameter(cfg *config.Config, process, key string, value float64) error {
	for i := range cfg.Processes {
		p := &cfg.Processes[i]
		if p.Label != process {
			continue
		}
		if p.Parameters == nil {
			p.Parameters = make(map[string]float64)
		}
		p.Parameters[key] = value
		return nil
	}
	return fmt.Errorf("no process labelled %q", process)
}

// RunScenario runs every step and returns results in step order. The first
// error cancels the remaining runs.
func RunScenario(ctx context.Context, scenario *Scenario, logger *slog.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	configs := make([]*config.Config, len(scenario.Steps))
	for i, step := range scenario.Steps {
		cfg, err := step.resolve()
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		configs[i] = cfg
	}

	results, err := runAll(ctx, configs, logger)
	if err != nil {
		return nil, err
	}

	out := make([]StepResult, len(results))
	for i, r := range results {
		out[i] = StepResult{Name: scenario.Steps[i].Name, Config: configs[i], Result: r}
	}
	return out, nil
}

// ParameterSweep varies one process parameter over an even grid.
type ParameterSweep struct {
	Base      *config.Config
	Process   string
	Parameter string
	Min       float64
	Max       float64
	NumSteps  int
	// Derived names a derived quantity to summarise; empty uses total
	// abundance.
	Derived string
}

type SweepResult struct {
	ParamValue float64
	// Final is the summarised quantity in the final year.
	Final float64
	// Depletion is Final over its value in the first dated year.
	Depletion float64
}

func RunSweep(ctx context.Context, sweep *ParameterSweep, logger *slog.Logger) ([]SweepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	if sweep.Max < sweep.Min {
		return nil, fmt.Errorf("sweep range [%g, %g] is empty", sweep.Min, sweep.Max)
	}

	step := (sweep.Max - sweep.Min) / float64(sweep.NumSteps-1)
	values := make([]float64, sweep.NumSteps)
	configs := make([]*config.Config, sweep.NumSteps)
	for i := range values {
		values[i] = sweep.Min + float64(i)*step
		cfg, err := clone(sweep.Base)
		if err != nil {
			return nil, err
		}
		if err := SetProcessParameter(cfg, sweep.Process, sweep.Parameter, values[i]); err != nil {
			return nil, err
		}
		configs[i] = cfg
	}

	results, err := runAll(ctx, configs, logger)
	if err != nil {
		return nil, err
	}

	out := make([]SweepResult, len(results))
	for i, r := range results {
		first, final, err := summarise(r, sweep.Derived)
		if err != nil {
			return nil, err
		}
		depletion := 0.0
		if first > 0 {
			depletion = final / first
		}
		out[i] = SweepResult{ParamValue: values[i], Final: final, Depletion: depletion}
	}
	return out, nil
}

func summarise(r *model.Result, derived string) (first, final float64, err error) {
	if len(r.Years) == 0 {
		return 0, 0, fmt.Errorf("run produced no years")
	}
	firstYear, finalYear := r.Years[0], r.Years[len(r.Years)-1]
	if derived != "" {
		values, ok := r.Derived[derived]
		if !ok {
			return 0, 0, fmt.Errorf("no derived quantity %q", derived)
		}
		return values[firstYear], values[finalYear], nil
	}
	for _, c := range r.Categories {
		first += r.States[0].Total(c)
		final += r.States[len(r.States)-1].Total(c)
	}
	return first, final, nil
}

// runAll builds and runs one model per config concurrently.
func runAll(ctx context.Context, configs []*config.Config, logger *slog.Logger) ([]*model.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*model.Result, len(configs))
	errs := make([]error, len(configs))

	var wg sync.WaitGroup
	for i, cfg := range configs {
		wg.Add(1)
		go func(idx int, cfg *config.Config) {
			defer wg.Done()

			exp := experiment.New(cfg, logger)
			if err := exp.Setup(nil); err != nil {
				errs[idx] = fmt.Errorf("run %d setup: %w", idx+1, err)
				cancel()
				return
			}
			results[idx], errs[idx] = exp.Run(ctx)
			if errs[idx] != nil {
				errs[idx] = fmt.Errorf("run %d: %w", idx+1, errs[idx])
				cancel()
			}
		}(i, cfg)
	}

	wg.Wait()

	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return nil, first
	}
	logger.Debug("batch complete", slog.Int("runs", len(configs)))
	return results, nil
}

func clone(cfg *config.Config) (*config.Config, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out config.Config
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
