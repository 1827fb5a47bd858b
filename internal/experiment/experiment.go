// Package experiment turns a model configuration into a built model.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/cohortsim/internal/config"
	"github.com/san-kum/cohortsim/internal/derived"
	"github.com/san-kum/cohortsim/internal/model"
	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
	"github.com/san-kum/cohortsim/internal/selectivity"
	"github.com/san-kum/cohortsim/internal/timestep"
)

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *slog.Logger
	model    *model.Model
}

// New uses the built-in registry; a nil logger uses slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Experiment {
	return NewWithRegistry(cfg, NewRegistry(), logger)
}

func NewWithRegistry(cfg *config.Config, registry *Registry, logger *slog.Logger) *Experiment {
	if logger == nil {
		logger = slog.Default()
	}
	return &Experiment{cfg: cfg, registry: registry, logger: logger}
}

// Setup constructs every component and builds the model. The recorder may
// be nil.
func (e *Experiment) Setup(recorder model.Recorder) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	b := &builder{
		cfg:           e.cfg,
		selectivities: make(map[string]selectivity.Selectivity),
		derived:       make(map[string]*derived.Quantity),
	}

	mc := e.cfg.Model
	p, err := partition.New(mc.MinAge, mc.MaxAge, mc.PlusGroup, mc.Categories)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}

	for i, sc := range e.cfg.Selectivities {
		sel, err := e.registry.GetSelectivity(sc, b)
		if err != nil {
			return fmt.Errorf("selectivities[%d]: %w", i, err)
		}
		b.selectivities[sc.Label] = sel
	}

	quantities := make([]*derived.Quantity, 0, len(e.cfg.DerivedQuantities))
	for i, dc := range e.cfg.DerivedQuantities {
		q, err := e.registry.GetDerived(dc, b)
		if err != nil {
			return fmt.Errorf("derived_quantities[%d]: %w", i, err)
		}
		b.derived[dc.Label] = q
		quantities = append(quantities, q)
	}

	reg := process.NewRegistry()
	for i, pc := range e.cfg.Processes {
		proc, err := e.registry.GetProcess(pc, b)
		if err != nil {
			return fmt.Errorf("processes[%d]: %w", i, err)
		}
		if err := reg.Register(proc); err != nil {
			return fmt.Errorf("processes[%d]: %w", i, err)
		}
	}

	steps := timestep.NewManager()
	for _, tc := range e.cfg.TimeSteps {
		if err := steps.Add(timestep.New(tc.Label, tc.Processes)); err != nil {
			return err
		}
	}

	m := model.New(model.Config{StartYear: mc.StartYear, FinalYear: mc.FinalYear}, p, reg, steps, e.logger)
	if recorder != nil {
		m.SetRecorder(recorder)
	}

	for i, pc := range e.cfg.InitialisationPhases {
		phase, err := e.registry.GetPhase(pc)
		if err != nil {
			return fmt.Errorf("initialisation_phases[%d]: %w", i, err)
		}
		if len(pc.TimeStepProcesses) > 0 {
			o, ok := phase.(processOverrider)
			if !ok {
				return fmt.Errorf("initialisation_phases[%d]: type %s does not take time_step_processes", i, pc.Type)
			}
			for ts, procs := range pc.TimeStepProcesses {
				o.SetProcessOverride(ts, procs)
			}
		}
		m.AddPhase(phase)
	}
	for _, q := range quantities {
		m.AddDerivedQuantity(q)
	}
	for i, oc := range e.cfg.Observers {
		obs, err := e.registry.GetObserver(oc)
		if err != nil {
			return fmt.Errorf("observers[%d]: %w", i, err)
		}
		m.AddObserver(obs)
	}

	if err := m.Build(); err != nil {
		return err
	}
	e.model = m
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*model.Result, error) {
	if e.model == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.model.Run(ctx)
}

func (e *Experiment) Model() *model.Model { return e.model }

type processOverrider interface {
	SetProcessOverride(timeStep string, processes []string)
}

// builder resolves cross-section references while an Experiment is set up.
type builder struct {
	cfg           *config.Config
	selectivities map[string]selectivity.Selectivity
	derived       map[string]*derived.Quantity
}

func (b *builder) MinAge() int { return b.cfg.Model.MinAge }

func (b *builder) Selectivity(label, location string) (selectivity.Selectivity, error) {
	s, ok := b.selectivities[label]
	if !ok {
		return nil, &partition.ReferenceError{Kind: "selectivity", Label: label, Location: location}
	}
	return s, nil
}

func (b *builder) DerivedQuantity(label, location string) (*derived.Quantity, error) {
	q, ok := b.derived[label]
	if !ok {
		return nil, &partition.ReferenceError{Kind: "derived quantity", Label: label, Location: location}
	}
	return q, nil
}
