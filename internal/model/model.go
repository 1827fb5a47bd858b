// Package model drives a cohort model: it builds the partition, processes,
// time steps, derived quantities, observers and initialisation phases, then
// runs initialisation followed by the dated years.
//
// A Model is not safe for concurrent use. One Run owns the partition for its
// whole duration, Reset included.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/cohortsim/internal/derived"
	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/observe"
	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
	"github.com/san-kum/cohortsim/internal/timestep"
)

type Model struct {
	cfg       Config
	partition *partition.Partition
	processes *process.Registry
	timeSteps *timestep.Manager
	phases    []initialisation.Phase
	derived   []*derived.Quantity
	observers []observe.Observer
	recorder  Recorder
	logger    *slog.Logger
	built     bool
}

// New wires the pieces; a nil logger uses slog.Default().
func New(cfg Config, p *partition.Partition, reg *process.Registry, ts *timestep.Manager, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		cfg:       cfg,
		partition: p,
		processes: reg,
		timeSteps: ts,
		recorder:  noopRecorder{},
		logger:    logger,
	}
}

func (m *Model) AddPhase(p initialisation.Phase)       { m.phases = append(m.phases, p) }
func (m *Model) AddDerivedQuantity(q *derived.Quantity) { m.derived = append(m.derived, q) }
func (m *Model) AddObserver(o observe.Observer)         { m.observers = append(m.observers, o) }

func (m *Model) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	m.recorder = r
}

func (m *Model) Partition() *partition.Partition { return m.partition }
func (m *Model) Processes() *process.Registry    { return m.processes }
func (m *Model) TimeSteps() *timestep.Manager    { return m.timeSteps }
func (m *Model) Config() Config                  { return m.cfg }

// DerivedQuantity finds a derived quantity by label.
func (m *Model) DerivedQuantity(label string) (*derived.Quantity, error) {
	for _, q := range m.derived {
		if q.Label() == label {
			return q, nil
		}
	}
	return nil, &partition.ReferenceError{Kind: "derived quantity", Label: label}
}

// Build validates and resolves every reference. Any error is fatal: nothing
// has executed yet.
func (m *Model) Build() error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := m.processes.Validate(); err != nil {
		return err
	}
	for _, q := range m.derived {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	for _, o := range m.observers {
		if err := o.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for i, phase := range m.phases {
		if err := phase.Validate(); err != nil {
			return err
		}
		if seen[phase.Label()] {
			return fmt.Errorf("initialisation_phases[%d]: duplicate label %q", i, phase.Label())
		}
		seen[phase.Label()] = true
		for tsLabel, procs := range phase.ProcessOverrides() {
			ts, err := m.timeSteps.Get(tsLabel)
			if err != nil {
				return fmt.Errorf("initialisation phase %q: %w", phase.Label(), err)
			}
			ts.SetInitialisationProcessLabels(phase.Label(), procs)
		}
	}

	if err := m.processes.Build(m.partition); err != nil {
		return err
	}
	if err := m.timeSteps.Build(m.processes, m.partition); err != nil {
		return err
	}
	if err := m.checkScalingPhases(); err != nil {
		return err
	}

	history := make([]initialisation.History, 0, len(m.derived))
	for _, q := range m.derived {
		if err := q.Build(m.partition, m.cfg.StartYear); err != nil {
			return err
		}
		ts, err := m.timeSteps.Get(q.TimeStep())
		if err != nil {
			return fmt.Errorf("derived quantity %q: %w", q.Label(), err)
		}
		ts.SubscribeToYear(q)
		ts.SubscribeToInitialisation(q)
		history = append(history, q)
	}

	for _, o := range m.observers {
		if err := o.Build(m.timeSteps, m.partition); err != nil {
			return err
		}
	}

	env := initialisation.Env{
		Partition: m.partition,
		Runner:    m.timeSteps,
		Derived:   history,
		Recorder:  m.recorder,
		Logger:    m.logger,
	}
	for _, phase := range m.phases {
		if err := phase.Build(env); err != nil {
			return err
		}
	}

	m.built = true
	m.logger.Debug("model built",
		slog.Int("categories", len(m.partition.Labels())),
		slog.Int("processes", len(m.processes.All())),
		slog.Int("time_steps", len(m.timeSteps.Steps())),
		slog.Int("initialisation_phases", len(m.phases)),
	)
	return nil
}

// checkScalingPhases resolves the phase each biomass-target process rescales
// in. The phase must be iterative and must run the process.
func (m *Model) checkScalingPhases() error {
	for _, proc := range m.processes.All() {
		s, ok := proc.(process.PartitionScaler)
		if !ok || s.ScalingPhase() == "" {
			continue
		}
		label := s.ScalingPhase()
		location := fmt.Sprintf("process %q b0_initialisation_phase", proc.Label())

		var phase initialisation.Phase
		for _, p := range m.phases {
			if p.Label() == label {
				phase = p
				break
			}
		}
		if phase == nil {
			return &partition.ReferenceError{Kind: "initialisation phase", Label: label, Location: location}
		}
		if phase.Type() != "iterative" {
			return &partition.ReferenceError{Kind: "iterative initialisation phase", Label: label, Location: location}
		}

		runs := false
		for _, p := range m.timeSteps.InitialisationProcesses(label) {
			if p.Label() == proc.Label() {
				runs = true
				break
			}
		}
		if !runs {
			return &partition.ReferenceError{
				Kind:     "process",
				Label:    proc.Label(),
				Location: fmt.Sprintf("initialisation phase %q", label),
			}
		}
	}
	return nil
}

// Reset returns the model to its pre-run state: zeroed partition, processes
// at their configured parameters, empty histories.
func (m *Model) Reset() {
	m.partition.Reset()
	m.processes.Reset()
	for _, q := range m.derived {
		q.Reset()
	}
	for _, o := range m.observers {
		o.Reset()
	}
}

// Run performs one full model iteration. The context is checked between
// dated years.
func (m *Model) Run(ctx context.Context) (result *Result, err error) {
	if !m.built {
		return nil, fmt.Errorf("model: run before build")
	}
	start := time.Now()
	defer func() { m.recorder.RunFinished(time.Since(start), err) }()

	m.Reset()

	result = &Result{
		Categories:   m.partition.Labels(),
		MinAge:       m.partition.MinAge(),
		MaxAge:       m.partition.MaxAge(),
		Years:        make([]int, 0, m.cfg.Years()),
		States:       make([]*partition.Snapshot, 0, m.cfg.Years()),
		Derived:      make(map[string]map[int]float64),
		Observations: make(map[string][]observe.Record),
	}

	if err := m.initialise(result); err != nil {
		return nil, err
	}

	for year := m.cfg.StartYear; year <= m.cfg.FinalYear; year++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := m.timeSteps.Execute(year); err != nil {
			return nil, err
		}
		snap, err := m.partition.Snapshot()
		if err != nil {
			return nil, err
		}
		result.Years = append(result.Years, year)
		result.States = append(result.States, snap)
		m.recorder.YearExecuted(year)
	}

	for _, q := range m.derived {
		result.Derived[q.Label()] = q.Values()
	}
	for _, o := range m.observers {
		result.Observations[o.Label()] = o.Records()
	}
	result.Elapsed = time.Since(start)

	m.logger.Info("model run complete",
		slog.Int("start_year", m.cfg.StartYear),
		slog.Int("final_year", m.cfg.FinalYear),
		slog.Duration("duration", result.Elapsed),
	)
	return result, nil
}

func (m *Model) initialise(result *Result) error {
	for _, q := range m.derived {
		q.SetInitialising(true)
	}
	defer func() {
		for _, q := range m.derived {
			q.SetInitialising(false)
		}
	}()

	for _, phase := range m.phases {
		if err := phase.Execute(); err != nil {
			return err
		}
		report := phase.Report()
		result.Phases = append(result.Phases, report)
		m.logger.Debug("initialisation phase complete",
			slog.String("phase", report.Label),
			slog.String("type", report.Type),
			slog.Int("years", report.YearsRun),
			slog.Bool("converged", report.Converged),
		)
	}

	initial, err := m.partition.Snapshot()
	if err != nil {
		return err
	}
	result.Initial = initial
	return nil
}
