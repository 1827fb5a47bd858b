// Package initialisation prepares the partition before the dated run by
// driving the annual cycle toward equilibrium.
//
// Three strategies are provided:
//
//   - [Iterative]: a fixed number of years, optionally stopping early once
//     the partition stops changing
//   - [Derived]: one pass per age class, then plus-group correction and
//     convergence
//   - [Cinitial]: redistribute a table of target abundances across the
//     existing composition, then run one year for derived quantities
//
// Every loop is bounded by a count or by a tolerance under an explicit
// maximum.
package initialisation

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
)

// Runner advances the partition one virtual year for a phase.
type Runner interface {
	ExecuteForInitialisation(phase string) error
	InitialisationProcesses(phase string) []process.Process
}

// History is the initialisation record of a derived quantity. Phases pad
// it over a recruitment lag, drop values from years they undo and rescale
// it with the partition.
type History interface {
	PadInitialisationValues(n int)
	InitialisationLen() int
	TruncateInitialisationValues(n int)
	ScaleInitialisationValues(factor float64)
}

// Recorder receives progress for metrics. Env.Recorder may be nil.
type Recorder interface {
	InitialisationYear(phase string)
	ConvergenceVariance(phase string, variance float64)
}

// Env is what a phase needs from the model.
type Env struct {
	Partition *partition.Partition
	Runner    Runner
	Derived   []History
	Recorder  Recorder
	Logger    *slog.Logger
}

type Phase interface {
	Label() string
	Type() string
	Validate() error
	// ProcessOverrides maps time step labels to the process order used
	// while this phase runs.
	ProcessOverrides() map[string][]string
	Build(env Env) error
	Execute() error
	Report() Report
}

// Report summarises the last Execute.
type Report struct {
	Label     string  `json:"label"`
	Type      string  `json:"type"`
	YearsRun  int     `json:"years_run"`
	Converged bool    `json:"converged"`
	Variance  float64 `json:"variance,omitempty"`
}

type base struct {
	label     string
	overrides map[string][]string
	env       Env
	yearsRun  int
}

func (b *base) Label() string { return b.label }

func (b *base) ProcessOverrides() map[string][]string { return b.overrides }

// SetProcessOverride sets the process order of one time step for this phase.
func (b *base) SetProcessOverride(timeStep string, labels []string) {
	if b.overrides == nil {
		b.overrides = make(map[string][]string)
	}
	b.overrides[timeStep] = labels
}

func (b *base) validateBase() error {
	if b.label == "" {
		return fmt.Errorf("initialisation phase: label is required")
	}
	return nil
}

func (b *base) buildBase(env Env) error {
	if env.Partition == nil || env.Runner == nil {
		return fmt.Errorf("initialisation phase %q: partition and runner are required", b.label)
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	b.env = env
	return nil
}

// advance runs n virtual years.
func (b *base) advance(n int) error {
	for i := 0; i < n; i++ {
		if err := b.env.Runner.ExecuteForInitialisation(b.label); err != nil {
			return fmt.Errorf("initialisation phase %q: %w", b.label, err)
		}
		b.yearsRun++
		if b.env.Recorder != nil {
			b.env.Recorder.InitialisationYear(b.label)
		}
	}
	return nil
}

// ssbOffset is the largest spawning biomass lag among the phase's processes.
func (b *base) ssbOffset() int {
	offset := 0
	for _, p := range b.env.Runner.InitialisationProcesses(b.label) {
		if l, ok := p.(process.SSBLagged); ok && l.SSBOffset() > offset {
			offset = l.SSBOffset()
		}
	}
	return offset
}
