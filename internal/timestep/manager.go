package timestep

import (
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
)

// Manager holds the time steps of the annual cycle in execution order.
type Manager struct {
	steps  []*TimeStep
	byName map[string]*TimeStep
}

func NewManager() *Manager {
	return &Manager{byName: make(map[string]*TimeStep)}
}

func (m *Manager) Add(t *TimeStep) error {
	if _, dup := m.byName[t.label]; dup {
		return fmt.Errorf("duplicate time step label %q", t.label)
	}
	m.steps = append(m.steps, t)
	m.byName[t.label] = t
	return nil
}

func (m *Manager) Get(label string) (*TimeStep, error) {
	t, ok := m.byName[label]
	if !ok {
		return nil, &partition.ReferenceError{Kind: "time step", Label: label}
	}
	return t, nil
}

func (m *Manager) Steps() []*TimeStep {
	out := make([]*TimeStep, len(m.steps))
	copy(out, m.steps)
	return out
}

func (m *Manager) Build(reg *process.Registry, p *partition.Partition) error {
	if len(m.steps) == 0 {
		return fmt.Errorf("at least one time step is required")
	}
	for _, t := range m.steps {
		if err := t.Build(reg, p); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs one dated year through every time step.
func (m *Manager) Execute(year int) error {
	for _, t := range m.steps {
		if err := t.Execute(year); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteForInitialisation runs one virtual year of phase through every
// time step.
func (m *Manager) ExecuteForInitialisation(phase string) error {
	for _, t := range m.steps {
		if err := t.ExecuteForInitialisation(phase); err != nil {
			return err
		}
	}
	return nil
}

// InitialisationProcesses flattens the cycle used by phase, in order.
func (m *Manager) InitialisationProcesses(phase string) []process.Process {
	var out []process.Process
	for _, t := range m.steps {
		out = append(out, t.InitialisationProcesses(phase)...)
	}
	return out
}
