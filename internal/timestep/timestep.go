// Package timestep runs the ordered processes of one simulated year and
// notifies subscribed executors at year, mortality block and process
// boundaries.
//
// At each boundary notifications are delivered in this order:
//
//  1. year pre-notifications, once before the first process
//  2. block pre-notifications before the block's first process
//  3. process pre-notifications for executors bound to that index
//  4. the process itself
//  5. process post-notifications
//  6. block post-notifications after the block's last process
//  7. year post-notifications, once after the last process
//
// Executors are invoked synchronously in registration order.
package timestep

import (
	"errors"
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/process"
)

// ErrNoMortalityBlock is returned when an executor subscribes to the block
// of a time step that has no mortality process.
var ErrNoMortalityBlock = errors.New("timestep: no mortality block")

// Executor observes a time step. PreExecute runs immediately before the
// subscribed span and PostExecute immediately after it.
type Executor interface {
	PreExecute(year int, timeStep string)
	PostExecute(year int, timeStep string)
}

// Block is the index range [First, Last] of the longest contiguous run of
// mortality processes. Valid is false when no mortality process exists.
type Block struct {
	First int
	Last  int
	Valid bool
}

// DetectBlock finds the longest contiguous run of mortality processes,
// preferring the earliest run on ties.
func DetectBlock(procs []process.Process) Block {
	var best Block
	start := -1
	for i := 0; i <= len(procs); i++ {
		mortality := i < len(procs) && procs[i].Type() == process.TypeMortality
		if mortality {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if !best.Valid || i-start > best.Last-best.First+1 {
				best = Block{First: start, Last: i - 1, Valid: true}
			}
			start = -1
		}
	}
	return best
}

type TimeStep struct {
	label         string
	processLabels []string
	initLabels    map[string][]string

	partition     *partition.Partition
	processes     []process.Process
	block         Block
	initProcesses map[string][]process.Process
	initBlocks    map[string]Block

	yearExecutors      []Executor
	initExecutors      []Executor
	blockExecutors     []Executor
	initBlockExecutors map[string][]Executor
	processExecutors   map[int]map[int][]Executor
	built              bool
}

func New(label string, processLabels []string) *TimeStep {
	return &TimeStep{
		label:            label,
		processLabels:    processLabels,
		initLabels:         make(map[string][]string),
		initProcesses:      make(map[string][]process.Process),
		initBlocks:         make(map[string]Block),
		initBlockExecutors: make(map[string][]Executor),
		processExecutors:   make(map[int]map[int][]Executor),
	}
}

func (t *TimeStep) Label() string { return t.label }

// SetInitialisationProcessLabels replaces the process order used while the
// named initialisation phase runs. Must be called before Build.
func (t *TimeStep) SetInitialisationProcessLabels(phase string, labels []string) {
	t.initLabels[phase] = labels
}

// Build resolves process labels and detects the mortality block for the
// dated sequence and for each initialisation override.
func (t *TimeStep) Build(reg *process.Registry, p *partition.Partition) error {
	procs, err := resolve(reg, t.processLabels, fmt.Sprintf("time_step %q", t.label))
	if err != nil {
		return err
	}
	t.processes = procs
	t.block = DetectBlock(procs)

	for phase, labels := range t.initLabels {
		procs, err := resolve(reg, labels, fmt.Sprintf("time_step %q initialisation %q", t.label, phase))
		if err != nil {
			return err
		}
		t.initProcesses[phase] = procs
		t.initBlocks[phase] = DetectBlock(procs)
	}

	t.partition = p
	t.built = true
	return nil
}

func resolve(reg *process.Registry, labels []string, location string) ([]process.Process, error) {
	out := make([]process.Process, 0, len(labels))
	for i, label := range labels {
		p, err := reg.Get(label)
		if err != nil {
			return nil, &partition.ReferenceError{
				Kind:     "process",
				Label:    label,
				Location: fmt.Sprintf("%s processes[%d]", location, i),
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *TimeStep) Block() Block { return t.block }

// InitialisationBlock reports the block of the sequence used by phase.
func (t *TimeStep) InitialisationBlock(phase string) Block {
	if b, ok := t.initBlocks[phase]; ok {
		return b
	}
	return t.block
}

func (t *TimeStep) Processes() []process.Process {
	out := make([]process.Process, len(t.processes))
	copy(out, t.processes)
	return out
}

// InitialisationProcesses returns the override for phase, or the dated
// sequence when none was set.
func (t *TimeStep) InitialisationProcesses(phase string) []process.Process {
	procs, ok := t.initProcesses[phase]
	if !ok {
		procs = t.processes
	}
	out := make([]process.Process, len(procs))
	copy(out, procs)
	return out
}

// SubscribeToYear registers e around every dated execution.
func (t *TimeStep) SubscribeToYear(e Executor) {
	t.yearExecutors = append(t.yearExecutors, e)
}

// SubscribeToInitialisation registers e around every initialisation pass.
func (t *TimeStep) SubscribeToInitialisation(e Executor) {
	t.initExecutors = append(t.initExecutors, e)
}

// SubscribeToBlock registers e around the mortality block in every dated
// year. It fails if the time step has no mortality process.
func (t *TimeStep) SubscribeToBlock(e Executor) error {
	if !t.built {
		return fmt.Errorf("time step %q: subscribe before build", t.label)
	}
	if !t.block.Valid {
		return fmt.Errorf("time step %q: %w", t.label, ErrNoMortalityBlock)
	}
	t.blockExecutors = append(t.blockExecutors, e)
	return nil
}

// SubscribeToInitialisationBlock registers e around the mortality block of
// the sequence phase runs, on every pass of that phase.
func (t *TimeStep) SubscribeToInitialisationBlock(phase string, e Executor) error {
	if !t.built {
		return fmt.Errorf("time step %q: subscribe before build", t.label)
	}
	if !t.InitialisationBlock(phase).Valid {
		return fmt.Errorf("time step %q initialisation %q: %w", t.label, phase, ErrNoMortalityBlock)
	}
	t.initBlockExecutors[phase] = append(t.initBlockExecutors[phase], e)
	return nil
}

// SubscribeToProcess registers e around the first occurrence of the named
// process in the given years and returns that process.
func (t *TimeStep) SubscribeToProcess(e Executor, years []int, label string) (process.Process, error) {
	if !t.built {
		return nil, fmt.Errorf("time step %q: subscribe before build", t.label)
	}
	index := -1
	for i, p := range t.processes {
		if p.Label() == label {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, &partition.ReferenceError{Kind: "process", Label: label, Location: fmt.Sprintf("time_step %q", t.label)}
	}
	for _, year := range years {
		byIndex, ok := t.processExecutors[year]
		if !ok {
			byIndex = make(map[int][]Executor)
			t.processExecutors[year] = byIndex
		}
		byIndex[index] = append(byIndex[index], e)
	}
	return t.processes[index], nil
}

// Execute runs every process for a dated year with notifications.
func (t *TimeStep) Execute(year int) error {
	if !t.built {
		return fmt.Errorf("time step %q: execute before build", t.label)
	}

	notifyPre(t.yearExecutors, year, t.label)
	byIndex := t.processExecutors[year]

	for i, p := range t.processes {
		if t.block.Valid && i == t.block.First {
			notifyPre(t.blockExecutors, year, t.label)
		}
		notifyPre(byIndex[i], year, t.label)

		if err := t.run(p, year); err != nil {
			return err
		}

		notifyPost(byIndex[i], year, t.label)
		if t.block.Valid && i == t.block.Last {
			notifyPost(t.blockExecutors, year, t.label)
		}
	}

	notifyPost(t.yearExecutors, year, t.label)
	return nil
}

// ExecuteForInitialisation runs the sequence for phase once. Only
// initialisation subscribers and the phase's block subscribers are
// notified, in the same boundary order as Execute.
func (t *TimeStep) ExecuteForInitialisation(phase string) error {
	if !t.built {
		return fmt.Errorf("time step %q: execute before build", t.label)
	}
	procs, ok := t.initProcesses[phase]
	if !ok {
		procs = t.processes
	}
	block := t.InitialisationBlock(phase)
	blockExecutors := t.initBlockExecutors[phase]

	notifyPre(t.initExecutors, process.InitialisationYear, t.label)
	for i, p := range procs {
		if block.Valid && i == block.First {
			notifyPre(blockExecutors, process.InitialisationYear, t.label)
		}
		if err := t.run(p, process.InitialisationYear); err != nil {
			return err
		}
		if block.Valid && i == block.Last {
			notifyPost(blockExecutors, process.InitialisationYear, t.label)
		}
	}
	notifyPost(t.initExecutors, process.InitialisationYear, t.label)
	return nil
}

func (t *TimeStep) run(p process.Process, year int) error {
	if err := p.Execute(year, t.label); err != nil {
		return fmt.Errorf("time step %q year %d: %w", t.label, year, err)
	}
	if err := t.partition.Validate(p.Label()); err != nil {
		return fmt.Errorf("time step %q year %d: %w", t.label, year, err)
	}
	return nil
}

func notifyPre(executors []Executor, year int, label string) {
	for _, e := range executors {
		e.PreExecute(year, label)
	}
}

func notifyPost(executors []Executor, year int, label string) {
	for _, e := range executors {
		e.PostExecute(year, label)
	}
}
