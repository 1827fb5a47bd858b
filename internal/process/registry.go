package process

import (
	"fmt"

	"github.com/san-kum/cohortsim/internal/partition"
)

// Registry resolves processes by label. Time steps hold references into it;
// the registry owns the processes.
type Registry struct {
	byLabel map[string]Process
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{byLabel: make(map[string]Process)}
}

func (r *Registry) Register(p Process) error {
	if _, dup := r.byLabel[p.Label()]; dup {
		return fmt.Errorf("duplicate process label %q", p.Label())
	}
	r.byLabel[p.Label()] = p
	r.order = append(r.order, p.Label())
	return nil
}

func (r *Registry) Get(label string) (Process, error) {
	p, ok := r.byLabel[label]
	if !ok {
		return nil, &partition.ReferenceError{Kind: "process", Label: label}
	}
	return p, nil
}

// All returns processes in registration order.
func (r *Registry) All() []Process {
	out := make([]Process, 0, len(r.order))
	for _, label := range r.order {
		out = append(out, r.byLabel[label])
	}
	return out
}

func (r *Registry) Validate() error {
	for _, p := range r.All() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Build(part *partition.Partition) error {
	for _, p := range r.All() {
		if err := p.Build(part); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Reset() {
	for _, p := range r.All() {
		p.Reset()
	}
}
