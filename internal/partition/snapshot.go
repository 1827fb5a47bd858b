package partition

// Snapshot is a point-in-time deep copy of category abundances. It never
// aliases the live vectors and is read-only once taken.
type Snapshot struct {
	labels []string
	data   map[string][]float64
}

// Snapshot copies the named categories, or every category when none are named.
func (p *Partition) Snapshot(labels ...string) (*Snapshot, error) {
	if len(labels) == 0 {
		labels = p.order
	}
	s := &Snapshot{
		labels: make([]string, 0, len(labels)),
		data:   make(map[string][]float64, len(labels)),
	}
	for _, label := range labels {
		c, err := p.Category(label)
		if err != nil {
			return nil, err
		}
		s.labels = append(s.labels, label)
		s.data[label] = cloneData(c.Data)
	}
	return s, nil
}

// Labels lists the captured categories in capture order.
func (s *Snapshot) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Values returns a copy of the captured vector for label, or nil.
func (s *Snapshot) Values(label string) []float64 {
	v, ok := s.data[label]
	if !ok {
		return nil
	}
	return cloneData(v)
}

// At reads one captured value without copying.
func (s *Snapshot) At(label string, index int) float64 {
	return s.data[label][index]
}

func (s *Snapshot) Total(label string) float64 {
	sum := 0.0
	for _, v := range s.data[label] {
		sum += v
	}
	return sum
}

// Restore writes the captured values back over the live categories.
func (s *Snapshot) Restore(p *Partition) error {
	for _, label := range s.labels {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		if len(c.Data) != len(s.data[label]) {
			return &DimensionError{What: "restored abundance length", Want: len(c.Data), Got: len(s.data[label]), Location: label}
		}
		copy(c.Data, s.data[label])
	}
	return nil
}

func cloneData(src []float64) []float64 {
	dst := make([]float64, len(src))
	copy(dst, src)
	return dst
}
