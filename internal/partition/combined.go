package partition

import (
	"fmt"
	"math"
	"strings"
)

// GroupSeparator joins category labels into one composite label.
const GroupSeparator = "+"

// CombinedCategories resolves a list of possibly composite labels into
// groups of live categories. It is a view: it owns no abundance data and
// must be rebuilt if the partition's category set changes.
type CombinedCategories struct {
	labels []string
	groups [][]*Category
}

// NewCombinedCategories resolves each label, splitting composites on "+".
func NewCombinedCategories(p *Partition, labels []string) (*CombinedCategories, error) {
	cc := &CombinedCategories{
		labels: make([]string, 0, len(labels)),
		groups: make([][]*Category, 0, len(labels)),
	}
	for i, label := range labels {
		parts := strings.Split(label, GroupSeparator)
		group := make([]*Category, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			c, err := p.Category(part)
			if err != nil {
				return nil, &ReferenceError{Kind: "category", Label: part, Location: fmt.Sprintf("categories[%d]", i)}
			}
			group = append(group, c)
		}
		cc.labels = append(cc.labels, label)
		cc.groups = append(cc.groups, group)
	}
	return cc, nil
}

// Size is the number of requested labels, not the number of categories.
func (cc *CombinedCategories) Size() int { return len(cc.labels) }

func (cc *CombinedCategories) Label(i int) string { return cc.labels[i] }

// Group returns the live categories behind label i.
func (cc *CombinedCategories) Group(i int) []*Category { return cc.groups[i] }

// Each visits groups in construction order.
func (cc *CombinedCategories) Each(fn func(i int, label string, group []*Category)) {
	for i, label := range cc.labels {
		fn(i, label, cc.groups[i])
	}
}

// Categories flattens the groups, in order, without removing repeats.
func (cc *CombinedCategories) Categories() []*Category {
	var out []*Category
	for _, g := range cc.groups {
		out = append(out, g...)
	}
	return out
}

// GroupTotal sums the live abundance of group i at data index idx.
func (cc *CombinedCategories) GroupTotal(i, idx int) float64 {
	sum := 0.0
	for _, c := range cc.groups[i] {
		sum += c.Data[idx]
	}
	return sum
}

// CachedCombinedCategories adds a cache of every member's abundance,
// replaced wholesale on each BuildCache call.
type CachedCombinedCategories struct {
	*CombinedCategories
	cache [][][]float64
	built bool
}

func NewCachedCombinedCategories(p *Partition, labels []string) (*CachedCombinedCategories, error) {
	cc, err := NewCombinedCategories(p, labels)
	if err != nil {
		return nil, err
	}
	return &CachedCombinedCategories{CombinedCategories: cc}, nil
}

// BuildCache deep copies every member's current abundance, in order.
func (c *CachedCombinedCategories) BuildCache() {
	cache := make([][][]float64, len(c.groups))
	for i, group := range c.groups {
		cache[i] = make([][]float64, len(group))
		for j, cat := range group {
			cache[i][j] = cloneData(cat.Data)
		}
	}
	c.cache = cache
	c.built = true
}

func (c *CachedCombinedCategories) Built() bool { return c.built }

// Cached returns the cached vector of member j in group i.
func (c *CachedCombinedCategories) Cached(i, j int) []float64 {
	return c.cache[i][j]
}

// CachedGroupTotal sums the cached abundance of group i at data index idx.
func (c *CachedCombinedCategories) CachedGroupTotal(i, idx int) float64 {
	sum := 0.0
	for _, v := range c.cache[i] {
		sum += v[idx]
	}
	return sum
}

// Restore writes the cache back over the live categories.
func (c *CachedCombinedCategories) Restore() {
	if !c.built {
		return
	}
	for i, group := range c.groups {
		for j, cat := range group {
			copy(cat.Data, c.cache[i][j])
		}
	}
}

// Blend selects how a value is interpolated across a mortality block.
type Blend int

const (
	// BlendLinear is (1-p)*before + p*after; p = 0.5 gives the mean.
	BlendLinear Blend = iota
	// BlendPower is before^(1-p) * after^p.
	BlendPower
)

func (b Blend) String() string {
	switch b {
	case BlendLinear:
		return "mean"
	case BlendPower:
		return "power"
	default:
		return fmt.Sprintf("blend(%d)", int(b))
	}
}

// ParseBlend accepts "mean"/"linear" and "power".
func ParseBlend(s string) (Blend, error) {
	switch strings.ToLower(s) {
	case "", "mean", "linear":
		return BlendLinear, nil
	case "power":
		return BlendPower, nil
	}
	return 0, fmt.Errorf("unknown interpolation method %q", s)
}

// Interpolate blends before and after at proportion p of the way through.
func Interpolate(before, after, p float64, b Blend) float64 {
	if b == BlendPower {
		return math.Pow(before, 1-p) * math.Pow(after, p)
	}
	return (1-p)*before + p*after
}
