package derived

import (
	"math"
	"testing"

	"github.com/san-kum/cohortsim/internal/partition"
	"github.com/san-kum/cohortsim/internal/selectivity"
)

func setup(t *testing.T) (*partition.Partition, *Quantity) {
	t.Helper()
	p, err := partition.New(1, 3, true, []string{"male", "female"})
	if err != nil {
		t.Fatal(err)
	}
	male, _ := p.Category("male")
	female, _ := p.Category("female")
	copy(male.Data, []float64{10, 20, 30})
	copy(female.Data, []float64{1, 2, 3})

	q := NewBiomass("ssb", "annual", []string{"male+female"},
		selectivity.KnifeEdge{E: 2, Alpha: 1},
		selectivity.VonBertalanffy{LInf: 2, K: 100, T0: 0, A: 1, B: 1})
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := q.Build(p, 2000); err != nil {
		t.Fatal(err)
	}
	return p, q
}

func TestBiomassEvaluation(t *testing.T) {
	_, q := setup(t)

	q.PostExecute(2000, "annual")
	v, err := q.Value(2000)
	if err != nil {
		t.Fatal(err)
	}
	// weight ~2 at every age; ages 2 and 3 selected.
	if math.Abs(v-2*(20+30+2+3)) > 1e-6 {
		t.Errorf("biomass = %f, want %f", v, 2.0*55)
	}
}

func TestInitialisationHistory(t *testing.T) {
	p, q := setup(t)
	male, _ := p.Category("male")

	q.SetInitialising(true)
	for i := 0; i < 3; i++ {
		male.Data[2] = float64(100 * (i + 1))
		q.PostExecute(0, "annual")
	}
	q.SetInitialising(false)

	if len(q.InitialisationValues()) != 3 {
		t.Fatalf("init values = %d, want 3", len(q.InitialisationValues()))
	}

	last, err := q.LastInitialisationValue()
	if err != nil {
		t.Fatal(err)
	}
	prev, _ := q.Value(1999)
	if prev != last {
		t.Errorf("Value(1999) = %f, want last init value %f", prev, last)
	}
	early, _ := q.Value(1990)
	if early != q.InitialisationValues()[0] {
		t.Errorf("Value(1990) = %f, want earliest init value", early)
	}

	if _, err := q.Value(2005); err == nil {
		t.Error("expected error for unrecorded dated year")
	}

	q.Reset()
	if _, err := q.LastInitialisationValue(); err == nil {
		t.Error("expected error after reset")
	}
}

func TestPadInitialisationValues(t *testing.T) {
	_, q := setup(t)

	q.SetInitialising(true)
	q.PostExecute(0, "annual")
	q.SetInitialising(false)

	q.PadInitialisationValues(4)
	values := q.InitialisationValues()
	if len(values) != 4 {
		t.Fatalf("padded length = %d, want 4", len(values))
	}
	for i, v := range values {
		if v != values[3] {
			t.Errorf("value %d = %f, want %f", i, v, values[3])
		}
	}

	q.PadInitialisationValues(2)
	if len(q.InitialisationValues()) != 4 {
		t.Error("padding should never shrink the history")
	}
}

func TestBuild_UnknownCategory(t *testing.T) {
	p, _ := setup(t)
	q := NewAbundance("n", "annual", []string{"juvenile"}, nil)
	if err := q.Build(p, 2000); err == nil {
		t.Error("expected error for unknown category")
	}
}
