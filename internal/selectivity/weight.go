package selectivity

import "math"

// Weight returns the mean weight of an individual at age.
type Weight interface {
	MeanWeight(age int) float64
}

// UnitWeight makes biomass equal to abundance.
type UnitWeight struct{}

func (UnitWeight) MeanWeight(int) float64 { return 1 }

// VonBertalanffy combines von Bertalanffy growth with a length-weight
// relationship W = A * L^B.
type VonBertalanffy struct {
	LInf float64
	K    float64
	T0   float64
	A    float64
	B    float64
}

func (g VonBertalanffy) Length(age int) float64 {
	return g.LInf * (1 - math.Exp(-g.K*(float64(age)-g.T0)))
}

func (g VonBertalanffy) MeanWeight(age int) float64 {
	l := g.Length(age)
	if l <= 0 {
		return 0
	}
	return g.A * math.Pow(l, g.B)
}
