// Package selectivity provides age-based multipliers and mean weights used by
// processes and derived quantities. Every value is a pure function of age.
package selectivity

import (
	"fmt"
	"math"
)

// Selectivity returns a multiplier, usually in [0, 1], for an age.
type Selectivity interface {
	Value(age int) float64
}

// Func adapts a plain function.
type Func func(age int) float64

func (f Func) Value(age int) float64 { return f(age) }

type Constant struct {
	C float64
}

func (s Constant) Value(int) float64 { return s.C }

// KnifeEdge is Alpha from age E onward and zero before.
type KnifeEdge struct {
	E     float64
	Alpha float64
}

func (s KnifeEdge) Value(age int) float64 {
	if float64(age) >= s.E {
		return s.Alpha
	}
	return 0
}

// Logistic reaches half of Alpha at A50 and 95% at A50+Ato95.
type Logistic struct {
	A50   float64
	Ato95 float64
	Alpha float64
}

func (s Logistic) Value(age int) float64 {
	threshold := (s.A50 - float64(age)) / s.Ato95
	switch {
	case threshold > 5:
		return 0
	case threshold < -5:
		return s.Alpha
	}
	return s.Alpha / (1 + math.Pow(19, threshold))
}

// DoubleNormal peaks at Mu with separate left and right spreads.
type DoubleNormal struct {
	Mu     float64
	SigmaL float64
	SigmaR float64
	Alpha  float64
}

func (s DoubleNormal) Value(age int) float64 {
	a := float64(age)
	sigma := s.SigmaR
	if a < s.Mu {
		sigma = s.SigmaL
	}
	return s.Alpha * math.Pow(2, -((a-s.Mu)/sigma)*((a-s.Mu)/sigma))
}

// AllValues lists one value per age starting at MinAge. Ages past the end
// reuse the last value.
type AllValues struct {
	MinAge int
	Values []float64
}

func (s AllValues) Value(age int) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	i := age - s.MinAge
	if i < 0 {
		return 0
	}
	if i >= len(s.Values) {
		return s.Values[len(s.Values)-1]
	}
	return s.Values[i]
}

// Validate checks parameters that would otherwise yield NaN multipliers.
func Validate(s Selectivity) error {
	switch v := s.(type) {
	case Logistic:
		if v.Ato95 <= 0 {
			return fmt.Errorf("logistic selectivity: ato95 must be positive, got %f", v.Ato95)
		}
	case DoubleNormal:
		if v.SigmaL <= 0 || v.SigmaR <= 0 {
			return fmt.Errorf("double normal selectivity: sigmas must be positive")
		}
	case AllValues:
		for i, x := range v.Values {
			if x < 0 {
				return fmt.Errorf("all values selectivity: value %d is negative", i)
			}
		}
	}
	return nil
}
