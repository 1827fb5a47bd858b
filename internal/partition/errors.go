package partition

import (
	"errors"
	"fmt"
)

// Domain errors for partition operations.
var (
	// ErrNotFound indicates a reference to an unknown category, process or time step.
	ErrNotFound = errors.New("partition: reference not found")

	// ErrDimensionMismatch indicates an age range or table shape disagreement.
	ErrDimensionMismatch = errors.New("partition: dimension mismatch")

	// ErrNegativeAbundance indicates a process produced a negative abundance.
	ErrNegativeAbundance = errors.New("partition: negative abundance")
)

// ReferenceError reports an unresolved name found while building a model.
type ReferenceError struct {
	Kind     string
	Label    string
	Location string
}

func (e *ReferenceError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Label)
	}
	return fmt.Sprintf("%s: %s %q not found", e.Location, e.Kind, e.Label)
}

func (e *ReferenceError) Unwrap() error {
	return ErrNotFound
}

// DimensionError reports a shape disagreement found while building a model.
type DimensionError struct {
	What     string
	Want     int
	Got      int
	Location string
}

func (e *DimensionError) Error() string {
	msg := fmt.Sprintf("%s: expected %d, got %d", e.What, e.Want, e.Got)
	if e.Location != "" {
		msg = e.Location + ": " + msg
	}
	return msg
}

func (e *DimensionError) Unwrap() error {
	return ErrDimensionMismatch
}

// AbundanceError reports a negative abundance left behind by a process.
// It signals a defect in the process, not in the configuration.
type AbundanceError struct {
	Category string
	Age      int
	Value    float64
	Process  string
}

func (e *AbundanceError) Error() string {
	if e.Process == "" {
		return fmt.Sprintf("category %q age %d: abundance %g is negative or not finite", e.Category, e.Age, e.Value)
	}
	return fmt.Sprintf("process %q left category %q age %d at %g", e.Process, e.Category, e.Age, e.Value)
}

func (e *AbundanceError) Unwrap() error {
	return ErrNegativeAbundance
}
