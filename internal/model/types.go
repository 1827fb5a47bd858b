package model

import (
	"fmt"
	"time"

	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/observe"
	"github.com/san-kum/cohortsim/internal/partition"
)

type Config struct {
	StartYear int
	FinalYear int
}

func (c Config) Validate() error {
	if c.StartYear < 1 {
		return fmt.Errorf("start_year must be positive, got %d", c.StartYear)
	}
	if c.FinalYear < c.StartYear {
		return fmt.Errorf("final_year %d is before start_year %d", c.FinalYear, c.StartYear)
	}
	return nil
}

func (c Config) Years() int { return c.FinalYear - c.StartYear + 1 }

// Recorder receives run progress. The metrics collector implements it.
type Recorder interface {
	initialisation.Recorder
	YearExecuted(year int)
	RunFinished(d time.Duration, err error)
}

// Result is everything one run produced. States[i] is the partition at the
// end of Years[i]; Initial is the partition after initialisation.
type Result struct {
	Categories   []string
	MinAge       int
	MaxAge       int
	Years        []int
	Initial      *partition.Snapshot
	States       []*partition.Snapshot
	Derived      map[string]map[int]float64
	Observations map[string][]observe.Record
	Phases       []initialisation.Report
	Elapsed      time.Duration
}

// Series returns the total abundance of a category for each year.
func (r *Result) Series(category string) []float64 {
	out := make([]float64, len(r.States))
	for i, s := range r.States {
		out[i] = s.Total(category)
	}
	return out
}

type noopRecorder struct{}

func (noopRecorder) InitialisationYear(string)           {}
func (noopRecorder) ConvergenceVariance(string, float64) {}
func (noopRecorder) YearExecuted(int)                    {}
func (noopRecorder) RunFinished(time.Duration, error)    {}
