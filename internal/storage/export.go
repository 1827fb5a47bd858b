package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/model"
	"github.com/san-kum/cohortsim/internal/observe"
)

type ExportData struct {
	Name         string                      `json:"name"`
	MinAge       int                         `json:"min_age"`
	MaxAge       int                         `json:"max_age"`
	Years        []int                       `json:"years"`
	Initial      map[string][]float64        `json:"initial"`
	Abundance    map[string][][]float64      `json:"abundance"`
	Derived      map[string]map[int]float64  `json:"derived_quantities"`
	Observations map[string][]observe.Record `json:"observations"`
	Phases       []initialisation.Report     `json:"initialisation_phases"`
}

// ExportJSON writes a whole run as one JSON document. Abundance is keyed by
// category and indexed [year][age].
func ExportJSON(w io.Writer, name string, result *model.Result) error {
	data := ExportData{
		Name:         name,
		MinAge:       result.MinAge,
		MaxAge:       result.MaxAge,
		Years:        result.Years,
		Initial:      make(map[string][]float64, len(result.Categories)),
		Abundance:    make(map[string][][]float64, len(result.Categories)),
		Derived:      result.Derived,
		Observations: result.Observations,
		Phases:       result.Phases,
	}

	for _, c := range result.Categories {
		if result.Initial != nil {
			data.Initial[c] = result.Initial.Values(c)
		}
		rows := make([][]float64, len(result.States))
		for i, s := range result.States {
			rows[i] = s.Values(c)
		}
		data.Abundance[c] = rows
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
