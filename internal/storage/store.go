package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/cohortsim/internal/config"
	"github.com/san-kum/cohortsim/internal/initialisation"
	"github.com/san-kum/cohortsim/internal/model"
)

const (
	metadataFile  = "metadata.json"
	abundanceFile = "abundance.csv"
	configFile    = "config.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	Timestamp  time.Time                  `json:"timestamp"`
	StartYear  int                        `json:"start_year"`
	FinalYear  int                        `json:"final_year"`
	MinAge     int                        `json:"min_age"`
	MaxAge     int                        `json:"max_age"`
	Categories []string                   `json:"categories"`
	Phases     []initialisation.Report    `json:"initialisation_phases"`
	Derived    map[string]map[int]float64 `json:"derived_quantities"`
	Elapsed    string                     `json:"elapsed"`
}

// Row is one category's abundance at age in one year.
type Row struct {
	Year     int
	Category string
	Values   []float64
}

// Save writes the run under a new id: metadata.json, abundance.csv with one
// row per year and category, and the configuration that produced it.
func (s *Store) Save(name string, cfg *config.Config, result *model.Result) (string, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Name:       name,
		Timestamp:  time.Now(),
		StartYear:  cfg.Model.StartYear,
		FinalYear:  cfg.Model.FinalYear,
		MinAge:     result.MinAge,
		MaxAge:     result.MaxAge,
		Categories: result.Categories,
		Phases:     result.Phases,
		Derived:    result.Derived,
		Elapsed:    result.Elapsed.String(),
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}
	if err := writeAbundance(filepath.Join(runDir, abundanceFile), result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAbundance(path string, result *model.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"year", "category"}
	for age := result.MinAge; age <= result.MaxAge; age++ {
		header = append(header, fmt.Sprintf("age_%d", age))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, state := range result.States {
		year := strconv.Itoa(result.Years[i])
		for _, c := range result.Categories {
			row := []string{year, c}
			for _, v := range state.Values(c) {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

// List returns stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

func (s *Store) LoadAbundance(runID string) ([]Row, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, abundanceFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Row{}, nil
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		year, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", abundanceFile, i+2, err)
		}
		values := make([]float64, 0, len(record)-2)
		for _, field := range record[2:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", abundanceFile, i+2, err)
			}
			values = append(values, v)
		}
		rows = append(rows, Row{Year: year, Category: record[1], Values: values})
	}
	return rows, nil
}

// Totals sums each category's rows by year, in file order.
func Totals(rows []Row, category string) (years []int, totals []float64) {
	for _, row := range rows {
		if row.Category != category {
			continue
		}
		sum := 0.0
		for _, v := range row.Values {
			sum += v
		}
		years = append(years, row.Year)
		totals = append(totals, sum)
	}
	return years, totals
}
