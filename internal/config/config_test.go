package config

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.StartYear != DefaultStartYear || cfg.Model.FinalYear != DefaultFinalYear {
		t.Errorf("unexpected years %d-%d", cfg.Model.StartYear, cfg.Model.FinalYear)
	}
	if len(cfg.TimeSteps) == 0 {
		t.Error("default config has no time steps")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("two_sex_bh")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if len(cfg.Model.Categories) != 2 {
		t.Errorf("expected 2 categories, got %d", len(cfg.Model.Categories))
	}

	// presets are built fresh on every call
	cfg.Model.FinalYear = 3000
	if again := GetPreset("two_sex_bh"); again.Model.FinalYear == 3000 {
		t.Error("preset shares state between calls")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	if len(presets) != len(Presets) {
		t.Fatalf("expected %d presets, got %d", len(Presets), len(presets))
	}
	for i := 1; i < len(presets); i++ {
		if presets[i-1] > presets[i] {
			t.Errorf("presets not sorted: %v", presets)
		}
	}
	for _, name := range presets {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  final_year: 1995
initialisation_phases:
  - label: quick
    type: iterative
    years: 10
    lambda: .inf
    convergence_years: [5, 10]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.FinalYear != 1995 {
		t.Errorf("final_year = %d, want 1995", cfg.Model.FinalYear)
	}
	if cfg.Model.StartYear != DefaultStartYear {
		t.Errorf("start_year = %d, want default", cfg.Model.StartYear)
	}
	if len(cfg.InitialisationPhases) != 1 || cfg.InitialisationPhases[0].Label != "quick" {
		t.Fatalf("phases not replaced: %+v", cfg.InitialisationPhases)
	}
	if !math.IsInf(cfg.InitialisationPhases[0].Lambda, 1) {
		t.Errorf("lambda = %v, want +Inf", cfg.InitialisationPhases[0].Lambda)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"start year zero", func(c *Config) { c.Model.StartYear = 0 }, "start_year"},
		{"final before start", func(c *Config) { c.Model.FinalYear = c.Model.StartYear - 1 }, "final_year"},
		{"bad ages", func(c *Config) { c.Model.MaxAge = c.Model.MinAge - 1 }, "age range"},
		{"no categories", func(c *Config) { c.Model.Categories = nil }, "model.categories"},
		{"no time steps", func(c *Config) { c.TimeSteps = nil }, "time_steps"},
		{"duplicate process", func(c *Config) { c.Processes[1].Label = c.Processes[0].Label }, "processes[1]"},
		{"missing process type", func(c *Config) { c.Processes[2].Type = "" }, "processes[2]"},
		{"missing phase type", func(c *Config) { c.InitialisationPhases[0].Type = "" }, "initialisation_phases[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := Save(path, GetPreset("maturation")); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Processes[1].Type != "maturation" || cfg.Processes[1].To[0] != "mature" {
		t.Errorf("maturation process not round-tripped: %+v", cfg.Processes[1])
	}
	if len(cfg.InitialisationPhases[1].Table[0]) != 8 {
		t.Errorf("cinitial table not round-tripped")
	}
}
