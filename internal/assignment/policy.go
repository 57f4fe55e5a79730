package assignment

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultMaxDistanceKm bounds the ambulance search radius.
const DefaultMaxDistanceKm = 15.0

// StaffingRule is one row of the severity → staffing table.
type StaffingRule struct {
	Severity      int      `yaml:"severity" json:"severity"`
	MinParamedics int      `yaml:"min_paramedics" json:"min_paramedics"`
	Levels        []string `yaml:"levels" json:"levels"`
	NurseRequired bool     `yaml:"nurse_required" json:"nurse_required"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// ConfidenceBand maps distances up to MaxKm (inclusive) to a confidence.
type ConfidenceBand struct {
	MaxKm      float64 `yaml:"max_km" json:"max_km"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// Rule names one step of the Phase 1 policy and its priority.
type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Priority int    `yaml:"priority" json:"priority"`
}

// ModelConfiguration is the versioned description of the Phase 1 operating rules.
type ModelConfiguration struct {
	Name            string           `yaml:"name" json:"name"`
	Version         string           `yaml:"version" json:"version"`
	Phase           int              `yaml:"phase" json:"phase"`
	MaxDistanceKm   float64          `yaml:"max_distance_km" json:"max_distance_km"`
	Rules           []Rule           `yaml:"rules" json:"rules"`
	Staffing        []StaffingRule   `yaml:"staffing" json:"staffing"`
	ConfidenceBands []ConfidenceBand `yaml:"confidence_bands" json:"confidence_bands"`
}

// DefaultModelConfiguration returns the built-in Phase 1 policy.
func DefaultModelConfiguration() ModelConfiguration {
	return ModelConfiguration{
		Name:          "phase1_rules",
		Version:       "1.0.0",
		Phase:         PhaseRules,
		MaxDistanceKm: DefaultMaxDistanceKm,
		Rules: []Rule{
			{Name: "nearest_available_ambulance", Priority: 1},
			{Name: "severity_staffing", Priority: 2},
			{Name: "nurse_for_critical", Priority: 3},
			{Name: "distance_confidence", Priority: 4},
		},
		Staffing: []StaffingRule{
			{Severity: 5, MinParamedics: 3, Levels: []string{LevelSenior, LevelSenior, LevelJunior}, NurseRequired: true, Description: "critical"},
			{Severity: 4, MinParamedics: 2, Levels: []string{LevelSenior, LevelJunior}, NurseRequired: true, Description: "serious"},
			{Severity: 3, MinParamedics: 2, Levels: []string{LevelJunior, LevelJunior}, Description: "moderate"},
			{Severity: 2, MinParamedics: 1, Levels: []string{LevelJunior}, Description: "minor"},
			{Severity: 1, MinParamedics: 1, Levels: []string{LevelJunior}, Description: "low"},
		},
		ConfidenceBands: DefaultConfidenceBands(),
	}
}

// DefaultConfidenceBands is the distance → confidence step table.
func DefaultConfidenceBands() []ConfidenceBand {
	return []ConfidenceBand{
		{MaxKm: 2, Confidence: 0.95},
		{MaxKm: 5, Confidence: 0.85},
		{MaxKm: 10, Confidence: 0.70},
		{MaxKm: 15, Confidence: 0.50},
	}
}

// LoadModelConfiguration reads a YAML (or JSON) policy file on top of the defaults.
// An empty path yields the defaults.
func LoadModelConfiguration(path string) (ModelConfiguration, error) {
	cfg := DefaultModelConfiguration()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ModelConfiguration{}, fmt.Errorf("read model configuration: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ModelConfiguration{}, fmt.Errorf("parse model configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ModelConfiguration{}, fmt.Errorf("model configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the staffing table covers every severity and the bands are usable.
func (c ModelConfiguration) Validate() error {
	if c.MaxDistanceKm <= 0 {
		return errors.New("max_distance_km must be positive")
	}
	if _, err := c.StaffingTable(); err != nil {
		return err
	}
	return validateBands(c.ConfidenceBands)
}

// StaffingTable indexes the staffing rules by severity.
func (c ModelConfiguration) StaffingTable() (map[int]StaffingRule, error) {
	table := make(map[int]StaffingRule, len(c.Staffing))
	for _, rule := range c.Staffing {
		if rule.Severity < 1 || rule.Severity > 5 {
			return nil, fmt.Errorf("staffing severity %d out of range", rule.Severity)
		}
		if _, dup := table[rule.Severity]; dup {
			return nil, fmt.Errorf("staffing severity %d defined twice", rule.Severity)
		}
		if rule.MinParamedics < 1 {
			return nil, fmt.Errorf("staffing severity %d: min_paramedics must be at least 1", rule.Severity)
		}
		for _, lvl := range rule.Levels {
			if lvl != LevelSenior && lvl != LevelJunior {
				return nil, fmt.Errorf("staffing severity %d: unknown level %q", rule.Severity, lvl)
			}
		}
		table[rule.Severity] = rule
	}
	for sev := 1; sev <= 5; sev++ {
		if _, ok := table[sev]; !ok {
			return nil, fmt.Errorf("staffing table missing severity %d", sev)
		}
	}
	return table, nil
}

// SortedRules returns the rules ordered by priority.
func (c ModelConfiguration) SortedRules() []Rule {
	out := append([]Rule(nil), c.Rules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func validateBands(bands []ConfidenceBand) error {
	if len(bands) == 0 {
		return errors.New("confidence bands are empty")
	}
	for i, b := range bands {
		if b.Confidence < 0 || b.Confidence > 1 {
			return fmt.Errorf("confidence band %d: confidence %v outside [0,1]", i, b.Confidence)
		}
		if b.MaxKm <= 0 {
			return fmt.Errorf("confidence band %d: max_km must be positive", i)
		}
		if i == 0 {
			continue
		}
		prev := bands[i-1]
		if b.MaxKm <= prev.MaxKm {
			return fmt.Errorf("confidence band %d: max_km must increase", i)
		}
		if b.Confidence > prev.Confidence {
			return fmt.Errorf("confidence band %d: confidence must not increase with distance", i)
		}
	}
	return nil
}
