package assignment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModelConfigurationDefaults(t *testing.T) {
	cfg, err := LoadModelConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDistanceKm, cfg.MaxDistanceKm)
	require.NoError(t, cfg.Validate())
}

func TestLoadModelConfigurationYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase1.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: tuned
version: "2.1"
max_distance_km: 20
confidence_bands:
  - {max_km: 3, confidence: 0.9}
  - {max_km: 20, confidence: 0.4}
`), 0o644))

	cfg, err := LoadModelConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "tuned", cfg.Name)
	assert.Equal(t, 20.0, cfg.MaxDistanceKm)
	assert.Len(t, cfg.ConfidenceBands, 2)
	// staffing falls back to the built-in table
	assert.Len(t, cfg.Staffing, 5)
}

func TestLoadModelConfigurationJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "json", "staffing": [
  {"severity": 1, "min_paramedics": 1, "levels": ["junior"]},
  {"severity": 2, "min_paramedics": 1, "levels": ["junior"]},
  {"severity": 3, "min_paramedics": 1, "levels": ["junior"]},
  {"severity": 4, "min_paramedics": 1, "levels": ["senior"], "nurse_required": true},
  {"severity": 5, "min_paramedics": 2, "levels": ["senior", "senior"], "nurse_required": true}
]}`), 0o644))

	cfg, err := LoadModelConfiguration(path)
	require.NoError(t, err)
	table, err := cfg.StaffingTable()
	require.NoError(t, err)
	assert.Equal(t, 2, table[5].MinParamedics)
}

func TestLoadModelConfigurationMissingSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`staffing:
  - {severity: 1, min_paramedics: 1, levels: [junior]}
`), 0o644))

	_, err := LoadModelConfiguration(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing severity 2")
}

func TestSortedRules(t *testing.T) {
	cfg := DefaultModelConfiguration()
	cfg.Rules = []Rule{{Name: "b", Priority: 2}, {Name: "a", Priority: 1}}
	rules := cfg.SortedRules()
	assert.Equal(t, "a", rules[0].Name)
	assert.Equal(t, "b", cfg.Rules[0].Name)
}
