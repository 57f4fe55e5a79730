package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceScorerBands(t *testing.T) {
	s, err := NewDistanceScorer(DefaultConfidenceBands())
	require.NoError(t, err)

	cases := []struct {
		km   float64
		want float64
	}{
		{0.15, 0.95},
		{2.0, 0.95},
		{2.01, 0.85},
		{5, 0.85},
		{7.5, 0.70},
		{12, 0.50},
		{40, 0.50},
	}
	for _, tc := range cases {
		got, _ := s.Score(tc.km)
		assert.Equal(t, tc.want, got, "distance %v", tc.km)
	}
}

func TestDistanceScorerMonotonic(t *testing.T) {
	s, err := NewDistanceScorer(DefaultConfidenceBands())
	require.NoError(t, err)

	prev := 1.0
	for km := 0.0; km <= 20; km += 0.25 {
		got, _ := s.Score(km)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, prev)
		prev = got
	}
}

func TestDistanceScorerRejectsBadTables(t *testing.T) {
	_, err := NewDistanceScorer(nil)
	require.Error(t, err)

	_, err = NewDistanceScorer([]ConfidenceBand{{MaxKm: 2, Confidence: 0.5}, {MaxKm: 5, Confidence: 0.9}})
	require.Error(t, err)

	_, err = NewDistanceScorer([]ConfidenceBand{{MaxKm: 5, Confidence: 0.9}, {MaxKm: 2, Confidence: 0.5}})
	require.Error(t, err)

	_, err = NewDistanceScorer([]ConfidenceBand{{MaxKm: 2, Confidence: 1.5}})
	require.Error(t, err)
}
