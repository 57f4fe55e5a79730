package prediction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	p, err := Normalize("m1", Output{Label: 1, Probabilities: []float64{0.08, 0.92}})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Label)
	assert.InDelta(t, 0.92, p.Confidence, 1e-9)
	assert.Equal(t, RecommendAssign, p.Recommendation)
	assert.InDelta(t, 1.0, p.Probabilities.NotOptimal+p.Probabilities.Optimal, 1e-6)

	p, err = Normalize("m1", Output{Label: 0, Probabilities: []float64{0.7, 0.3}})
	require.NoError(t, err)
	assert.Equal(t, RecommendReview, p.Recommendation)
	assert.InDelta(t, 0.7, p.Confidence, 1e-9)
}

func TestNormalizeRejectsMalformedOutput(t *testing.T) {
	cases := map[string]Output{
		"label out of range": {Label: 2, Probabilities: []float64{0.5, 0.5}},
		"one class":          {Label: 0, Probabilities: []float64{1}},
		"does not sum":       {Label: 1, Probabilities: []float64{0.5, 0.7}},
		"negative":           {Label: 1, Probabilities: []float64{-0.2, 1.2}},
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize("m1", out)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrModel))
			var me *ModelError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, ReasonInvalidOutput, me.Reason)
		})
	}
}

func TestFeatureVectorMissing(t *testing.T) {
	fv := fullVector()
	delete(fv, "hour_of_day")
	assert.Equal(t, []string{"hour_of_day"}, fv.Missing())
	_, err := fv.Vector()
	assert.ErrorIs(t, err, ErrModel)

	values, err := fullVector().Vector()
	require.NoError(t, err)
	assert.Len(t, values, len(FeatureNames))
}
