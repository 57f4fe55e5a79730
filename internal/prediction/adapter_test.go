package prediction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterPredict(t *testing.T) {
	a := NewAdapter(&stubModel{id: "m1", out: Output{Label: 1, Probabilities: []float64{0.1, 0.9}}}, time.Second, zerolog.Nop())
	p, err := a.Predict(context.Background(), fullVector())
	require.NoError(t, err)
	assert.Equal(t, "m1", p.ModelID)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)
}

func TestAdapterTimeout(t *testing.T) {
	a := NewAdapter(&stubModel{id: "slow", block: true}, 20*time.Millisecond, zerolog.Nop())
	_, err := a.Predict(context.Background(), fullVector())
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonTimeout, me.Reason)
}

func TestAdapterRecoversPanics(t *testing.T) {
	a := NewAdapter(&stubModel{id: "broken", panics: true}, time.Second, zerolog.Nop())
	_, err := a.Predict(context.Background(), fullVector())
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonRuntime, me.Reason)
}

func TestAdapterWrapsPlainErrors(t *testing.T) {
	a := NewAdapter(&stubModel{id: "m1", err: errors.New("tensor shape mismatch")}, time.Second, zerolog.Nop())
	_, err := a.Predict(context.Background(), fullVector())
	assert.ErrorIs(t, err, ErrModel)
}

func TestAdapterRejectsIncompleteFeatures(t *testing.T) {
	a := NewAdapter(&stubModel{id: "m1"}, time.Second, zerolog.Nop())
	_, err := a.Predict(context.Background(), FeatureVector{"severity_level": 3})
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonInvalidInput, me.Reason)
}

func TestAdapterPredictBatch(t *testing.T) {
	m, err := NewLogistic(testArtifact(), "mem")
	require.NoError(t, err)
	a := NewAdapter(m, time.Second, zerolog.Nop())

	items := a.PredictBatch(context.Background(), []FeatureVector{fullVector(), {"severity_level": 1}})
	require.Len(t, items, 2)
	assert.NotNil(t, items[0].Prediction)
	assert.Empty(t, items[0].Error)
	assert.Nil(t, items[1].Prediction)
	assert.NotEmpty(t, items[1].Error)
}
