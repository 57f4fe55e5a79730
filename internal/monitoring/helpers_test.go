package monitoring

import (
	"context"
	"testing"
	"time"

	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/store"
	"ems/dispatch/internal/store/memory"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func features() map[string]float64 {
	fv := make(map[string]float64, len(prediction.FeatureNames))
	for _, name := range prediction.FeatureNames {
		fv[name] = 1
	}
	return fv
}

func modelRecord(conf float64, at time.Time) store.PredictionRecord {
	label := 1
	return store.PredictionRecord{
		DispatchID: 1,
		ModelID:    "logreg-test",
		Label:      &label,
		Confidence: &conf,
		Features:   features(),
		CreatedAt:  at,
	}
}

func fallbackRecord(at time.Time) store.PredictionRecord {
	return store.PredictionRecord{
		DispatchID:     1,
		ModelID:        "unloaded",
		UsedFallback:   true,
		FallbackReason: prediction.ReasonUnavailable,
		Features:       features(),
		CreatedAt:      at,
	}
}

func seed(t *testing.T, mem *memory.Store, recs ...store.PredictionRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, mem.AppendPrediction(context.Background(), r))
	}
}

// alternating returns n values alternating around mean by ±spread.
func alternating(n int, mean, spread float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = mean - spread
		} else {
			out[i] = mean + spread
		}
	}
	return out
}
