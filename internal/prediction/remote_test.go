package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteModelPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			var body struct {
				Features map[string]float64 `json:"features"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Len(t, body.Features, len(FeatureNames))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"prediction":1,"confidence":0.88,"probabilities":{"not_optimal":0.12,"optimal":0.88}}`))
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"healthy","updated_at":"2026-03-13T08:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewRemoteModel(srv.URL, "remote-v1", time.Second)
	out, err := m.Predict(context.Background(), fullVector())
	require.NoError(t, err)
	p, err := Normalize(m.ID(), out)
	require.NoError(t, err)
	assert.InDelta(t, 0.88, p.Confidence, 1e-9)

	st, err := m.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Present)
}

func TestRemoteModelServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewRemoteModel(srv.URL, "remote-v1", time.Second)
	_, err := m.Predict(context.Background(), fullVector())
	assert.ErrorIs(t, err, ErrModel)

	st, err := m.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Present)
}
