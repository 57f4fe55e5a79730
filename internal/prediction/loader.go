package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loader produces a ready Model.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// FileLoader reads a JSON Artifact from disk.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(context.Context) (Model, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, &ModelError{Reason: ReasonUnavailable, Err: fmt.Errorf("read model artifact: %w", err)}
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, &ModelError{Reason: ReasonUnavailable, Err: fmt.Errorf("decode model artifact %s: %w", l.Path, err)}
	}
	m, err := NewLogistic(art, l.Path)
	if err != nil {
		return nil, &ModelError{Reason: ReasonUnavailable, Err: err}
	}
	return m, nil
}

// Probe reports whether the artifact file exists and when it last changed.
func (l FileLoader) Probe(context.Context) (ArtifactStatus, error) {
	st := ArtifactStatus{Source: l.Path}
	info, err := os.Stat(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		st.Detail = "artifact not found"
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Present = true
	st.UpdatedAt = info.ModTime().UTC()
	return st, nil
}

// LazyModel defers loading until the first prediction. A failed load is retried
// once retryAfter has elapsed; in between every call fails fast.
type LazyModel struct {
	loader     Loader
	retryAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time

	mu         sync.Mutex
	model      Model
	lastErr    error
	lastFailed time.Time
}

// NewLazyModel wraps a loader.
func NewLazyModel(loader Loader, retryAfter time.Duration, log zerolog.Logger) *LazyModel {
	return &LazyModel{
		loader:     loader,
		retryAfter: retryAfter,
		log:        log.With().Str("component", "model_loader").Logger(),
		now:        time.Now,
	}
}

func (m *LazyModel) get(ctx context.Context) (Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		return m.model, nil
	}
	if m.lastErr != nil && m.now().Sub(m.lastFailed) < m.retryAfter {
		return nil, m.lastErr
	}
	model, err := m.loader.Load(ctx)
	if err != nil {
		var me *ModelError
		if !errors.As(err, &me) {
			err = &ModelError{Reason: ReasonUnavailable, Err: err}
		}
		m.lastErr = err
		m.lastFailed = m.now()
		m.log.Warn().Err(err).Msg("model load failed")
		return nil, err
	}
	m.model = model
	m.lastErr = nil
	m.log.Info().Str("model_id", model.ID()).Msg("model loaded")
	return model, nil
}

// Reload drops the cached model so the next call loads it again.
func (m *LazyModel) Reload() {
	m.mu.Lock()
	m.model = nil
	m.lastErr = nil
	m.mu.Unlock()
}

// ID returns the loaded model id, or "unloaded".
func (m *LazyModel) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return "unloaded"
	}
	return m.model.ID()
}

func (m *LazyModel) Predict(ctx context.Context, fv FeatureVector) (Output, error) {
	model, err := m.get(ctx)
	if err != nil {
		return Output{}, err
	}
	return model.Predict(ctx, fv)
}

func (m *LazyModel) Info(ctx context.Context) (Info, error) {
	model, err := m.get(ctx)
	if err != nil {
		return Info{}, err
	}
	d, ok := model.(Describer)
	if !ok {
		return Info{ModelID: model.ID()}, nil
	}
	return d.Info(ctx)
}

func (m *LazyModel) FeatureImportance(ctx context.Context) (map[string]float64, error) {
	model, err := m.get(ctx)
	if err != nil {
		return nil, err
	}
	x, ok := model.(Explainer)
	if !ok {
		return nil, fmt.Errorf("model %s does not expose feature importance", model.ID())
	}
	return x.FeatureImportance(ctx)
}

func (m *LazyModel) Probe(ctx context.Context) (ArtifactStatus, error) {
	p, ok := m.loader.(Prober)
	if !ok {
		return ArtifactStatus{Source: "unknown", Present: m.ID() != "unloaded"}, nil
	}
	return p.Probe(ctx)
}
