package prediction

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoaderMissingArtifact(t *testing.T) {
	l := FileLoader{Path: filepath.Join(t.TempDir(), "absent.json")}
	_, err := l.Load(context.Background())
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonUnavailable, me.Reason)

	st, err := l.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Present)
}

func TestFileLoaderLoadsArtifact(t *testing.T) {
	path := writeArtifact(t, testArtifact())
	l := FileLoader{Path: path}
	m, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "logreg-test", m.ID())

	st, err := l.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Present)
	assert.False(t, st.UpdatedAt.IsZero())
}

type countingLoader struct {
	calls int
	model Model
	err   error
}

func (c *countingLoader) Load(context.Context) (Model, error) {
	c.calls++
	return c.model, c.err
}

func TestLazyModelRetriesAfterBackoff(t *testing.T) {
	loader := &countingLoader{err: errors.New("disk unavailable")}
	lazy := NewLazyModel(loader, time.Minute, zerolog.Nop())
	now := fixedNow
	lazy.now = func() time.Time { return now }

	_, err := lazy.Predict(context.Background(), fullVector())
	assert.ErrorIs(t, err, ErrModel)
	_, err = lazy.Predict(context.Background(), fullVector())
	assert.ErrorIs(t, err, ErrModel)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, "unloaded", lazy.ID())

	m, err := NewLogistic(testArtifact(), "mem")
	require.NoError(t, err)
	loader.model, loader.err = m, nil
	now = now.Add(2 * time.Minute)

	_, err = lazy.Predict(context.Background(), fullVector())
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
	assert.Equal(t, "logreg-test", lazy.ID())

	_, err = lazy.Predict(context.Background(), fullVector())
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}
