package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"ems/dispatch/internal/store"
	"ems/dispatch/internal/store/memory"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu      sync.Mutex
	data    map[string]string
	ttl     map[string]time.Duration
	counter map[string]int64
	fail    error
	gets    int
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttl: map[string]time.Duration{}, counter: map[string]int64{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.fail != nil {
		return redis.NewStringResult("", f.fail)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewStatusResult("", f.fail)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	f.counter[key]++
	f.data[key] = strconv.FormatInt(f.counter[key], 10)
	return redis.NewIntResult(f.counter[key], nil)
}

type countingHistory struct {
	store.HistoryStore
	stats int
}

func (c *countingHistory) GetStatistics(ctx context.Context, hours int) (store.HistoryStatistics, error) {
	c.stats++
	return c.HistoryStore.GetStatistics(ctx, hours)
}

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func TestStatisticsAreCached(t *testing.T) {
	mem := memory.New(func() time.Time { return fixedNow })
	next := &countingHistory{HistoryStore: mem}
	kv := newFakeKV()
	c := NewHistoryStore(next, kv, 0, zerolog.Nop())
	ctx := context.Background()

	_, err := c.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 1, AmbulanceID: 7, Confidence: 0.95, CreatedAt: fixedNow})
	require.NoError(t, err)

	first, err := c.GetStatistics(ctx, 24)
	require.NoError(t, err)
	second, err := c.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.stats)
	assert.Equal(t, DefaultTTL, kv.ttl["dispatch:stats:1:24"])

	_, err = c.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 2, AmbulanceID: 8, Confidence: 0.85, CreatedAt: fixedNow})
	require.NoError(t, err)
	third, err := c.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 2, next.stats)
	assert.Equal(t, 2, third.TotalAssignments)
}

func TestStatisticsInvalidatedAcrossReplicas(t *testing.T) {
	mem := memory.New(func() time.Time { return fixedNow })
	kv := newFakeKV()
	replicaA := NewHistoryStore(mem, kv, 0, zerolog.Nop())
	replicaB := NewHistoryStore(mem, kv, 0, zerolog.Nop())
	ctx := context.Background()

	before, err := replicaA.GetStatistics(ctx, 24)
	require.NoError(t, err)
	require.Equal(t, 0, before.TotalAssignments)

	id, err := replicaB.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 1, AmbulanceID: 7, Confidence: 0.95, CreatedAt: fixedNow})
	require.NoError(t, err)
	after, err := replicaA.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalAssignments)

	optimal := true
	require.NoError(t, replicaB.UpdateOutcome(ctx, id, store.Outcome{WasOptimal: &optimal}))
	withOutcome, err := replicaA.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, withOutcome.OptimalCount)

	restarted := NewHistoryStore(mem, kv, 0, zerolog.Nop())
	cached, err := restarted.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, withOutcome, cached)
}

func TestStatisticsFallThroughWhenRedisFails(t *testing.T) {
	mem := memory.New(func() time.Time { return fixedNow })
	kv := newFakeKV()
	kv.fail = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	c := NewHistoryStore(mem, kv, time.Minute, zerolog.Nop())

	_, err := c.GetStatistics(context.Background(), 24)
	assert.NoError(t, err)
}

func TestCounter(t *testing.T) {
	kv := newFakeKV()
	c := NewCounter(kv, "")
	for want := int64(1); want <= 3; want++ {
		n, err := c.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	kv.fail = errors.New("READONLY")
	_, err := c.Next(context.Background())
	assert.Error(t, err)
}
