// Package cache puts Redis in front of the history statistics query and backs the
// shared round robin counter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL matches the statistics refresh cadence.
const DefaultTTL = time.Hour

// KV is the subset of *redis.Client the package uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// HistoryStore caches GetStatistics results. Every other call goes straight to the
// wrapped store. Cache keys embed a generation number kept in Redis; every write
// bumps it, so entries cached by any replica stop being read. Redis failures are
// logged and the wrapped store answers instead.
type HistoryStore struct {
	store.HistoryStore
	kv     KV
	ttl    time.Duration
	prefix string
	genKey string
	log    zerolog.Logger
}

// NewHistoryStore wraps next. A non-positive ttl selects DefaultTTL.
func NewHistoryStore(next store.HistoryStore, kv KV, ttl time.Duration, log zerolog.Logger) *HistoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &HistoryStore{
		HistoryStore: next,
		kv:           kv,
		ttl:          ttl,
		prefix:       "dispatch:stats:",
		genKey:       "dispatch:stats:generation",
		log:          log.With().Str("component", "stats_cache").Logger(),
	}
}

func (c *HistoryStore) generation(ctx context.Context) (int64, error) {
	gen, err := c.kv.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *HistoryStore) statsKey(gen int64, hours int) string {
	return fmt.Sprintf("%s%d:%d", c.prefix, gen, hours)
}

func (c *HistoryStore) GetStatistics(ctx context.Context, hours int) (store.HistoryStatistics, error) {
	// The generation is read before the wrapped store so a concurrent write can only
	// leave pre-write data under a generation nobody reads any more.
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache generation unavailable")
		return c.HistoryStore.GetStatistics(ctx, hours)
	}
	key := c.statsKey(gen, hours)

	raw, err := c.kv.Get(ctx, key).Result()
	switch {
	case err == nil:
		var st store.HistoryStatistics
		if jerr := json.Unmarshal([]byte(raw), &st); jerr == nil {
			return st, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}

	st, err := c.HistoryStore.GetStatistics(ctx, hours)
	if err != nil {
		return store.HistoryStatistics{}, err
	}
	if payload, err := json.Marshal(st); err == nil {
		if err := c.kv.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		}
	}
	return st, nil
}

func (c *HistoryStore) CreateHistoryRecord(ctx context.Context, rec store.HistoryRecord) (uuid.UUID, error) {
	id, err := c.HistoryStore.CreateHistoryRecord(ctx, rec)
	if err == nil {
		c.invalidate(ctx)
	}
	return id, err
}

func (c *HistoryStore) UpdateOutcome(ctx context.Context, id uuid.UUID, outcome store.Outcome) error {
	err := c.HistoryStore.UpdateOutcome(ctx, id, outcome)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *HistoryStore) invalidate(ctx context.Context) {
	if err := c.kv.Incr(ctx, c.genKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache invalidation failed")
	}
}

// Counter is a round robin counter shared by every replica through Redis INCR.
type Counter struct {
	kv  KV
	key string
}

func NewCounter(kv KV, key string) *Counter {
	if key == "" {
		key = "dispatch:ab:round_robin"
	}
	return &Counter{kv: kv, key: key}
}

func (c *Counter) Next(ctx context.Context) (int64, error) {
	n, err := c.kv.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", c.key, err)
	}
	return n, nil
}
