// Package abtest splits assignment traffic between the rule engine and the
// classifier, logs every decision and compares the two phases.
package abtest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
)

// Strategy selects how requests are split between phases.
type Strategy string

const (
	Random5050  Strategy = "random_50_50"
	RoundRobin  Strategy = "round_robin"
	TimeBased   Strategy = "time_based"
	WeightBased Strategy = "weight_based"
)

var ErrUnknownStrategy = errors.New("unknown a/b strategy")

// ParseStrategy accepts either case, e.g. "ROUND_ROBIN" or "round_robin".
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case Random5050, RoundRobin, TimeBased, WeightBased:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// StrategyInfo describes a strategy for the catalogue endpoint.
type StrategyInfo struct {
	Name          Strategy `json:"name"`
	Description   string   `json:"description"`
	Deterministic bool     `json:"deterministic"`
}

// Strategies lists every supported strategy.
func Strategies() []StrategyInfo {
	return []StrategyInfo{
		{Name: Random5050, Description: "Each request goes to phase 2 with probability 0.5"},
		{Name: RoundRobin, Description: "Phases alternate strictly, starting with phase 1", Deterministic: true},
		{Name: TimeBased, Description: "Phase 2 probability is higher during peak hours"},
		{Name: WeightBased, Description: "Phase 2 probability is the configured weight, for gradual rollout"},
	}
}

// Random is a uniform source in [0,1).
type Random interface {
	Float64() float64
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom returns a goroutine safe source seeded with seed.
func NewRandom(seed uint64) Random {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// dispatchDraw maps a dispatch id onto [0,1) so the same dispatch always draws
// the same value.
func dispatchDraw(dispatchID int64) float64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(dispatchID))
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}

// Counter hands out a monotonically increasing sequence starting at 1.
type Counter interface {
	Next(ctx context.Context) (int64, error)
}

// LocalCounter is an in-process Counter.
type LocalCounter struct {
	n atomic.Int64
}

func (c *LocalCounter) Next(context.Context) (int64, error) {
	return c.n.Add(1), nil
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
