package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meteomancer/weatheroracle/internal/consensus"
)

// DefaultTTL matches the hour-sized epoch bucket: a longer TTL would only
// serve keys that explicitly name a past epoch.
const DefaultTTL = time.Hour

// ComputeFunc produces a forecast on a cache miss.
type ComputeFunc func(ctx context.Context) (*consensus.AggregatedForecast, error)

// Stats is a point-in-time snapshot of cache effectiveness counters.
// Evictions is populated only when the backing store tracks them.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// ManagerOptions tunes a Manager. The zero value means DefaultTTL,
// caching enabled, slog.Default().
type ManagerOptions struct {
	TTL      time.Duration
	Disabled bool
	Logger   *slog.Logger
}

// Manager serializes aggregated forecasts in and out of a Store and
// collapses concurrent computes for the same key into a single flight.
// Backend failures degrade to misses so the pipeline always has the
// compute path available. In disabled mode every Get is a miss and every
// Set a no-op.
type Manager struct {
	store    Store
	ttl      time.Duration
	disabled bool
	logger   *slog.Logger

	flight singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

func NewManager(store Store, opts ManagerOptions) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:    store,
		ttl:      opts.TTL,
		disabled: opts.Disabled,
		logger:   opts.Logger,
	}
}

func (m *Manager) Disabled() bool { return m.disabled }

func (m *Manager) TTL() time.Duration { return m.ttl }

// Get returns the cached forecast for key, or ok=false on a miss.
// Backend and decode failures are logged and reported as misses.
func (m *Manager) Get(ctx context.Context, key Key) (*consensus.AggregatedForecast, bool) {
	if m.disabled {
		m.misses.Add(1)
		return nil, false
	}
	raw, ok, err := m.store.Get(ctx, key.String())
	if err != nil {
		m.logger.Warn("cache read failed", "key", key.String(), "error", err)
		m.misses.Add(1)
		return nil, false
	}
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	var agg consensus.AggregatedForecast
	if err := json.Unmarshal([]byte(raw), &agg); err != nil {
		m.logger.Warn("invalid cache entry: unmarshal error", "key", key.String(), "error", err)
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return &agg, true
}

// Set stores the forecast under key for the manager's TTL.
func (m *Manager) Set(ctx context.Context, key Key, agg *consensus.AggregatedForecast) error {
	if m.disabled {
		return nil
	}
	p, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode forecast for cache: %w", err)
	}
	return m.store.Set(ctx, key.String(), string(p), m.ttl)
}

// GetOrCompute returns the cached forecast for key, running compute to
// produce and store one on a miss. Concurrent callers with the same key
// share a single compute and receive the same result; the compute runs
// under the first caller's context. fromCache reports whether the value
// was served from the store without running compute.
func (m *Manager) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (agg *consensus.AggregatedForecast, fromCache bool, err error) {
	if m.disabled {
		agg, err := compute(ctx)
		return agg, false, err
	}

	type flightResult struct {
		agg       *consensus.AggregatedForecast
		fromCache bool
	}
	v, err, _ := m.flight.Do(key.String(), func() (any, error) {
		if agg, ok := m.Get(ctx, key); ok {
			return flightResult{agg: agg, fromCache: true}, nil
		}
		agg, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		// A failed write only costs the next caller a recompute.
		if err := m.Set(ctx, key, agg); err != nil {
			m.logger.Warn("cache write failed", "key", key.String(), "error", err)
		}
		return flightResult{agg: agg}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(flightResult)
	return res.agg, res.fromCache, nil
}

// Invalidate removes a single key.
func (m *Manager) Invalidate(ctx context.Context, key Key) error {
	if m.disabled {
		return nil
	}
	return m.store.Delete(ctx, key.String())
}

// Flush drops every entry. A Set after a Flush stores whatever value the
// caller passes; nothing dropped here can reappear.
func (m *Manager) Flush(ctx context.Context) error {
	if m.disabled {
		return nil
	}
	return m.store.Clear(ctx)
}

// Stats reports hit/miss counters and, when the backend tracks them,
// lazy evictions.
func (m *Manager) Stats() Stats {
	s := Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
	if ec, ok := m.store.(evictionCounter); ok {
		s.Evictions = ec.Evictions()
	}
	return s
}
