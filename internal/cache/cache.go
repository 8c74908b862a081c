package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
)

// DefaultTTL applies when neither the options nor the call supply one
const DefaultTTL = time.Hour

// Options tunes a ResultCache
type Options struct {
	TTL              time.Duration
	OperationTimeout time.Duration
	Metrics          *infrastructure.AnalysisMetrics
}

// ResultCache memoizes JSON encoded analysis results on top of a Store.
// Backend failures never reach the caller: reads degrade to misses and
// writes are dropped, both logged and counted.
type ResultCache struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	metrics *infrastructure.AnalysisMetrics

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// Stats is a point-in-time view of the cache
type Stats struct {
	Backend    string                 `json:"backend"`
	Enabled    bool                   `json:"enabled"`
	Available  bool                   `json:"available"`
	Hits       int64                  `json:"hits"`
	Misses     int64                  `json:"misses"`
	Errors     int64                  `json:"errors"`
	HitRatio   float64                `json:"hit_ratio"`
	TTLSeconds float64                `json:"ttl_seconds"`
	Store      map[string]interface{} `json:"store,omitempty"`
}

// New wraps store. A nil store yields a disabled cache that always misses.
func New(store Store, opts Options, logger *slog.Logger) *ResultCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &ResultCache{
		store:   store,
		ttl:     opts.TTL,
		timeout: opts.OperationTimeout,
		logger:  infrastructure.WithComponent(logger, "result_cache"),
		metrics: opts.Metrics,
	}
}

// Enabled reports whether a backend is attached
func (c *ResultCache) Enabled() bool {
	return c != nil && c.store != nil
}

// TTL returns the default entry lifetime
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

func (c *ResultCache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

func (c *ResultCache) fail(ctx context.Context, op, key string, err error) {
	c.errors.Add(1)
	infrastructure.RecordCacheError(ctx, c.metrics, op)
	c.logger.WarnContext(ctx, "cache operation failed",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", err.Error()))
}

// Get decodes the value stored under key into dest and reports whether it was found
func (c *ResultCache) Get(ctx context.Context, key string, dest any) bool {
	if !c.Enabled() {
		return false
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	data, found, err := c.store.Get(opCtx, key)
	if err != nil {
		c.fail(ctx, "get", key, err)
		found = false
	}
	if found {
		if err := json.Unmarshal(data, dest); err != nil {
			c.fail(ctx, "decode", key, err)
			found = false
		}
	}

	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	infrastructure.RecordCacheLookup(ctx, c.metrics, kindOf(key), found)
	c.logger.DebugContext(ctx, "cache lookup", slog.String("key", key), slog.Bool("hit", found))

	return found
}

// Set stores value under key. A non-positive ttl uses the default.
func (c *ResultCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.fail(ctx, "encode", key, err)
		return
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Set(opCtx, key, data, ttl); err != nil {
		c.fail(ctx, "set", key, err)
	}
}

// Delete removes a single key
func (c *ResultCache) Delete(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Delete(opCtx, key); err != nil {
		c.fail(ctx, "delete", key, err)
	}
}

// InvalidateFingerprint drops every analysis of one upload.
// Unlike lookups this administrative call reports backend failures.
func (c *ResultCache) InvalidateFingerprint(ctx context.Context, fingerprint string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	prefix := FingerprintPrefix(fingerprint)
	removed, err := c.store.DeletePrefix(opCtx, prefix)
	if err != nil {
		c.fail(ctx, "delete_prefix", prefix, err)
		return removed, apperrors.NewCacheError("failed to invalidate fingerprint", err)
	}

	c.logger.InfoContext(ctx, "fingerprint invalidated",
		slog.String("fingerprint", fingerprint),
		slog.Int("removed", removed))
	return removed, nil
}

// Clear empties the backend
func (c *ResultCache) Clear(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Clear(opCtx); err != nil {
		c.fail(ctx, "clear", "*", err)
		return apperrors.NewCacheError("failed to clear cache", err)
	}

	c.logger.InfoContext(ctx, "cache cleared", slog.String("backend", c.store.Name()))
	return nil
}

// Available probes the backend
func (c *ResultCache) Available(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	return c.store.Ping(opCtx) == nil
}

// Stats reports availability and counters
func (c *ResultCache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Backend:    "disabled",
		Enabled:    c.Enabled(),
		Available:  c.Available(ctx),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Errors:     c.errors.Load(),
		TTLSeconds: c.ttl.Seconds(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}

	if c.Enabled() {
		stats.Backend = c.store.Name()
		if reporter, ok := c.store.(StatsReporter); ok && stats.Available {
			stats.Store = reporter.GetStats()
		}
	}

	return stats
}

// Close releases the backend
func (c *ResultCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Close()
}

// GetOrCompute returns the cached value under key, or runs fn and stores its result.
// There is no lock across the lookup and the store, so concurrent callers may both
// compute; the last write wins. Errors from fn are returned and never cached.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, key string, ttl time.Duration, fn func() (T, error)) (T, bool, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, true, nil
	}

	value, err := fn()
	if err != nil {
		var zero T
		return zero, false, err
	}

	c.Set(ctx, key, value, ttl)
	return value, false, nil
}
