package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"salespulse/internal/config"
)

// Store is a byte-oriented key/value backend with per-entry expiry.
// Every method is atomic on its own; callers get no cross-call locking.
type Store interface {
	// Get returns the value and true, or false when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	// Name identifies the backend in stats and logs
	Name() string
}

// StatsReporter is implemented by stores that expose backend specific statistics
type StatsReporter interface {
	GetStats() map[string]interface{}
}

// NewStore builds the backend selected by cfg.Backend
func NewStore(cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(cfg.MaxEntries, cfg.CleanupInterval), nil
	case "redis":
		return NewRedisStore(cfg.RedisURL)
	case "badger":
		return NewBadgerStore(cfg.BadgerDir, logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
