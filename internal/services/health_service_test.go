package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"salespulse/internal/cache"
	"salespulse/internal/shared/testutil"
)

func TestHealthCheck(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	tests := []struct {
		name  string
		cache *cache.ResultCache
		want  string
	}{
		{"disabled", nil, "disabled"},
		{"memory backend", cache.New(cache.NewMemoryStore(10, 0), cache.Options{}, logger), "ready"},
		{"unreachable backend", cache.New(brokenStore{}, cache.Options{}, logger), "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthService("1.0.0", "", tt.cache, logger)
			status := hs.HealthCheck(context.Background())

			assert.Equal(t, "ok", status.Status)
			assert.Equal(t, "1.0.0", status.Version)
			cacheHealth, ok := status.Services["cache"].(ServiceHealth)
			assert.True(t, ok)
			assert.Equal(t, tt.want, cacheHealth.Status)
		})
	}
}

func TestVersion(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hs := NewHealthService("1.0.0", "2024-01-01T00:00:00Z", nil, logger)

	info := hs.Version()
	assert.Equal(t, "1.0.0", info["version"])
	assert.Equal(t, "2024-01-01T00:00:00Z", info["build_time"])
	assert.Contains(t, info, "go_version")
}
