//go:build smoke

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/cache/cachetest"
	"github.com/stretchr/testify/require"
)

// Requires a reachable Redis; set REDIS_ADDR to point at it.
func TestRedisStore_Smoke(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := cache.NewRedisStore(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	cachetest.Run(t, func(*testing.T) cache.Store { return s })
}
