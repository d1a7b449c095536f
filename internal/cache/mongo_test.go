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

// Requires a reachable MongoDB; set MONGO_URI to point at it.
func TestMongoStore_Smoke(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := cache.NewMongoStore(ctx, uri, "bovine_smoke")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	cachetest.Run(t, func(*testing.T) cache.Store { return s })
}
