//go:build smoke

package postgis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestArchive_Smoke(t *testing.T) {
	connStr := os.Getenv("POSTGRES_URL")
	if connStr == "" {
		t.Skip("POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bbox := config.BBox{MinLat: 3.4, MinLng: 23.4, MaxLat: 12.3, MaxLng: 36}
	a, err := Open(ctx, connStr, bbox, 365, clockwork.NewRealClock(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	p, err := a.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.CategoryConflict, p.Kind)
	require.NoError(t, p.Validate())
}
