//go:build smoke

package nats

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Smoke(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sub, err := natsgo.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	received := make(chan *natsgo.Msg, 4)
	_, err = sub.ChanSubscribe("bovine.smoke.>", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := Connect(url, "bovine.smoke", logger)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, []domain.ChangeEvent{
		{Category: domain.SubjectZone, Kind: domain.ChangeNew, SubjectID: "cell_6.5_33"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "bovine.smoke.zone.new", msg.Subject)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
