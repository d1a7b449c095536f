// Package nats publishes change events to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	natsgo "github.com/nats-io/nats.go"
)

// Publisher sends each change event to <prefix>.<category>.<kind> so
// subscribers can filter with wildcards, e.g. "bovine.alerts.zone.>".
// It implements pipeline.ChangeSink.
type Publisher struct {
	conn   *natsgo.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials the server and returns a publisher for the subject prefix.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	conn, err := natsgo.Connect(url,
		natsgo.Name("bovine"),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.Timeout(5*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// Publish sends the events and flushes so a nil return means the server
// accepted every message.
func (p *Publisher) Publish(ctx context.Context, events []domain.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		msg, err := buildMsg(p.prefix, events[i])
		if err != nil {
			return err
		}
		if err := p.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Subject, err)
		}
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush change events: %w", err)
	}
	p.logger.Debug("change events published", "count", len(events), "prefix", p.prefix)
	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Drain()
}

func buildMsg(prefix string, event domain.ChangeEvent) (*natsgo.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("serialize change event: %w", err)
	}
	msg := natsgo.NewMsg(fmt.Sprintf("%s.%s.%s", prefix, event.Category, event.Kind))
	msg.Data = data
	msg.Header.Set("Bovine-Subject-Id", event.SubjectID)
	return msg, nil
}
