// Package logsink writes change events to the structured log. It is the
// default alert sink when no broker is configured.
package logsink

import (
	"context"
	"log/slog"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Sink implements pipeline.ChangeSink.
type Sink struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

// Publish logs one record per event. Escalations and rapid movement are
// logged at warn so they stand out.
func (s *Sink) Publish(ctx context.Context, events []domain.ChangeEvent) error {
	for _, e := range events {
		level := slog.LevelInfo
		if e.Kind == domain.ChangeEscalated || e.Kind == domain.ChangeRapidMovement {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "change detected",
			"category", e.Category,
			"kind", e.Kind,
			"subject_id", e.SubjectID,
			"delta", e.Delta,
			"summary", e.Summary,
		)
	}
	return nil
}
