// Package source fetches every external feed in parallel, isolating failures
// per source and substituting the last known good payload when a fetch fails.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Collaborator is one external feed. Fetch returns a normalized payload or a
// failure wrapping one of the domain source errors. Implementations should
// honour ctx, but the executor abandons calls that do not.
type Collaborator interface {
	ID() string
	Category() domain.Category
	Fetch(ctx context.Context) (domain.Payload, error)
}

// TimedCollaborator is implemented by collaborators that can serve a payload
// retrieved earlier, such as Memoized. The returned time is when the payload
// was really fetched.
type TimedCollaborator interface {
	Collaborator
	FetchTimed(ctx context.Context) (domain.Payload, time.Time, error)
}

// ExecutorConfig bounds a fan-out.
type ExecutorConfig struct {
	Timeout     time.Duration
	MaxParallel int
}

// Executor runs all collaborators for one cycle.
type Executor struct {
	collaborators []Collaborator
	cfg           ExecutorConfig
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewExecutor creates an executor over the given collaborators. Results are
// returned in registration order.
func NewExecutor(collaborators []Collaborator, cfg ExecutorConfig, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = len(collaborators)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Executor{
		collaborators: collaborators,
		cfg:           cfg,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// Collaborators returns the registered collaborators.
func (e *Executor) Collaborators() []Collaborator {
	return e.collaborators
}

// Run fetches every collaborator with bounded parallelism and waits for all
// of them. prior holds the last persisted result per source id; it supplies
// the payload for sources that fail this cycle. Run never fails as a whole.
func (e *Executor) Run(ctx context.Context, prior map[string]domain.SourceResult) []domain.SourceResult {
	results := make([]domain.SourceResult, len(e.collaborators))

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxParallel)
	for i, c := range e.collaborators {
		g.Go(func() error {
			results[i] = e.fetch(ctx, c, prior[c.ID()])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Executor) fetch(ctx context.Context, c Collaborator, prior domain.SourceResult) domain.SourceResult {
	attemptedAt := e.clock.Now().UTC()
	start := time.Now()

	payload, fetchedAt, err := e.attempt(ctx, c)
	if err != nil && retryable(err) && ctx.Err() == nil {
		e.logger.Warn("source fetch failed, retrying", "source", c.ID(), "error", err)
		payload, fetchedAt, err = e.attempt(ctx, c)
	}
	e.metrics.SourceFetchDuration.WithLabelValues(c.ID()).Observe(time.Since(start).Seconds())

	var result domain.SourceResult
	if err == nil {
		if fetchedAt.IsZero() {
			fetchedAt = e.clock.Now()
		}
		result = domain.SourceResult{
			SourceID:    c.ID(),
			Category:    c.Category(),
			FetchedAt:   fetchedAt.UTC(),
			AttemptedAt: attemptedAt,
			Status:      domain.StatusConnected,
			Payload:     &payload,
		}
	} else {
		result = substitute(c, prior, err, attemptedAt)
		e.logger.Warn("source degraded",
			"source", c.ID(),
			"status", result.Status,
			"error", err,
		)
	}
	e.metrics.SourceFetches.WithLabelValues(c.ID(), string(result.Status)).Inc()
	return result
}

// attempt makes one bounded call. A collaborator that ignores cancellation
// is left to finish in the background; its result is discarded. The returned
// time is zero unless the collaborator reports its own fetch time.
func (e *Executor) attempt(ctx context.Context, c Collaborator) (domain.Payload, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type outcome struct {
		payload   domain.Payload
		fetchedAt time.Time
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("collaborator %s panicked: %v", c.ID(), r)}
			}
		}()
		if tc, ok := c.(TimedCollaborator); ok {
			p, at, err := tc.FetchTimed(ctx)
			done <- outcome{payload: p, fetchedAt: at, err: err}
			return
		}
		p, err := c.Fetch(ctx)
		done <- outcome{payload: p, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(o.err, domain.ErrSourceTimeout) {
				return domain.Payload{}, time.Time{}, fmt.Errorf("%w: %w", domain.ErrSourceTimeout, o.err)
			}
			return domain.Payload{}, time.Time{}, o.err
		}
		if o.payload.Kind != c.Category() {
			return domain.Payload{}, time.Time{}, fmt.Errorf("%w: %s returned %q payload", domain.ErrSourceMalformedPayload, c.ID(), o.payload.Kind)
		}
		if err := o.payload.Validate(); err != nil {
			return domain.Payload{}, time.Time{}, err
		}
		return o.payload, o.fetchedAt, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Payload{}, time.Time{}, fmt.Errorf("%w: no response after %s", domain.ErrSourceTimeout, e.cfg.Timeout)
		}
		return domain.Payload{}, time.Time{}, ctx.Err()
	}
}

// retryable excludes failures a second call cannot fix: the provider told us
// to back off, or the payload itself is bad.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrSourceRateLimited) &&
		!errors.Is(err, domain.ErrSourceMalformedPayload) &&
		!errors.Is(err, context.Canceled)
}

// substitute builds the degraded result for a failed fetch.
func substitute(c Collaborator, prior domain.SourceResult, err error, attemptedAt time.Time) domain.SourceResult {
	r := domain.SourceResult{
		SourceID:    c.ID(),
		Category:    c.Category(),
		AttemptedAt: attemptedAt,
		Error:       err.Error(),
	}
	if prior.Payload == nil {
		r.Status = domain.StatusFailed
		return r
	}
	r.Payload = prior.Payload
	r.FetchedAt = prior.FetchedAt
	r.Status = domain.StatusCached
	if errors.Is(err, domain.ErrSourceRateLimited) {
		r.Status = domain.StatusLimited
	}
	return r
}
