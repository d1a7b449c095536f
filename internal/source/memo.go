package source

import (
	"context"
	"sync"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Memoized wraps a slow-changing collaborator so it is fetched at most once
// per TTL. Only successful payloads are remembered, so a failure is retried
// on the next cycle.
type Memoized struct {
	inner   Collaborator
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu        sync.Mutex
	payload   *domain.Payload
	fetchedAt time.Time
}

// Memoize creates a TTL decorator around a collaborator.
func Memoize(inner Collaborator, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Memoized {
	return &Memoized{inner: inner, ttl: ttl, clock: clock, metrics: metrics}
}

func (m *Memoized) ID() string                { return m.inner.ID() }
func (m *Memoized) Category() domain.Category { return m.inner.Category() }

func (m *Memoized) Fetch(ctx context.Context) (domain.Payload, error) {
	p, _, err := m.FetchTimed(ctx)
	return p, err
}

// FetchTimed is Fetch plus the time the payload was actually retrieved from
// the inner collaborator, which for a hit predates this call.
func (m *Memoized) FetchTimed(ctx context.Context) (domain.Payload, time.Time, error) {
	if p, at, ok := m.get(); ok {
		m.metrics.SourceMemo.WithLabelValues(m.inner.ID(), "hit").Inc()
		return p, at, nil
	}
	m.metrics.SourceMemo.WithLabelValues(m.inner.ID(), "miss").Inc()

	p, err := m.inner.Fetch(ctx)
	if err != nil {
		return p, time.Time{}, err
	}
	if err := p.Validate(); err != nil {
		return p, time.Time{}, err
	}
	return p, m.put(p), nil
}

func (m *Memoized) get() (domain.Payload, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.payload == nil || m.clock.Since(m.fetchedAt) >= m.ttl {
		return domain.Payload{}, time.Time{}, false
	}
	return *m.payload, m.fetchedAt, true
}

func (m *Memoized) put(p domain.Payload) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payload = &p
	m.fetchedAt = m.clock.Now()
	return m.fetchedAt
}
