package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoize_ServesWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	inner := weatherSource("weather", okWeather(3))
	m := Memoize(inner, time.Hour, clock, observability.NewMetricsForTesting())

	assert.Equal(t, "weather", m.ID())
	assert.Equal(t, domain.CategoryWeather, m.Category())

	first, err := m.Fetch(context.Background())
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	second, err := m.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	clock.Advance(31 * time.Minute)
	_, err = m.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestMemoize_DoesNotRememberFailures(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	inner := weatherSource("weather", func(ctx context.Context, call int32) (domain.Payload, error) {
		if call == 1 {
			return domain.Payload{}, errors.New("overloaded")
		}
		return okWeather(1)(ctx, call)
	})
	m := Memoize(inner, time.Hour, clock, observability.NewMetricsForTesting())

	_, err := m.Fetch(context.Background())
	require.Error(t, err)

	_, err = m.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestMemoize_DoesNotRememberInvalidPayloads(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	inner := weatherSource("weather", func(context.Context, int32) (domain.Payload, error) {
		return domain.Payload{Kind: domain.CategoryWeather}, nil
	})
	m := Memoize(inner, time.Hour, clock, observability.NewMetricsForTesting())

	_, err := m.Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceMalformedPayload)
	_, err = m.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestMemoize_HitKeepsOriginalFetchTime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	metrics := observability.NewMetricsForTesting()
	inner := weatherSource("weather", okWeather(2))
	m := Memoize(inner, time.Hour, clock, metrics)
	e := NewExecutor([]Collaborator{m}, ExecutorConfig{Timeout: time.Second}, clock, discardLogger(), metrics)

	first := e.Run(context.Background(), nil)
	require.Len(t, first, 1)
	assert.Equal(t, testNow, first[0].FetchedAt)

	clock.Advance(20 * time.Minute)
	second := e.Run(context.Background(), nil)
	require.Len(t, second, 1)
	assert.Equal(t, domain.StatusConnected, second[0].Status)
	assert.Equal(t, testNow, second[0].FetchedAt, "served from memory, not refetched")
	assert.Equal(t, testNow.Add(20*time.Minute), second[0].AttemptedAt)
	assert.Equal(t, int32(1), inner.calls.Load())

	clock.Advance(time.Hour)
	third := e.Run(context.Background(), nil)
	assert.Equal(t, testNow.Add(80*time.Minute), third[0].FetchedAt)
	assert.Equal(t, int32(2), inner.calls.Load())
}
