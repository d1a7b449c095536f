package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/cache/cachetest"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 2, 10, 6, 0, 0, 0, time.UTC)

func TestMemoryStore(t *testing.T) {
	cachetest.Run(t, func(*testing.T) cache.Store { return cache.NewMemoryStore() })
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := cache.NewMemoryStore()
	entry, err := cache.NewEntry("herds", "A", map[string]int{"n": 1}, domain.StatusConnected, testNow)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), entry))

	got, err := s.Get(context.Background(), "herds", "A")
	require.NoError(t, err)
	got.Document[0] = 'X'

	again, err := s.Get(context.Background(), "herds", "A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(again.Document))
}

func TestMemoryStore_UpsertHonoursCancelledContext(t *testing.T) {
	s := cache.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Upsert(ctx, domain.CacheEntry{Collection: "herds", Key: "A", Document: []byte(`{}`)})
	require.ErrorIs(t, err, domain.ErrCacheWrite)
}

// flakyStore fails the first n writes.
type flakyStore struct {
	*cache.MemoryStore
	failures int
	calls    int
}

func (f *flakyStore) Upsert(ctx context.Context, e domain.CacheEntry) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Upsert(ctx, e)
}

func (f *flakyStore) ReplaceCollection(ctx context.Context, collection string, entries []domain.CacheEntry) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.MemoryStore.ReplaceCollection(ctx, collection, entries)
}

func TestUpsertWithRetry(t *testing.T) {
	entry, err := cache.NewEntry("herds", "A", map[string]int{"n": 1}, domain.StatusConnected, testNow)
	require.NoError(t, err)

	tests := []struct {
		name        string
		failures    int
		wantRetried bool
		wantErr     bool
		wantCalls   int
	}{
		{name: "first write succeeds", failures: 0, wantCalls: 1},
		{name: "retry recovers", failures: 1, wantRetried: true, wantCalls: 2},
		{name: "gives up after one retry", failures: 2, wantRetried: true, wantErr: true, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &flakyStore{MemoryStore: cache.NewMemoryStore(), failures: tt.failures}
			retried, err := cache.UpsertWithRetry(context.Background(), s, entry)
			assert.Equal(t, tt.wantRetried, retried)
			assert.Equal(t, tt.wantCalls, s.calls)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrCacheWrite)
				_, getErr := s.Get(context.Background(), "herds", "A")
				assert.ErrorIs(t, getErr, domain.ErrNotFound)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReadCollection(t *testing.T) {
	s := cache.NewMemoryStore()
	ctx := context.Background()

	_, err := cache.ReadCollection(ctx, s, domain.CollectionSources)
	require.ErrorIs(t, err, domain.ErrNotFound)

	for i, st := range []domain.SourceStatus{domain.StatusConnected, domain.StatusCached, domain.StatusConnected} {
		e, err := cache.NewEntry(domain.CollectionSources, string(rune('a'+i)), map[string]int{"i": i}, st, testNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Upsert(ctx, e))
	}

	view, err := cache.ReadCollection(ctx, s, domain.CollectionSources)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 3)
	assert.Equal(t, domain.StatusCached, view.Status)
	assert.True(t, view.UpdatedAt.Equal(testNow.Add(2*time.Minute)))
}

func TestReplaceWithRetry(t *testing.T) {
	entry, err := cache.NewEntry("herds", "A", map[string]int{"n": 2}, domain.StatusConnected, testNow)
	require.NoError(t, err)

	tests := []struct {
		name        string
		failures    int
		wantRetried bool
		wantErr     bool
	}{
		{name: "first replace succeeds"},
		{name: "retry recovers", failures: 1, wantRetried: true},
		{name: "gives up and keeps the old set", failures: 2, wantRetried: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &flakyStore{MemoryStore: cache.NewMemoryStore(), failures: tt.failures}
			old, err := cache.NewEntry("herds", "B", map[string]int{"n": 1}, domain.StatusConnected, testNow)
			require.NoError(t, err)
			require.NoError(t, s.MemoryStore.Upsert(context.Background(), old))

			retried, err := cache.ReplaceWithRetry(context.Background(), s, "herds", []domain.CacheEntry{entry})
			assert.Equal(t, tt.wantRetried, retried)

			entries, listErr := s.List(context.Background(), "herds")
			require.NoError(t, listErr)
			require.Len(t, entries, 1)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrCacheWrite)
				assert.Equal(t, "B", entries[0].Key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "A", entries[0].Key)
		})
	}
}

func TestMemoryStore_ReplaceHonoursCancelledContext(t *testing.T) {
	s := cache.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.ReplaceCollection(ctx, "herds", nil)
	require.ErrorIs(t, err, domain.ErrCacheWrite)
}

func TestReadCollection_EmptyCommittedCollection(t *testing.T) {
	s := cache.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.ReplaceCollection(ctx, domain.CollectionZones, nil))

	_, err := cache.ReadCollection(ctx, s, domain.CollectionZones)
	require.ErrorIs(t, err, domain.ErrNotFound, "no manifest yet")

	m, err := cache.NewEntry(domain.CollectionManifests, domain.CollectionZones, domain.Manifest{Keys: []string{}}, domain.StatusConnected, testNow)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, m))

	view, err := cache.ReadCollection(ctx, s, domain.CollectionZones)
	require.NoError(t, err)
	assert.NotNil(t, view.Entries)
	assert.Empty(t, view.Entries)
	assert.Equal(t, domain.StatusConnected, view.Status)
	assert.True(t, view.UpdatedAt.Equal(testNow))
}
