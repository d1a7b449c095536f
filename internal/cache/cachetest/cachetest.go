// Package cachetest holds the behaviour every cache backend must share.
package cachetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type herdDoc struct {
	ID        string  `json:"id"`
	HeadCount int     `json:"head_count"`
	NDVI      float64 `json:"ndvi"`
	Trend     string  `json:"trend"`
}

// Run exercises a store. newStore must return an empty store; collection
// names are suffixed per subtest so shared servers do not leak state.
func Run(t *testing.T, newStore func(t *testing.T) cache.Store) {
	t.Helper()
	at := time.Date(2025, 2, 10, 6, 0, 0, 0, time.UTC)
	seq := 0
	coll := func(base string) string {
		seq++
		return fmt.Sprintf("%s_%d_%d", base, time.Now().UnixNano(), seq)
	}

	t.Run("get missing returns not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), coll("herds"), "A")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("upsert then get round trips the document", func(t *testing.T) {
		s := newStore(t)
		c := coll("herds")
		want := herdDoc{ID: "A", HeadCount: 8200, NDVI: 0.38, Trend: "NE"}
		entry, err := cache.NewEntry(c, "A", want, domain.StatusConnected, at)
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), entry))

		var got herdDoc
		e, err := cache.GetInto(context.Background(), s, c, "A", &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, domain.StatusConnected, e.Status)
		assert.True(t, e.UpdatedAt.Equal(at), "updated_at %s", e.UpdatedAt)
	})

	t.Run("array documents round trip", func(t *testing.T) {
		s := newStore(t)
		c := coll("snapshots")
		want := []herdDoc{{ID: "A", HeadCount: 1}, {ID: "B", HeadCount: 2, NDVI: 0.5}}
		entry, err := cache.NewEntry(c, "herds", want, domain.StatusCached, at)
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), entry))

		var got []herdDoc
		_, err = cache.GetInto(context.Background(), s, c, "herds", &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("upsert replaces instead of duplicating", func(t *testing.T) {
		s := newStore(t)
		c := coll("herds")
		for i, n := range []int{100, 200} {
			entry, err := cache.NewEntry(c, "A", herdDoc{ID: "A", HeadCount: n}, domain.StatusConnected, at.Add(time.Duration(i)*time.Minute))
			require.NoError(t, err)
			require.NoError(t, s.Upsert(context.Background(), entry))
		}

		entries, err := s.List(context.Background(), c)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		var got herdDoc
		require.NoError(t, entries[0].Decode(&got))
		assert.Equal(t, 200, got.HeadCount)
		assert.True(t, entries[0].UpdatedAt.Equal(at.Add(time.Minute)))
	})

	t.Run("list is ordered by key", func(t *testing.T) {
		s := newStore(t)
		c := coll("zones")
		for _, k := range []string{"cell_9.0_31.5", "cell_6.5_33.0", "cell_8.5_32.5"} {
			entry, err := cache.NewEntry(c, k, map[string]string{"id": k}, domain.StatusConnected, at)
			require.NoError(t, err)
			require.NoError(t, s.Upsert(context.Background(), entry))
		}
		entries, err := s.List(context.Background(), c)
		require.NoError(t, err)
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		assert.Equal(t, []string{"cell_6.5_33.0", "cell_8.5_32.5", "cell_9.0_31.5"}, keys)
	})

	t.Run("list of unknown collection is empty", func(t *testing.T) {
		s := newStore(t)
		entries, err := s.List(context.Background(), coll("never"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("concurrent readers never see a partial document", func(t *testing.T) {
		s := newStore(t)
		c := coll("herds")
		write := func(n int) error {
			doc := make([]herdDoc, n)
			for i := range doc {
				doc[i] = herdDoc{ID: "A", HeadCount: n}
			}
			entry, err := cache.NewEntry(c, "set", doc, domain.StatusConnected, at)
			if err != nil {
				return err
			}
			return s.Upsert(context.Background(), entry)
		}
		require.NoError(t, write(1))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 2; n <= 20; n++ {
				assert.NoError(t, write(n))
			}
		}()
		for range 50 {
			e, err := s.Get(context.Background(), c, "set")
			require.NoError(t, err)
			var got []herdDoc
			require.NoError(t, json.Unmarshal(e.Document, &got))
			for _, h := range got {
				assert.Equal(t, len(got), h.HeadCount, "mixed versions in one read")
			}
		}
		wg.Wait()
	})

	keysOf := func(entries []domain.CacheEntry) []string {
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		return keys
	}
	entriesFor := func(t *testing.T, c string, version int, keys ...string) []domain.CacheEntry {
		t.Helper()
		out := make([]domain.CacheEntry, 0, len(keys))
		for _, k := range keys {
			e, err := cache.NewEntry(c, k, herdDoc{ID: k, HeadCount: version}, domain.StatusConnected, at.Add(time.Duration(version)*time.Minute))
			require.NoError(t, err)
			out = append(out, e)
		}
		return out
	}

	t.Run("replace collection drops keys absent from the new set", func(t *testing.T) {
		s := newStore(t)
		c := coll("zones")
		require.NoError(t, s.ReplaceCollection(context.Background(), c, entriesFor(t, c, 1, "a", "b", "c")))
		require.NoError(t, s.ReplaceCollection(context.Background(), c, entriesFor(t, c, 2, "b", "d")))

		entries, err := s.List(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "d"}, keysOf(entries))
		var got herdDoc
		require.NoError(t, entries[0].Decode(&got))
		assert.Equal(t, 2, got.HeadCount)
		_, err = s.Get(context.Background(), c, "a")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("replace with no entries empties the collection", func(t *testing.T) {
		s := newStore(t)
		c := coll("news")
		require.NoError(t, s.ReplaceCollection(context.Background(), c, entriesFor(t, c, 1, "a")))
		require.NoError(t, s.ReplaceCollection(context.Background(), c, nil))

		entries, err := s.List(context.Background(), c)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("replace rejects a foreign entry and keeps the old set", func(t *testing.T) {
		s := newStore(t)
		c := coll("herds")
		require.NoError(t, s.ReplaceCollection(context.Background(), c, entriesFor(t, c, 1, "A", "B")))

		mixed := append(entriesFor(t, c, 2, "A"), entriesFor(t, coll("other"), 2, "B")...)
		err := s.ReplaceCollection(context.Background(), c, mixed)
		require.ErrorIs(t, err, domain.ErrCacheWrite)

		entries, err := s.List(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, keysOf(entries))
		for _, e := range entries {
			assert.True(t, e.UpdatedAt.Equal(at.Add(time.Minute)), "%s rewritten", e.Key)
		}
	})

	t.Run("concurrent readers see one whole set", func(t *testing.T) {
		s := newStore(t)
		c := coll("herds")
		keys := []string{"A", "B", "C", "D", "E"}
		require.NoError(t, s.ReplaceCollection(context.Background(), c, entriesFor(t, c, 1, keys...)))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := 2; v <= 20; v++ {
				assert.NoError(t, s.ReplaceCollection(context.Background(), c, entriesFor(t, c, v, keys...)))
			}
		}()
		for range 50 {
			entries, err := s.List(context.Background(), c)
			require.NoError(t, err)
			require.Len(t, entries, len(keys))
			var first herdDoc
			require.NoError(t, entries[0].Decode(&first))
			for _, e := range entries[1:] {
				var got herdDoc
				require.NoError(t, e.Decode(&got))
				assert.Equal(t, first.HeadCount, got.HeadCount, "entries from two commits in one read")
			}
		}
		wg.Wait()
	})

	t.Run("ping succeeds on a live store", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
