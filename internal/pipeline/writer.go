package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/observability"
)

// writer commits whole collections. Each collection is replaced in one store
// call, so a failure after the retry leaves the previous cycle's set in place
// and the collection is reported skipped. Other collections are unaffected.
type writer struct {
	store   cache.Store
	at      time.Time
	logger  *slog.Logger
	metrics *observability.Metrics

	attempted []string
	skipped   []string
}

func (w *writer) sources(ctx context.Context, results []domain.SourceResult) {
	docs := make(map[string]any, len(results))
	statuses := make(map[string]domain.SourceStatus, len(results))
	for _, r := range results {
		docs[r.SourceID] = r
		statuses[r.SourceID] = r.Status
	}
	w.write(ctx, domain.CollectionSources, docs, func(key string) domain.SourceStatus { return statuses[key] })
}

func (w *writer) collection(ctx context.Context, name string, status domain.SourceStatus, docs map[string]any) {
	w.write(ctx, name, docs, func(string) domain.SourceStatus { return status })
}

func (w *writer) write(ctx context.Context, name string, docs map[string]any, status func(string) domain.SourceStatus) {
	w.attempted = append(w.attempted, name)
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]domain.CacheEntry, 0, len(keys))
	overall := domain.StatusConnected
	for _, key := range keys {
		entry, err := cache.NewEntry(name, key, docs[key], status(key), w.at)
		if err != nil {
			w.skip(name, key, err)
			return
		}
		overall = domain.WorstStatus(overall, entry.Status)
		entries = append(entries, entry)
	}

	retried, err := cache.ReplaceWithRetry(ctx, w.store, name, entries)
	if err != nil {
		w.skip(name, "", err)
		return
	}
	w.manifest(ctx, name, keys, overall)

	outcome := "ok"
	if retried {
		outcome = "retried"
	}
	w.metrics.CacheWrites.WithLabelValues(name, outcome).Inc()
}

// manifest records what the collection held after the commit. A failure is
// logged only: the collection itself is already consistent.
func (w *writer) manifest(ctx context.Context, name string, keys []string, status domain.SourceStatus) {
	entry, err := cache.NewEntry(domain.CollectionManifests, name, domain.Manifest{Keys: keys}, status, w.at)
	if err == nil {
		_, err = cache.UpsertWithRetry(ctx, w.store, entry)
	}
	if err != nil {
		w.logger.Warn("manifest write failed", "collection", name, "error", err)
	}
}

// append upserts documents into an accumulating collection without touching
// its other keys.
func (w *writer) append(ctx context.Context, name string, status domain.SourceStatus, docs map[string]any) {
	if len(docs) == 0 {
		return
	}
	w.attempted = append(w.attempted, name)
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	retried := false
	for _, key := range keys {
		entry, err := cache.NewEntry(name, key, docs[key], status, w.at)
		if err == nil {
			var r bool
			r, err = cache.UpsertWithRetry(ctx, w.store, entry)
			retried = retried || r
		}
		if err != nil {
			w.skip(name, key, err)
			return
		}
	}
	outcome := "ok"
	if retried {
		outcome = "retried"
	}
	w.metrics.CacheWrites.WithLabelValues(name, outcome).Inc()
}

func (w *writer) skip(name, key string, err error) {
	w.skipped = append(w.skipped, name)
	w.metrics.CacheWrites.WithLabelValues(name, "skipped").Inc()
	w.logger.Error("cache write failed, skipping collection",
		"collection", name,
		"key", key,
		"error", err,
	)
}
