// Package cache persists pipeline output keyed by collection and natural key.
// Every backend upserts whole documents atomically, so readers see either the
// previous or the new version of a document and never a partial one. A
// recomputed collection is replaced as a unit, so readers see either the
// previous cycle's set or the new one. Nothing is deleted for staleness;
// freshness is exposed through updated_at.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Store is implemented by every cache backend.
type Store interface {
	// Upsert writes the entry, replacing any document under the same
	// collection and key. Failures wrap domain.ErrCacheWrite.
	Upsert(ctx context.Context, entry domain.CacheEntry) error
	// ReplaceCollection makes entries the entire content of the collection
	// in one step. Keys missing from entries are removed. On failure the
	// previous content is left untouched and the error wraps
	// domain.ErrCacheWrite.
	ReplaceCollection(ctx context.Context, collection string, entries []domain.CacheEntry) error
	// Get returns domain.ErrNotFound when nothing was ever written for the key.
	Get(ctx context.Context, collection, key string) (domain.CacheEntry, error)
	// List returns every entry of a collection ordered by key.
	List(ctx context.Context, collection string) ([]domain.CacheEntry, error)
	// Ping fails with domain.ErrCacheUnavailable when the backend is unreachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewEntry marshals v into a cache entry.
func NewEntry(collection, key string, v any, status domain.SourceStatus, at time.Time) (domain.CacheEntry, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	return domain.CacheEntry{
		Collection: collection,
		Key:        key,
		Document:   doc,
		UpdatedAt:  at.UTC(),
		Status:     status,
	}, nil
}

// UpsertWithRetry writes the entry, retrying once on failure.
func UpsertWithRetry(ctx context.Context, s Store, entry domain.CacheEntry) (retried bool, err error) {
	err = s.Upsert(ctx, entry)
	if err == nil {
		return false, nil
	}
	if ctx.Err() != nil {
		return false, err
	}
	if err = s.Upsert(ctx, entry); err != nil {
		return true, ensureWriteErr(err)
	}
	return true, nil
}

// ReplaceWithRetry replaces the collection, retrying once on failure.
func ReplaceWithRetry(ctx context.Context, s Store, collection string, entries []domain.CacheEntry) (retried bool, err error) {
	err = s.ReplaceCollection(ctx, collection, entries)
	if err == nil {
		return false, nil
	}
	if ctx.Err() != nil {
		return false, err
	}
	if err = s.ReplaceCollection(ctx, collection, entries); err != nil {
		return true, ensureWriteErr(err)
	}
	return true, nil
}

// checkEntries rejects a replacement that mixes collections or repeats a key.
func checkEntries(collection string, entries []domain.CacheEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Collection != collection {
			return fmt.Errorf("%w: entry %s/%s does not belong to %s", domain.ErrCacheWrite, e.Collection, e.Key, collection)
		}
		if seen[e.Key] {
			return fmt.Errorf("%w: duplicate key %s/%s", domain.ErrCacheWrite, collection, e.Key)
		}
		seen[e.Key] = true
	}
	return nil
}

func ensureWriteErr(err error) error {
	if errors.Is(err, domain.ErrCacheWrite) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrCacheWrite, err)
}

// CollectionView is a whole-collection read with aggregate freshness.
type CollectionView struct {
	Collection string              `json:"collection"`
	Entries    []domain.CacheEntry `json:"entries"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Status     domain.SourceStatus `json:"status"`
}

// ReadCollection lists a collection and summarises its freshness: the newest
// updated_at and the most degraded status. A collection committed empty is
// described by its manifest. It returns domain.ErrNotFound for a collection
// that was never written.
func ReadCollection(ctx context.Context, s Store, collection string) (CollectionView, error) {
	entries, err := s.List(ctx, collection)
	if err != nil {
		return CollectionView{}, err
	}
	if len(entries) == 0 {
		m, err := s.Get(ctx, domain.CollectionManifests, collection)
		if errors.Is(err, domain.ErrNotFound) {
			return CollectionView{}, fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
		}
		if err != nil {
			return CollectionView{}, err
		}
		return CollectionView{
			Collection: collection,
			Entries:    []domain.CacheEntry{},
			UpdatedAt:  m.UpdatedAt,
			Status:     m.Status,
		}, nil
	}

	view := CollectionView{Collection: collection, Entries: entries, Status: domain.StatusConnected}
	for _, e := range entries {
		if e.UpdatedAt.After(view.UpdatedAt) {
			view.UpdatedAt = e.UpdatedAt
		}
		view.Status = domain.WorstStatus(view.Status, e.Status)
	}
	return view, nil
}

// GetInto reads a single document and decodes it into v.
func GetInto(ctx context.Context, s Store, collection, key string, v any) (domain.CacheEntry, error) {
	entry, err := s.Get(ctx, collection, key)
	if err != nil {
		return entry, err
	}
	if err := entry.Decode(v); err != nil {
		return entry, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return entry, nil
}
