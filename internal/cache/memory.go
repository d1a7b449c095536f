package cache

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// MemoryStore keeps entries in process. Each collection has its own lock so
// writers to one collection never block readers of another.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) collection(name string, create bool) *memoryCollection {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if ok || !create {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.collections[name]; ok {
		return c
	}
	c = &memoryCollection{entries: make(map[string]domain.CacheEntry)}
	s.collections[name] = c
	return c
}

func (s *MemoryStore) Upsert(ctx context.Context, entry domain.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheWrite, err)
	}
	entry.Document = slices.Clone(entry.Document)

	c := s.collection(entry.Collection, true)
	c.mu.Lock()
	c.entries[entry.Key] = entry
	c.mu.Unlock()
	return nil
}

// ReplaceCollection swaps the whole map under the collection lock.
func (s *MemoryStore) ReplaceCollection(ctx context.Context, collection string, entries []domain.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheWrite, err)
	}
	if err := checkEntries(collection, entries); err != nil {
		return err
	}
	next := make(map[string]domain.CacheEntry, len(entries))
	for _, e := range entries {
		e.Document = slices.Clone(e.Document)
		next[e.Key] = e
	}

	c := s.collection(collection, true)
	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, key string) (domain.CacheEntry, error) {
	c := s.collection(collection, false)
	if c == nil {
		return domain.CacheEntry{}, fmt.Errorf("%s/%s: %w", collection, key, domain.ErrNotFound)
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, fmt.Errorf("%s/%s: %w", collection, key, domain.ErrNotFound)
	}
	e.Document = slices.Clone(e.Document)
	return e, nil
}

func (s *MemoryStore) List(_ context.Context, collection string) ([]domain.CacheEntry, error) {
	c := s.collection(collection, false)
	if c == nil {
		return nil, nil
	}
	c.mu.RLock()
	out := make([]domain.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		e.Document = slices.Clone(e.Document)
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }
