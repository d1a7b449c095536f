package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bovine:cache:"

// RedisStore keeps one hash per collection with a field per key. HSET
// replaces a field atomically.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	s := &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}
	return s, nil
}

func redisKey(collection string) string { return redisKeyPrefix + collection }

func (s *RedisStore) Upsert(ctx context.Context, entry domain.CacheEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", domain.ErrCacheWrite, entry.Collection, entry.Key, err)
	}
	if err := s.client.HSet(ctx, redisKey(entry.Collection), entry.Key, b).Err(); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", domain.ErrCacheWrite, entry.Collection, entry.Key, err)
	}
	return nil
}

// ReplaceCollection deletes and refills the hash inside MULTI/EXEC.
func (s *RedisStore) ReplaceCollection(ctx context.Context, collection string, entries []domain.CacheEntry) error {
	if err := checkEntries(collection, entries); err != nil {
		return err
	}
	fields := make(map[string]any, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("%w: %s/%s: %w", domain.ErrCacheWrite, collection, e.Key, err)
		}
		fields[e.Key] = b
	}

	key := redisKey(collection)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace %s: %w", domain.ErrCacheWrite, collection, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) (domain.CacheEntry, error) {
	b, err := s.client.HGet(ctx, redisKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CacheEntry{}, fmt.Errorf("%s/%s: %w", collection, key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("%w: get %s/%s: %w", domain.ErrCacheUnavailable, collection, key, err)
	}
	var e domain.CacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return e, nil
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]domain.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrCacheUnavailable, collection, err)
	}
	out := make([]domain.CacheEntry, 0, len(fields))
	for key, raw := range fields {
		var e domain.CacheEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
