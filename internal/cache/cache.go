// Package cache is the read-cache port used by the order and market managers.
// Entries are never the source of truth: every write path deletes the keys it
// affects, and the TTL is only a backstop.
package cache

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-realtime-market/internal/metrics"
	"go.uber.org/zap"
	"time"
)

type Store interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Load is a read-through lookup: a hit is decoded from the cache, a miss runs
// load and stores its result. Cache failures fall back to load.
func Load[T any](ctx context.Context, s Store, log *zap.Logger, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if b, ok, err := s.Get(ctx, key); err != nil {
		log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			metrics.RecordCache(true)
			return v, nil
		}
		log.Warn("cache entry undecodable", zap.String("key", key))
	}
	metrics.RecordCache(false)

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := s.Set(ctx, key, b, ttl); err != nil {
		log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// Invalidate deletes keys synchronously. A failing cache is logged; the
// committed write still succeeds and the TTL bounds staleness.
func Invalidate(ctx context.Context, s Store, log *zap.Logger, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.Delete(ctx, dedupe(keys)...); err != nil {
		log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Nop bypasses caching entirely.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error                  { return nil }
