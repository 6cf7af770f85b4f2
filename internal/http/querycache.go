package http

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// QueryCache keeps encoded query responses per user. It is a
// services.Notifier: every ledger change drops the user's entries.
//
// Concurrent misses for the same key share one computation. A result computed
// while a change for that user landed is returned but not stored.
type QueryCache struct {
	results *cache.LRUCache[[]byte]
	group   singleflight.Group
	logger  *slog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

func NewQueryCache(size int, ttl time.Duration, logger *slog.Logger) *QueryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{
		results:     cache.NewLRUCache[[]byte](size, ttl),
		logger:      logger.With(applog.FieldComponent, applog.ComponentCache),
		generations: make(map[string]uint64),
	}
}

// Results exposes the underlying LRU for periodic cleanup.
func (q *QueryCache) Results() *cache.LRUCache[[]byte] {
	return q.results
}

func queryKey(user, query string) string {
	return user + "|" + query
}

func (q *QueryCache) generation(user string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generations[user]
}

// Do returns the cached body for (user, query) or computes it with load.
func (q *QueryCache) Do(ctx context.Context, user, query string, load func() ([]byte, error)) ([]byte, error) {
	key := queryKey(user, query)
	if body, ok := q.results.Get(key); ok {
		q.logger.DebugContext(ctx, "Query cache hit", applog.FieldUser, user, applog.FieldQuery, query)
		return body, nil
	}

	v, err, _ := q.group.Do(key, func() (any, error) {
		gen := q.generation(user)
		body, err := load()
		if err != nil {
			return nil, err
		}
		q.mu.Lock()
		if q.generations[user] == gen {
			q.results.Set(key, body)
		}
		q.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops every cached response of user.
func (q *QueryCache) Invalidate(user string) int {
	q.mu.Lock()
	q.generations[user]++
	q.mu.Unlock()
	return q.results.DeletePrefix(user + "|")
}

// LedgerChanged implements services.Notifier.
func (q *QueryCache) LedgerChanged(ctx context.Context, c services.Change) {
	if n := q.Invalidate(c.User); n > 0 {
		q.logger.DebugContext(ctx, "Query cache invalidated",
			applog.FieldUser, c.User,
			applog.FieldKind, c.Kind,
			"entries", n)
	}
}

// canonicalQuery is path plus sorted query string, so parameter order does
// not split the cache.
func canonicalQuery(path string, values url.Values) string {
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}
