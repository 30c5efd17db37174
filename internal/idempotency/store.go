// Package idempotency caches HTTP responses by client-supplied request key,
// so a client retrying a POST after a dropped connection does not enqueue
// a second, redundant task — useful here because enqueue_shade always
// "succeeds" once queued (spec.md §7) and retries are otherwise invisible.
package idempotency

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Response is a cached HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Backend is the key-value subset this package needs. *redis.Client does
// not satisfy it directly; RedisBackend adapts it.
type Backend interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

const ttl = 1 * time.Hour

// Store caches responses by key, falling back to an in-process map when no
// Backend is configured (single-instance/local-dev mode).
type Store struct {
	backend Backend
	cache   sync.Map
}

type entry struct {
	Resp Response
	At   time.Time
}

// NewStore builds a Store; backend may be nil.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get returns a previously cached response for key, if any.
func (s *Store) Get(ctx context.Context, key string) (Response, bool) {
	if s.backend != nil {
		val, err := s.backend.Get(ctx, key)
		if err != nil {
			log.Printf("idempotency: backend get %s: %v", key, err)
			return Response{}, false
		}
		if val == "" {
			return Response{}, false
		}
		var e entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return Response{}, false
		}
		return e.Resp, true
	}

	v, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := v.(entry)
	if time.Since(e.At) > ttl {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.Resp, true
}

// Set caches resp under key.
func (s *Store) Set(ctx context.Context, key string, resp Response) {
	e := entry{Resp: resp, At: time.Now()}

	if s.backend != nil {
		data, _ := json.Marshal(e)
		if err := s.backend.Set(ctx, key, string(data), ttl); err != nil {
			log.Printf("idempotency: backend set %s: %v", key, err)
		}
		return
	}
	s.cache.Store(key, e)
}
