// Package cache stores rendered artifacts between CLI runs.
//
// [FileCache] keeps entries as files under a directory with an optional
// expiry. [NullCache] disables caching. [Scoped] namespaces keys of another
// cache, and [GetOrCompute] is the read-through helper the render command
// uses:
//
//	c, _ := cache.NewFileCache(dir)
//	key := cache.Key("svg", cache.Hash([]byte(dot)))
//	svg, hit, err := cache.GetOrCompute(ctx, c, key, 24*time.Hour, func() ([]byte, error) {
//		return nodelink.RenderSVG(ctx, dot)
//	})
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data. A non-positive ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetOrCompute returns the cached value for key, or calls compute, stores
// its result and returns it. hit reports whether the value came from c.
// A failed Set is ignored; the computed value is still returned.
func GetOrCompute(ctx context.Context, c Cache, key string, ttl time.Duration, compute func() ([]byte, error)) (data []byte, hit bool, err error) {
	if data, ok, err := c.Get(ctx, key); err == nil && ok {
		return data, true, nil
	}
	data, err = compute()
	if err != nil {
		return nil, false, err
	}
	_ = c.Set(ctx, key, data, ttl)
	return data, false, nil
}

// Scoped prefixes every key of an inner cache.
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped returns a cache storing into inner under prefix.
func NewScoped(inner Cache, prefix string) *Scoped {
	return &Scoped{inner: inner, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close closes the inner cache.
func (s *Scoped) Close() error { return s.inner.Close() }

var _ Cache = (*Scoped)(nil)
