package redis

import (
	"context"
	"errors"

	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/pkg/circuitbreaker"
)

// ProgressCache stores student progress views as JSON under progress:<id>.
//
// Reads and writes go through a circuit breaker: while Redis is failing they
// are skipped and progress is served from the database. Invalidations always
// reach Redis.
type ProgressCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewProgressCache creates a progress view cache. breaker may be nil.
func NewProgressCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *ProgressCache {
	return &ProgressCache{cache: cache, breaker: breaker}
}

func (p *ProgressCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if p.breaker == nil {
		return fn(ctx)
	}
	return p.breaker.Execute(ctx, fn)
}

// Get returns the cached view, or nil on a miss or an open breaker.
func (p *ProgressCache) Get(ctx context.Context, studentID string) (*query.ProgressView, error) {
	var view query.ProgressView
	hit := false
	err := p.guard(ctx, func(ctx context.Context) error {
		err := p.cache.Get(ctx, ProgressKey(studentID), &view)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	switch {
	case circuitbreaker.Rejected(err):
		return nil, nil
	case err != nil:
		return nil, err
	case !hit:
		return nil, nil
	}
	return &view, nil
}

// Set caches a view for TTLProgressView.
func (p *ProgressCache) Set(ctx context.Context, view *query.ProgressView) error {
	if view == nil {
		return nil
	}
	err := p.guard(ctx, func(ctx context.Context) error {
		return p.cache.Set(ctx, ProgressKey(view.StudentID), view, TTLProgressView)
	})
	if circuitbreaker.Rejected(err) {
		return nil
	}
	return err
}

// Invalidate drops a student's view.
func (p *ProgressCache) Invalidate(ctx context.Context, studentID string) error {
	return p.cache.Delete(ctx, ProgressKey(studentID))
}
