package instance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/cache"
)

const cacheOperation = "instance"

// CachedRepository puts a read-through cache in front of another Repository.
// Saves go to the inner repository first and then overwrite the entry with
// the saved snapshot. A read only fills a missing entry, so a snapshot loaded
// before a concurrent save can never replace the newer one.
// Cache failures are logged and never fail the call.
type CachedRepository struct {
	inner Repository
	cache cache.Cache
	ttl   time.Duration
}

var _ Repository = (*CachedRepository)(nil)

func NewCachedRepository(inner Repository, c cache.Cache, ttl time.Duration) *CachedRepository {
	return &CachedRepository{inner: inner, cache: c, ttl: ttl}
}

func (r *CachedRepository) FindByID(ctx context.Context, id string) (*SagaInstance, error) {
	key := r.cache.GenerateKey(cacheOperation, id)

	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "instance cache read failed", "saga_instance_id", id, "error", err)
	}
	if raw != "" {
		var p Primitives
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return FromPrimitives(p), nil
		}
		slog.WarnContext(ctx, "instance cache entry unreadable", "saga_instance_id", id)
	}

	s, err := r.inner.FindByID(ctx, id)
	if err != nil || s == nil {
		return s, err
	}

	if b, err := json.Marshal(s.ToPrimitives()); err == nil {
		if _, err := r.cache.SetIfAbsent(ctx, key, string(b), r.ttl); err != nil {
			slog.WarnContext(ctx, "instance cache write failed", "saga_instance_id", id, "error", err)
		}
	}
	return s, nil
}

func (r *CachedRepository) Save(ctx context.Context, s *SagaInstance) error {
	if err := r.inner.Save(ctx, s); err != nil {
		return err
	}
	b, err := json.Marshal(s.ToPrimitives())
	if err == nil {
		err = r.cache.Set(ctx, r.cache.GenerateKey(cacheOperation, s.ID()), string(b), r.ttl)
	}
	if err != nil {
		slog.WarnContext(ctx, "instance cache refresh failed", "saga_instance_id", s.ID(), "error", err)
		r.invalidate(ctx, s.ID())
	}
	return nil
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// ForWrites returns a view for command handlers: loads always hit the inner
// repository, while saves and deletes still keep the cache current.
func (r *CachedRepository) ForWrites() Repository {
	return writeSide{r}
}

type writeSide struct {
	*CachedRepository
}

func (w writeSide) FindByID(ctx context.Context, id string) (*SagaInstance, error) {
	return w.inner.FindByID(ctx, id)
}

func (r *CachedRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, r.cache.GenerateKey(cacheOperation, id)); err != nil {
		slog.WarnContext(ctx, "instance cache invalidation failed", "saga_instance_id", id, "error", err)
	}
}
