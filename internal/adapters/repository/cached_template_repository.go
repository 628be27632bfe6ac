package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var _ domain.TemplateRepository = (*CachedTemplateRepository)(nil)

const templateCacheTTL = 30 * time.Minute

// CachedTemplateRepository keeps each user's template list in Redis. Smart
// selection reads the list on every session start.
type CachedTemplateRepository struct {
	next  domain.TemplateRepository
	cache *redis.Client
}

func NewCachedTemplateRepository(next domain.TemplateRepository, cache *redis.Client) *CachedTemplateRepository {
	return &CachedTemplateRepository{
		next:  next,
		cache: cache,
	}
}

func (r *CachedTemplateRepository) cacheKey(userID string) string {
	return fmt.Sprintf("templates:%s", userID)
}

func (r *CachedTemplateRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Del(ctx, r.cacheKey(userID)).Err(); err != nil {
		log.Printf("[CACHE] Failed to invalidate templates for user %s: %v", userID, err)
	}
}

func (r *CachedTemplateRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.RoutineTemplate, error) {
	key := r.cacheKey(userID)

	val, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		var templates []*domain.RoutineTemplate
		if err := json.Unmarshal([]byte(val), &templates); err == nil {
			return templates, nil
		}

		log.Printf("[CACHE] Corrupted template list for user %s, cleaning up key", userID)
		r.cache.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("[CACHE] Redis read error: %v", err)
	}

	templates, err := r.next.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(templates); err == nil {
		if setErr := r.cache.Set(ctx, key, data, templateCacheTTL).Err(); setErr != nil {
			log.Printf("[CACHE] Redis set error: %v", setErr)
		}
	}

	return templates, nil
}

func (r *CachedTemplateRepository) GetByID(ctx context.Context, id string) (*domain.RoutineTemplate, error) {
	return r.next.GetByID(ctx, id)
}

func (r *CachedTemplateRepository) GetChanges(ctx context.Context, userID string, since time.Time) ([]*domain.RoutineTemplate, error) {
	return r.next.GetChanges(ctx, userID, since)
}

func (r *CachedTemplateRepository) Create(ctx context.Context, t *domain.RoutineTemplate) error {
	if err := r.next.Create(ctx, t); err != nil {
		return err
	}
	r.invalidate(ctx, t.UserID)
	return nil
}

func (r *CachedTemplateRepository) Update(ctx context.Context, t *domain.RoutineTemplate) error {
	if err := r.next.Update(ctx, t); err != nil {
		return err
	}
	r.invalidate(ctx, t.UserID)
	return nil
}

func (r *CachedTemplateRepository) Delete(ctx context.Context, id string) error {
	t, err := r.next.GetByID(ctx, id)
	if err == nil && t != nil {
		defer r.invalidate(ctx, t.UserID)
	}

	return r.next.Delete(ctx, id)
}

// TouchLastUsed invalidates as well: LastUsedAt breaks selection ties.
func (r *CachedTemplateRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	t, err := r.next.GetByID(ctx, id)
	if err == nil && t != nil {
		defer r.invalidate(ctx, t.UserID)
	}

	return r.next.TouchLastUsed(ctx, id, at)
}
