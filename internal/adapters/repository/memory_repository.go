package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var (
	_ domain.TemplateRepository        = (*InMemoryTemplateRepository)(nil)
	_ domain.SessionRepository         = (*InMemorySessionRepository)(nil)
	_ domain.ContextSettingsRepository = (*InMemoryContextSettingsRepository)(nil)
	_ domain.UserRepository            = (*InMemoryUserRepository)(nil)
)

// InMemoryTemplateRepository backs tests and the single-node dev mode.
type InMemoryTemplateRepository struct {
	store map[string]*domain.RoutineTemplate

	mu sync.RWMutex
}

func NewInMemoryTemplateRepository() *InMemoryTemplateRepository {
	return &InMemoryTemplateRepository{
		store: make(map[string]*domain.RoutineTemplate),
	}
}

func cloneTemplate(t *domain.RoutineTemplate) *domain.RoutineTemplate {
	c := *t
	c.Habits = append([]domain.Habit(nil), t.Habits...)
	if t.ContextRule != nil {
		rule := *t.ContextRule
		c.ContextRule = &rule
	}
	if t.LastUsedAt != nil {
		used := *t.LastUsedAt
		c.LastUsedAt = &used
	}
	return &c
}

func (r *InMemoryTemplateRepository) Create(ctx context.Context, t *domain.RoutineTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Version == 0 {
		t.Version = 1
	}
	r.store[t.ID] = cloneTemplate(t)
	return nil
}

func (r *InMemoryTemplateRepository) GetByID(ctx context.Context, id string) (*domain.RoutineTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.store[id]
	if !ok || t.DeletedAt != nil {
		return nil, domain.ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (r *InMemoryTemplateRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.RoutineTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var templates []*domain.RoutineTemplate
	for _, t := range r.store {
		if t.UserID == userID && t.DeletedAt == nil {
			templates = append(templates, cloneTemplate(t))
		}
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.Before(templates[j].CreatedAt)
	})

	return templates, nil
}

func (r *InMemoryTemplateRepository) Update(ctx context.Context, t *domain.RoutineTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.store[t.ID]
	if !ok || existing.DeletedAt != nil {
		return domain.ErrTemplateNotFound
	}
	if existing.Version != t.Version {
		return domain.ErrTemplateConflict
	}

	t.Version++
	t.UpdatedAt = time.Now().UTC()
	r.store[t.ID] = cloneTemplate(t)
	return nil
}

func (r *InMemoryTemplateRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok || t.DeletedAt != nil {
		return domain.ErrTemplateNotFound
	}

	now := time.Now().UTC()
	t.DeletedAt = &now
	t.UpdatedAt = now
	t.Version++
	return nil
}

func (r *InMemoryTemplateRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok || t.DeletedAt != nil {
		return domain.ErrTemplateNotFound
	}
	t.MarkUsed(at)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryTemplateRepository) GetChanges(ctx context.Context, userID string, since time.Time) ([]*domain.RoutineTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var changes []*domain.RoutineTemplate
	for _, t := range r.store {
		if t.UserID == userID && t.UpdatedAt.After(since) {
			changes = append(changes, cloneTemplate(t))
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].UpdatedAt.Before(changes[j].UpdatedAt)
	})
	return changes, nil
}

type storedRecord struct {
	record   domain.CompletionRecord
	storedAt time.Time
}

type InMemorySessionRepository struct {
	store map[string]storedRecord

	mu sync.RWMutex
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		store: make(map[string]storedRecord),
	}
}

func (r *InMemorySessionRepository) Save(ctx context.Context, record *domain.CompletionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store[record.SessionID]; exists {
		return nil
	}
	r.store[record.SessionID] = storedRecord{record: *record, storedAt: time.Now().UTC()}
	return nil
}

func (r *InMemorySessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.CompletionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.store[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	record := stored.record
	return &record, nil
}

func (r *InMemorySessionRepository) collect(match func(storedRecord) bool) []*domain.CompletionRecord {
	var records []*domain.CompletionRecord
	for _, stored := range r.store {
		if match(stored) {
			record := stored.record
			records = append(records, &record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records
}

func (r *InMemorySessionRepository) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*domain.CompletionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s storedRecord) bool {
		return s.record.UserID == userID && !s.record.StartedAt.Before(from) && s.record.StartedAt.Before(to)
	}), nil
}

func (r *InMemorySessionRepository) GetChanges(ctx context.Context, userID string, since time.Time) ([]*domain.CompletionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s storedRecord) bool {
		return s.record.UserID == userID && s.storedAt.After(since)
	}), nil
}

type InMemoryContextSettingsRepository struct {
	store map[string]domain.ContextSettings

	mu sync.RWMutex
}

func NewInMemoryContextSettingsRepository() *InMemoryContextSettingsRepository {
	return &InMemoryContextSettingsRepository{
		store: make(map[string]domain.ContextSettings),
	}
}

func (r *InMemoryContextSettingsRepository) Get(ctx context.Context, userID string) (*domain.ContextSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings, ok := r.store[userID]
	if !ok {
		return nil, domain.ErrSettingsNotFound
	}
	return &settings, nil
}

func (r *InMemoryContextSettingsRepository) Save(ctx context.Context, userID string, settings *domain.ContextSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store[userID] = *settings
	return nil
}

type InMemoryUserRepository struct {
	store map[string]*domain.User

	mu sync.RWMutex
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		store: make(map[string]*domain.User),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.store {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrEmailAlreadyExists
		}
	}
	clone := *user
	r.store[user.ID] = &clone
	return nil
}

func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.store {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.store[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *InMemoryUserRepository) UpdateTimezone(ctx context.Context, id, timezone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.store[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Timezone = timezone
	u.UpdatedAt = time.Now().UTC()
	return nil
}
