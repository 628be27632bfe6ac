package services

import (
	"context"
	"errors"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

type ContextService struct {
	settings domain.ContextSettingsRepository
	users    domain.UserRepository
	defaults domain.ContextSettings
}

// NewContextService uses defaults for users who never saved their own
// settings.
func NewContextService(settings domain.ContextSettingsRepository, users domain.UserRepository, defaults domain.ContextSettings) *ContextService {
	return &ContextService{
		settings: settings,
		users:    users,
		defaults: defaults,
	}
}

type ResolveInput struct {
	UserID   string
	At       time.Time
	Location *domain.Coordinate
}

func (s *ContextService) GetSettings(ctx context.Context, userID string) (*domain.ContextSettings, error) {
	stored, err := s.settings.Get(ctx, userID)
	if errors.Is(err, domain.ErrSettingsNotFound) {
		fallback := s.defaults
		return &fallback, nil
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *ContextService) UpdateSettings(ctx context.Context, userID string, settings domain.ContextSettings) (*domain.ContextSettings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.DayCategories == nil {
		settings.DayCategories = domain.DefaultDayCategories()
	}
	if err := s.settings.Save(ctx, userID, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Resolve evaluates the context on the user's wall clock.
func (s *ContextService) Resolve(ctx context.Context, input ResolveInput) (domain.Context, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return domain.Context{}, err
	}

	settings, err := s.GetSettings(ctx, input.UserID)
	if err != nil {
		return domain.Context{}, err
	}

	at := input.At
	if at.IsZero() {
		at = time.Now()
	}
	local := at.In(user.Location())

	return domain.NewContextResolver(*settings).Resolve(local, local.Weekday(), input.Location), nil
}
