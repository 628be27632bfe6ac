package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/metrics"
)

type TemplateService struct {
	repo     domain.TemplateRepository
	contexts *ContextService
}

func NewTemplateService(repo domain.TemplateRepository, contexts *ContextService) *TemplateService {
	return &TemplateService{
		repo:     repo,
		contexts: contexts,
	}
}

type CreateTemplateInput struct {
	UserID      string
	Name        string
	Habits      []domain.Habit
	ContextRule *domain.ContextRule
	IsDefault   bool
}

type UpdateTemplateInput struct {
	ID          string
	UserID      string
	Name        string
	Habits      []domain.Habit
	ContextRule *domain.ContextRule
	IsDefault   bool
	Version     int
}

type SelectInput struct {
	UserID   string
	At       time.Time
	Location *domain.Coordinate
}

type SelectionResult struct {
	Template *domain.RoutineTemplate `json:"template"`
	Context  domain.Context          `json:"context"`
	Scores   []domain.TemplateScore  `json:"scores"`
}

func (s *TemplateService) Create(ctx context.Context, input CreateTemplateInput) (*domain.RoutineTemplate, error) {
	t, err := domain.NewRoutineTemplate(input.UserID, input.Name, input.Habits, input.ContextRule, input.IsDefault)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, id, userID string) (*domain.RoutineTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrTemplateNotFound
	}
	return t, nil
}

func (s *TemplateService) ListByUserID(ctx context.Context, userID string) ([]*domain.RoutineTemplate, error) {
	return s.repo.ListByUserID(ctx, userID)
}

func (s *TemplateService) GetDelta(ctx context.Context, userID string, lastSync time.Time) ([]*domain.RoutineTemplate, error) {
	return s.repo.GetChanges(ctx, userID, lastSync)
}

func (s *TemplateService) Update(ctx context.Context, input UpdateTemplateInput) (*domain.RoutineTemplate, error) {
	t, err := s.Get(ctx, input.ID, input.UserID)
	if err != nil {
		return nil, err
	}

	if input.Version > 0 && t.Version != input.Version {
		return nil, fmt.Errorf("%w: client v%d vs server v%d", domain.ErrTemplateConflict, input.Version, t.Version)
	}

	if err := t.Update(input.Name, input.Habits, input.ContextRule, input.IsDefault); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Select resolves the user's context at input.At and picks the best template.
// ErrNoMatchingTemplate is returned alongside the scores when nothing is
// eligible and no default exists.
func (s *TemplateService) Select(ctx context.Context, input SelectInput) (*SelectionResult, error) {
	resolved, err := s.contexts.Resolve(ctx, ResolveInput{
		UserID:   input.UserID,
		At:       input.At,
		Location: input.Location,
	})
	if err != nil {
		return nil, err
	}

	templates, err := s.repo.ListByUserID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	result := &SelectionResult{
		Template: domain.SelectBestTemplate(templates, resolved),
		Context:  resolved,
		Scores:   domain.ExplainSelection(templates, resolved),
	}

	switch {
	case result.Template == nil:
		metrics.TemplateSelections.WithLabelValues("none").Inc()
		return result, domain.ErrNoMatchingTemplate
	case len(result.Scores) > 0 && result.Scores[0].Eligible:
		metrics.TemplateSelections.WithLabelValues("matched").Inc()
	default:
		metrics.TemplateSelections.WithLabelValues("default").Inc()
	}
	return result, nil
}

// Touch stamps lastUsedAt. Failures are logged, never surfaced.
func (s *TemplateService) Touch(ctx context.Context, id string, at time.Time) {
	if err := s.repo.TouchLastUsed(ctx, id, at); err != nil {
		log.Printf("[TEMPLATE] Failed to touch lastUsedAt for %s: %v", id, err)
	}
}
