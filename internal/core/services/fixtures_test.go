package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Monday 2026-03-09, 07:30 UTC.
var monday0730 = time.Date(2026, 3, 9, 7, 30, 0, 0, time.UTC)

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Enqueue(record domain.CompletionRecord) error {
	return m.Called(record).Error(0)
}

func (m *MockExporter) Park(record domain.CompletionRecord, sink string) error {
	return m.Called(record, sink).Error(0)
}

type failingSessionRepo struct {
	*repository.InMemorySessionRepository
	err error
}

func (r *failingSessionRepo) Save(ctx context.Context, record *domain.CompletionRecord) error {
	return r.err
}

var errDiskFull = errors.New("disk full")

type fixture struct {
	users     *repository.InMemoryUserRepository
	templates *repository.InMemoryTemplateRepository
	settings  *repository.InMemoryContextSettingsRepository
	history   *repository.InMemorySessionRepository

	contextSvc  *services.ContextService
	templateSvc *services.TemplateService
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()
	f := &fixture{
		users:     repository.NewInMemoryUserRepository(),
		templates: repository.NewInMemoryTemplateRepository(),
		settings:  repository.NewInMemoryContextSettingsRepository(),
		history:   repository.NewInMemorySessionRepository(),
	}
	for _, id := range userIDs {
		u, err := domain.NewUser(id, id+"@kanso.app")
		require.NoError(t, err)
		require.NoError(t, f.users.Create(context.Background(), u))
	}
	f.contextSvc = services.NewContextService(f.settings, f.users, domain.DefaultContextSettings())
	f.templateSvc = services.NewTemplateService(f.templates, f.contextSvc)
	return f
}

func (f *fixture) addTemplate(t *testing.T, userID, name string, rule *domain.ContextRule, habits ...domain.Habit) *domain.RoutineTemplate {
	t.Helper()
	tpl, err := f.templateSvc.Create(context.Background(), services.CreateTemplateInput{
		UserID:      userID,
		Name:        name,
		Habits:      habits,
		ContextRule: rule,
	})
	require.NoError(t, err)
	return tpl
}

func taskHabit(id string, order int) domain.Habit {
	return domain.Habit{ID: id, Name: id, Type: domain.TaskType(), Order: order, IsActive: true}
}

func optionalHabit(id string, order int) domain.Habit {
	h := taskHabit(id, order)
	h.IsOptional = true
	return h
}

func morningRule() *domain.ContextRule {
	return &domain.ContextRule{Enabled: true, TimeSlots: []string{domain.SlotMorning}, Priority: 1}
}
