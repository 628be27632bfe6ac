package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSessionService(f *fixture, repo domain.SessionRepository, exporter services.CompletionExporter) *services.SessionService {
	clock := monday0730
	return services.NewSessionService(f.templateSvc, repo, exporter).WithClock(func() time.Time { return clock })
}

func TestSessionService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Explicit template", func(t *testing.T) {
		f := newFixture(t, "u1")
		tpl := f.addTemplate(t, "u1", "Evening", nil, taskHabit("read", 1))
		svc := newSessionService(f, f.history, new(MockExporter))

		snap, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", DeviceID: "watch", TemplateID: tpl.ID})
		require.NoError(t, err)
		assert.Equal(t, tpl.ID, snap.RoutineID)
		assert.Equal(t, "watch", snap.DeviceID)
		assert.Equal(t, domain.SessionActive, snap.State)

		stored, _ := f.templates.GetByID(ctx, tpl.ID)
		require.NotNil(t, stored.LastUsedAt)
		assert.True(t, stored.LastUsedAt.Equal(monday0730))
	})

	t.Run("Success: Smart selection uses the context", func(t *testing.T) {
		f := newFixture(t, "u1")
		morning := f.addTemplate(t, "u1", "Morning", morningRule(), taskHabit("water", 1))
		f.addTemplate(t, "u1", "Quick", &domain.ContextRule{Enabled: true, Priority: 5}, taskHabit("breathe", 1))
		svc := newSessionService(f, f.history, new(MockExporter))

		snap, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, morning.ID, snap.RoutineID)
		assert.Equal(t, services.DefaultDeviceID, snap.DeviceID)
	})

	t.Run("Error: One active session per device", func(t *testing.T) {
		f := newFixture(t, "u1")
		tpl := f.addTemplate(t, "u1", "Evening", nil, taskHabit("read", 1))
		svc := newSessionService(f, f.history, new(MockExporter))

		_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", DeviceID: "iphone", TemplateID: tpl.ID})
		require.NoError(t, err)

		_, err = svc.Start(ctx, services.StartSessionInput{UserID: "u1", DeviceID: "iphone", TemplateID: tpl.ID})
		assert.ErrorIs(t, err, domain.ErrSessionAlreadyActive)

		_, err = svc.Start(ctx, services.StartSessionInput{UserID: "u1", DeviceID: "watch", TemplateID: tpl.ID})
		assert.NoError(t, err, "another device may run its own session")
	})

	t.Run("Error: Nothing matches", func(t *testing.T) {
		f := newFixture(t, "u1")
		svc := newSessionService(f, f.history, new(MockExporter))

		_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1"})
		assert.ErrorIs(t, err, domain.ErrNoMatchingTemplate)
	})

	t.Run("Error: Template of another user", func(t *testing.T) {
		f := newFixture(t, "u1", "u2")
		tpl := f.addTemplate(t, "u2", "Private", nil, taskHabit("x", 1))
		svc := newSessionService(f, f.history, new(MockExporter))

		_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
		assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
	})
}

func TestSessionService_FinishFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")
	tpl := f.addTemplate(t, "u1", "Morning", nil, taskHabit("a", 1), optionalHabit("b", 2), taskHabit("c", 3))

	exporter := new(MockExporter)
	exporter.On("Enqueue", mock.AnythingOfType("domain.CompletionRecord")).Return(nil).Once()
	svc := newSessionService(f, f.history, exporter)

	_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)

	_, err = svc.Skip(services.HabitInput{UserID: "u1", HabitID: "b"})
	require.NoError(t, err)

	_, err = svc.Skip(services.HabitInput{UserID: "u1", HabitID: "a"})
	assert.ErrorIs(t, err, domain.ErrRequiredHabit)

	secs := 45
	snap, err := svc.Complete(services.HabitInput{UserID: "u1", HabitID: "a", TimeTakenSeconds: &secs})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RecordedCount)

	_, err = svc.Finish(ctx, "u1", "")
	assert.ErrorIs(t, err, domain.ErrIncompleteRoutine)

	_, err = svc.Complete(services.HabitInput{UserID: "u1", HabitID: "c"})
	require.NoError(t, err)

	result, err := svc.Finish(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.Snapshot.IsCompleted)
	assert.Len(t, result.Record.Completions, 3)

	stored, err := svc.GetByID(ctx, "u1", result.Record.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, stored.Status)

	_, err = svc.Current("u1", "")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	exporter.AssertExpectations(t)
}

func TestSessionService_SinkFailuresBecomeWarnings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")
	tpl := f.addTemplate(t, "u1", "Tiny", nil, taskHabit("a", 1))

	exporter := new(MockExporter)
	exporter.On("Enqueue", mock.Anything).Return(errDiskFull)
	broken := &failingSessionRepo{InMemorySessionRepository: f.history, err: errDiskFull}
	svc := newSessionService(f, broken, exporter)

	_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)
	_, err = svc.Complete(services.HabitInput{UserID: "u1", HabitID: "a"})
	require.NoError(t, err)

	result, err := svc.Finish(ctx, "u1", "")
	require.NoError(t, err, "sink failures never fail the terminal transition")
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, domain.SessionCompleted, result.Record.Status)

	_, err = svc.Current("u1", "")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestSessionService_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")
	tpl := f.addTemplate(t, "u1", "Morning", nil, taskHabit("a", 1), taskHabit("b", 2), taskHabit("c", 3))

	exporter := new(MockExporter)
	svc := newSessionService(f, f.history, exporter)

	_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", DeviceID: "watch", TemplateID: tpl.ID})
	require.NoError(t, err)
	_, err = svc.Complete(services.HabitInput{UserID: "u1", DeviceID: "watch", HabitID: "a"})
	require.NoError(t, err)

	result, err := svc.Cancel(ctx, "u1", "watch")
	require.NoError(t, err)

	assert.False(t, result.Snapshot.IsCompleted)
	assert.Equal(t, domain.SessionCancelled, result.Record.Status)
	last := result.Record.Completions[len(result.Record.Completions)-1]
	assert.Equal(t, "Cancelled: 1 of 3 habits completed", *last.Notes)

	history, err := svc.History(ctx, "u1", monday0730.Add(-time.Hour), monday0730.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 1)

	exporter.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestSessionService_CancelQueuesHistoryRetry(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		parkErr      error
		wantWarnings int
	}{
		{name: "Success: Cancelled record parked for the history sink", parkErr: nil, wantWarnings: 1},
		{name: "Error: Outbox also unavailable", parkErr: errDiskFull, wantWarnings: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "u1")
			tpl := f.addTemplate(t, "u1", "Morning", nil, taskHabit("a", 1), taskHabit("b", 2))

			exporter := new(MockExporter)
			exporter.On("Park", mock.AnythingOfType("domain.CompletionRecord"), domain.HistorySink).Return(tt.parkErr).Once()
			broken := &failingSessionRepo{InMemorySessionRepository: f.history, err: errDiskFull}
			svc := newSessionService(f, broken, exporter)

			_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
			require.NoError(t, err)

			result, err := svc.Cancel(ctx, "u1", "")
			require.NoError(t, err)
			assert.Equal(t, domain.SessionCancelled, result.Record.Status)
			assert.Len(t, result.Warnings, tt.wantWarnings)
			assert.Contains(t, result.Warnings[0], "history not saved")

			exporter.AssertExpectations(t)
			exporter.AssertNotCalled(t, "Enqueue", mock.Anything)
			parked := exporter.Calls[0].Arguments.Get(0).(domain.CompletionRecord)
			assert.Equal(t, result.Record.SessionID, parked.SessionID)
		})
	}
}

func TestSessionService_FinishSaveFailureUsesEnqueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")
	tpl := f.addTemplate(t, "u1", "Tiny", nil, taskHabit("a", 1))

	exporter := new(MockExporter)
	exporter.On("Enqueue", mock.AnythingOfType("domain.CompletionRecord")).Return(nil).Once()
	broken := &failingSessionRepo{InMemorySessionRepository: f.history, err: errDiskFull}
	svc := newSessionService(f, broken, exporter)

	_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)
	_, err = svc.Complete(services.HabitInput{UserID: "u1", HabitID: "a"})
	require.NoError(t, err)

	result, err := svc.Finish(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 1)

	exporter.AssertExpectations(t)
	exporter.AssertNotCalled(t, "Park", mock.Anything, mock.Anything)
}

func TestSessionService_Intents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")
	q := domain.Habit{
		ID: "q", Order: 2, IsActive: true,
		Type: domain.ConditionalType("Tired?",
			domain.ConditionalOption{ID: "yes", Text: "Yes", FollowUp: []domain.Habit{taskHabit("nap", 1)}},
			domain.ConditionalOption{ID: "no", Text: "No"},
		),
	}
	tpl := f.addTemplate(t, "u1", "Morning", nil, taskHabit("a", 1), q)
	svc := newSessionService(f, f.history, new(MockExporter))

	t.Run("Error: No active session", func(t *testing.T) {
		_, err := svc.Advance("u1", "")
		assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	})

	_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)

	t.Run("Success: Navigation", func(t *testing.T) {
		snap, err := svc.Advance("u1", "")
		require.NoError(t, err)
		assert.Equal(t, 1, snap.CurrentHabitIndex)

		snap, err = svc.Retreat("u1", "")
		require.NoError(t, err)
		assert.Equal(t, 0, snap.CurrentHabitIndex)
	})

	t.Run("Success: Branch selection and clearing", func(t *testing.T) {
		snap, err := svc.SelectOption(services.OptionInput{UserID: "u1", HabitID: "q", OptionID: "yes"})
		require.NoError(t, err)
		assert.Equal(t, 3, snap.TotalCount)

		snap, err = svc.ClearOption(services.OptionInput{UserID: "u1", HabitID: "q"})
		require.NoError(t, err)
		assert.Equal(t, 2, snap.TotalCount)
	})

	t.Run("Error: Sessions are isolated per user", func(t *testing.T) {
		_, err := svc.Current("u2", "")
		assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	})

	t.Run("Success: Concurrent completions record once", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = svc.Complete(services.HabitInput{UserID: "u1", HabitID: "a"})
			}()
		}
		wg.Wait()

		snap, err := svc.Current("u1", "")
		require.NoError(t, err)
		assert.Len(t, snap.Completions, 1)
	})
}

func TestSessionService_Reads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")
	tpl := f.addTemplate(t, "u1", "Tiny", nil, taskHabit("a", 1))
	svc := newSessionService(f, f.history, new(MockExporter))

	_, err := svc.Start(ctx, services.StartSessionInput{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)
	result, err := svc.Cancel(ctx, "u1", "")
	require.NoError(t, err)

	t.Run("Error: Record of another user", func(t *testing.T) {
		_, err := svc.GetByID(ctx, "u2", result.Record.SessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Success: Delta since zero contains the record", func(t *testing.T) {
		delta, err := svc.GetDelta(ctx, "u1", time.Time{})
		require.NoError(t, err)
		require.Len(t, delta, 1)
		assert.Equal(t, result.Record.SessionID, delta[0].SessionID)
	})
}
