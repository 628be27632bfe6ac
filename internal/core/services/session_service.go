package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/metrics"
)

const DefaultDeviceID = "default"

// CompletionExporter hands finished sessions to the cross-device transport.
// Park queues a record for one named sink only.
type CompletionExporter interface {
	Enqueue(record domain.CompletionRecord) error
	Park(record domain.CompletionRecord, sink string) error
}

// SessionService owns every in-progress session. All mutations go through a
// single mutex; persistence and export happen after the terminal state is
// committed and never roll it back.
type SessionService struct {
	templates *TemplateService
	repo      domain.SessionRepository
	exporter  CompletionExporter
	now       func() time.Time

	mu     sync.Mutex
	active map[string]*domain.RoutineSession
}

func NewSessionService(templates *TemplateService, repo domain.SessionRepository, exporter CompletionExporter) *SessionService {
	return &SessionService{
		templates: templates,
		repo:      repo,
		exporter:  exporter,
		now:       time.Now,
		active:    make(map[string]*domain.RoutineSession),
	}
}

// WithClock replaces the wall clock, mainly for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

type StartSessionInput struct {
	UserID     string
	DeviceID   string
	TemplateID string
	Location   *domain.Coordinate
}

type HabitInput struct {
	UserID           string
	DeviceID         string
	HabitID          string
	TimeTakenSeconds *int
	Notes            string
}

type OptionInput struct {
	UserID   string
	DeviceID string
	HabitID  string
	OptionID string
}

// TerminalResult is returned by Finish and Cancel. Warnings carry sink
// failures; the session is terminal regardless.
type TerminalResult struct {
	Snapshot domain.SessionSnapshot  `json:"session"`
	Record   domain.CompletionRecord `json:"record"`
	Warnings []string                `json:"warnings,omitempty"`
}

func sessionKey(userID, deviceID string) string {
	if deviceID == "" {
		deviceID = DefaultDeviceID
	}
	return userID + "|" + deviceID
}

func (s *SessionService) Start(ctx context.Context, input StartSessionInput) (*domain.SessionSnapshot, error) {
	if input.DeviceID == "" {
		input.DeviceID = DefaultDeviceID
	}
	key := sessionKey(input.UserID, input.DeviceID)

	s.mu.Lock()
	_, busy := s.active[key]
	s.mu.Unlock()
	if busy {
		return nil, domain.ErrSessionAlreadyActive
	}

	now := s.now()
	mode := "explicit"

	var tpl *domain.RoutineTemplate
	var err error
	if input.TemplateID != "" {
		tpl, err = s.templates.Get(ctx, input.TemplateID, input.UserID)
	} else {
		mode = "selected"
		var result *SelectionResult
		result, err = s.templates.Select(ctx, SelectInput{UserID: input.UserID, At: now, Location: input.Location})
		if result != nil {
			tpl = result.Template
		}
	}
	if err != nil {
		return nil, err
	}

	session, err := domain.StartSession(input.UserID, input.DeviceID, tpl, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, busy := s.active[key]; busy {
		s.mu.Unlock()
		return nil, domain.ErrSessionAlreadyActive
	}
	s.active[key] = session
	snapshot := session.Snapshot(now)
	metrics.SessionsActive.Set(float64(len(s.active)))
	s.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues(mode).Inc()
	s.templates.Touch(ctx, tpl.ID, now)

	log.Printf("[SESSION] Started %s (%s) for user %s on %s", session.ID, tpl.Name, input.UserID, input.DeviceID)
	return &snapshot, nil
}

// mutate applies fn to the active session of the device under the lock and
// returns the resulting snapshot.
func (s *SessionService) mutate(userID, deviceID string, fn func(session *domain.RoutineSession, now time.Time) error) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.active[sessionKey(userID, deviceID)]
	if !ok {
		return nil, domain.ErrNoActiveSession
	}

	now := s.now()
	if err := fn(session, now); err != nil {
		return nil, err
	}

	snapshot := session.Snapshot(now)
	return &snapshot, nil
}

func (s *SessionService) Current(userID, deviceID string) (*domain.SessionSnapshot, error) {
	return s.mutate(userID, deviceID, func(*domain.RoutineSession, time.Time) error { return nil })
}

func (s *SessionService) Complete(input HabitInput) (*domain.SessionSnapshot, error) {
	var taken *time.Duration
	if input.TimeTakenSeconds != nil {
		d := time.Duration(*input.TimeTakenSeconds) * time.Second
		taken = &d
	}
	return s.mutate(input.UserID, input.DeviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.Complete(input.HabitID, taken, input.Notes, now)
	})
}

func (s *SessionService) Skip(input HabitInput) (*domain.SessionSnapshot, error) {
	return s.mutate(input.UserID, input.DeviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.Skip(input.HabitID, input.Notes, now)
	})
}

func (s *SessionService) SelectOption(input OptionInput) (*domain.SessionSnapshot, error) {
	return s.mutate(input.UserID, input.DeviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.SelectOption(input.HabitID, input.OptionID, now)
	})
}

func (s *SessionService) ClearOption(input OptionInput) (*domain.SessionSnapshot, error) {
	return s.mutate(input.UserID, input.DeviceID, func(session *domain.RoutineSession, _ time.Time) error {
		return session.ClearOption(input.HabitID)
	})
}

func (s *SessionService) Advance(userID, deviceID string) (*domain.SessionSnapshot, error) {
	return s.mutate(userID, deviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.Advance(now)
	})
}

func (s *SessionService) Retreat(userID, deviceID string) (*domain.SessionSnapshot, error) {
	return s.mutate(userID, deviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.Retreat(now)
	})
}

func (s *SessionService) Finish(ctx context.Context, userID, deviceID string) (*TerminalResult, error) {
	return s.terminate(ctx, userID, deviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.Finish(now)
	})
}

func (s *SessionService) Cancel(ctx context.Context, userID, deviceID string) (*TerminalResult, error) {
	return s.terminate(ctx, userID, deviceID, func(session *domain.RoutineSession, now time.Time) error {
		return session.Cancel(now)
	})
}

func (s *SessionService) terminate(ctx context.Context, userID, deviceID string, fn func(*domain.RoutineSession, time.Time) error) (*TerminalResult, error) {
	s.mu.Lock()
	key := sessionKey(userID, deviceID)
	session, ok := s.active[key]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNoActiveSession
	}

	now := s.now()
	if err := fn(session, now); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	delete(s.active, key)
	metrics.SessionsActive.Set(float64(len(s.active)))

	result := &TerminalResult{
		Snapshot: session.Snapshot(now),
		Record:   session.Record(),
	}
	s.mu.Unlock()

	metrics.SessionsEnded.WithLabelValues(string(session.State)).Inc()
	if session.IsCompleted() {
		metrics.SessionDuration.Observe(result.Record.Duration().Seconds())
	}

	record := result.Record
	if err := s.repo.Save(ctx, &record); err != nil {
		log.Printf("[SESSION] Failed to persist %s: %v", record.SessionID, err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("history not saved: %v", err))

		// Finished sessions reach the history sink through Enqueue below.
		if !session.IsCompleted() && s.exporter != nil {
			if err := s.exporter.Park(result.Record, domain.HistorySink); err != nil {
				log.Printf("[SESSION] Failed to queue history for %s: %v", record.SessionID, err)
				result.Warnings = append(result.Warnings, fmt.Sprintf("history retry not queued: %v", err))
			}
		}
	}

	if session.IsCompleted() && s.exporter != nil {
		if err := s.exporter.Enqueue(result.Record); err != nil {
			log.Printf("[SESSION] Failed to export %s: %v", record.SessionID, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("export deferred: %v", err))
		}
	}

	log.Printf("[SESSION] %s ended as %s (%d entries)", record.SessionID, record.Status, len(record.Completions))
	return result, nil
}

func (s *SessionService) History(ctx context.Context, userID string, from, to time.Time) ([]*domain.CompletionRecord, error) {
	return s.repo.ListByUser(ctx, userID, from, to)
}

func (s *SessionService) GetByID(ctx context.Context, userID, sessionID string) (*domain.CompletionRecord, error) {
	record, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return record, nil
}

func (s *SessionService) GetDelta(ctx context.Context, userID string, lastSync time.Time) ([]*domain.CompletionRecord, error) {
	return s.repo.GetChanges(ctx, userID, lastSync)
}
