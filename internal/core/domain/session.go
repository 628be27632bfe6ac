package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound        = errors.New("routine session not found")
	ErrSessionAlreadyActive   = errors.New("a routine session is already active on this device")
	ErrNoActiveSession        = errors.New("no active routine session")
	ErrSessionNotActive       = errors.New("routine session is not active")
	ErrEmptyRoutine           = errors.New("routine has no active habits")
	ErrHabitNotInSequence     = errors.New("habit is not part of the active sequence")
	ErrRequiredHabit          = errors.New("required habit cannot be skipped")
	ErrIncompleteRoutine      = errors.New("routine still has required habits without an entry")
	ErrConditionalNeedsAnswer = errors.New("conditional habit must be answered by selecting an option")
	ErrInvalidTimeTaken       = errors.New("time taken cannot be negative")
)

type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionActive     SessionState = "active"
	SessionCompleted  SessionState = "completed"
	SessionCancelled  SessionState = "cancelled"
)

func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// CancelledHabitID marks the synthetic entry appended when a session is cancelled.
const CancelledHabitID = "routine.cancelled"

// SequenceItem is one habit of the active sequence. Follow-ups spliced in by
// a conditional answer remember which conditional and option produced them.
type SequenceItem struct {
	Habit         Habit  `json:"habit"`
	ParentHabitID string `json:"parent_habit_id,omitempty"`
	OptionID      string `json:"option_id,omitempty"`
	Depth         int    `json:"depth"`
}

// HabitCompletion is an immutable log entry. HabitName is a snapshot taken at
// completion time.
type HabitCompletion struct {
	ID               string    `json:"id"`
	HabitID          string    `json:"habit_id"`
	HabitName        string    `json:"habit_name"`
	CompletedAt      time.Time `json:"completed_at"`
	TimeTakenSeconds *int      `json:"time_taken_seconds,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
	WasSkipped       bool      `json:"was_skipped"`
}

type RoutineSession struct {
	ID                string
	UserID            string
	DeviceID          string
	RoutineID         string
	RoutineName       string
	State             SessionState
	StartedAt         time.Time
	CompletedAt       *time.Time
	CurrentHabitIndex int
	// CurrentStartedAt is when the cursor arrived on the current habit; it
	// drives the timer sub-state of timer and guided-sequence habits.
	CurrentStartedAt time.Time
	Sequence         []SequenceItem
	HabitCompletions []HabitCompletion
	// RetractedCompletions keeps entries withdrawn when a conditional answer
	// changes, so the audit trail survives the branch swap.
	RetractedCompletions []HabitCompletion
	ExpandedOptions      map[string]string
}

func StartSession(userID, deviceID string, t *RoutineTemplate, now time.Time) (*RoutineSession, error) {
	if t == nil {
		return nil, ErrTemplateNotFound
	}
	habits := t.ActiveHabits()
	if len(habits) == 0 {
		return nil, ErrEmptyRoutine
	}

	sequence := make([]SequenceItem, 0, len(habits))
	for _, h := range habits {
		sequence = append(sequence, SequenceItem{Habit: h})
	}

	return &RoutineSession{
		ID:               uuid.New().String(),
		UserID:           userID,
		DeviceID:         deviceID,
		RoutineID:        t.ID,
		RoutineName:      t.Name,
		State:            SessionActive,
		StartedAt:        now.UTC(),
		CurrentStartedAt: now.UTC(),
		Sequence:         sequence,
		HabitCompletions: []HabitCompletion{},
		ExpandedOptions:  make(map[string]string),
	}, nil
}

func (s *RoutineSession) IsCompleted() bool {
	return s.State == SessionCompleted
}

func (s *RoutineSession) ensureActive() error {
	if s.State != SessionActive {
		return fmt.Errorf("%w (state %s)", ErrSessionNotActive, s.State)
	}
	return nil
}

func (s *RoutineSession) indexOf(habitID string) int {
	for i, item := range s.Sequence {
		if item.Habit.ID == habitID {
			return i
		}
	}
	return -1
}

func (s *RoutineSession) hasEntry(habitID string) bool {
	for _, c := range s.HabitCompletions {
		if c.HabitID == habitID {
			return true
		}
	}
	return false
}

// record appends an entry for the habit at idx and moves the cursor forward
// when that habit is the current one and not the last.
func (s *RoutineSession) record(idx int, skipped bool, timeTaken *time.Duration, notes string, now time.Time) {
	h := s.Sequence[idx].Habit
	entry := HabitCompletion{
		ID:          uuid.New().String(),
		HabitID:     h.ID,
		HabitName:   h.DisplayName(),
		CompletedAt: now.UTC(),
		WasSkipped:  skipped,
	}
	if timeTaken != nil {
		secs := int(*timeTaken / time.Second)
		entry.TimeTakenSeconds = &secs
	}
	if strings.TrimSpace(notes) != "" {
		n := notes
		entry.Notes = &n
	}
	s.HabitCompletions = append(s.HabitCompletions, entry)

	if idx == s.CurrentHabitIndex {
		s.moveCursor(idx+1, now)
	}
}

// moveCursor clamps i into the sequence and restarts the current habit's
// clock when the cursor actually lands on a different index.
func (s *RoutineSession) moveCursor(i int, now time.Time) {
	next := clampIndex(i, len(s.Sequence))
	if next == s.CurrentHabitIndex {
		return
	}
	s.CurrentHabitIndex = next
	s.CurrentStartedAt = now.UTC()
}

// Complete records a habit as done. Completing an already recorded habit is a
// silent no-op.
func (s *RoutineSession) Complete(habitID string, timeTaken *time.Duration, notes string, now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	idx := s.indexOf(habitID)
	if idx < 0 {
		return ErrHabitNotInSequence
	}
	if s.hasEntry(habitID) {
		return nil
	}
	if s.Sequence[idx].Habit.IsConditional() {
		return ErrConditionalNeedsAnswer
	}
	if timeTaken != nil && *timeTaken < 0 {
		return ErrInvalidTimeTaken
	}

	s.record(idx, false, timeTaken, notes, now)
	return nil
}

// Skip records an optional habit as skipped. Skipping a conditional question
// records "Skipped" and expands nothing.
func (s *RoutineSession) Skip(habitID, notes string, now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	idx := s.indexOf(habitID)
	if idx < 0 {
		return ErrHabitNotInSequence
	}
	if s.hasEntry(habitID) {
		return nil
	}
	h := s.Sequence[idx].Habit
	if !h.IsOptional {
		return ErrRequiredHabit
	}
	if h.IsConditional() && strings.TrimSpace(notes) == "" {
		notes = "Skipped"
	}

	s.record(idx, true, nil, notes, now)
	return nil
}

// MissingRequired lists required habits of the active sequence that have no
// entry yet, in sequence order.
func (s *RoutineSession) MissingRequired() []string {
	var missing []string
	for _, item := range s.Sequence {
		if item.Habit.IsOptional || s.hasEntry(item.Habit.ID) {
			continue
		}
		missing = append(missing, item.Habit.ID)
	}
	return missing
}

func (s *RoutineSession) Finish(now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if missing := s.MissingRequired(); len(missing) > 0 {
		return fmt.Errorf("%w: %d missing (%s)", ErrIncompleteRoutine, len(missing), strings.Join(missing, ", "))
	}

	done := now.UTC()
	s.CompletedAt = &done
	s.State = SessionCompleted
	return nil
}

// Cancel ends the session early and appends a synthetic audit entry noting
// how many habits were actually completed.
func (s *RoutineSession) Cancel(now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}

	note := fmt.Sprintf("Cancelled: %d of %d habits completed", s.DoneCount(), len(s.Sequence))
	at := now.UTC()
	s.HabitCompletions = append(s.HabitCompletions, HabitCompletion{
		ID:          uuid.New().String(),
		HabitID:     CancelledHabitID,
		HabitName:   "Routine cancelled",
		CompletedAt: at,
		Notes:       &note,
		WasSkipped:  true,
	})
	s.CompletedAt = &at
	s.State = SessionCancelled
	return nil
}

func (s *RoutineSession) Advance(now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	s.moveCursor(s.CurrentHabitIndex+1, now)
	return nil
}

func (s *RoutineSession) Retreat(now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	s.moveCursor(s.CurrentHabitIndex-1, now)
	return nil
}

func clampIndex(i, length int) int {
	if length == 0 || i < 0 {
		return 0
	}
	if i > length-1 {
		return length - 1
	}
	return i
}

// RecordedCount counts entries (done or skipped) for habits still in the
// active sequence.
func (s *RoutineSession) RecordedCount() int {
	n := 0
	for _, item := range s.Sequence {
		if s.hasEntry(item.Habit.ID) {
			n++
		}
	}
	return n
}

// DoneCount counts habits of the active sequence completed without skipping.
func (s *RoutineSession) DoneCount() int {
	done := make(map[string]bool, len(s.HabitCompletions))
	for _, c := range s.HabitCompletions {
		if !c.WasSkipped {
			done[c.HabitID] = true
		}
	}
	n := 0
	for _, item := range s.Sequence {
		if done[item.Habit.ID] {
			n++
		}
	}
	return n
}

// Progress is recorded habits over the current sequence length, always in [0, 1].
func (s *RoutineSession) Progress() float64 {
	total := len(s.Sequence)
	if total == 0 {
		return 0
	}
	return float64(s.RecordedCount()) / float64(total)
}

func (s *RoutineSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	if d := end.Sub(s.StartedAt); d > 0 {
		return d
	}
	return 0
}

func (s *RoutineSession) CurrentHabit() *Habit {
	if len(s.Sequence) == 0 {
		return nil
	}
	h := s.Sequence[clampIndex(s.CurrentHabitIndex, len(s.Sequence))].Habit
	return &h
}

// SessionSnapshot is a materialized, read-only view handed to the clients
// after every operation.
type SessionSnapshot struct {
	SessionID          string            `json:"session_id"`
	RoutineID          string            `json:"routine_id"`
	RoutineName        string            `json:"routine_name"`
	DeviceID           string            `json:"device_id"`
	State              SessionState      `json:"state"`
	IsCompleted        bool              `json:"is_completed"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	CurrentHabitIndex  int               `json:"current_habit_index"`
	CurrentHabit       *Habit            `json:"current_habit,omitempty"`
	CurrentTimer       *TimerProgress    `json:"current_timer,omitempty"`
	Sequence           []SequenceItem    `json:"active_sequence"`
	Completions        []HabitCompletion `json:"habit_completions"`
	ExpandedOptions    map[string]string `json:"expanded_options,omitempty"`
	RecordedCount      int               `json:"recorded_count"`
	TotalCount         int               `json:"total_count"`
	Progress           float64           `json:"progress"`
	ElapsedSeconds     int               `json:"elapsed_seconds"`
	EstimatedRemaining int               `json:"estimated_remaining_seconds"`
	MissingRequired    []string          `json:"missing_required,omitempty"`
	CanFinish          bool              `json:"can_finish"`
}

func (s *RoutineSession) Snapshot(now time.Time) SessionSnapshot {
	sequence := make([]SequenceItem, len(s.Sequence))
	copy(sequence, s.Sequence)
	completions := make([]HabitCompletion, len(s.HabitCompletions))
	copy(completions, s.HabitCompletions)

	var expanded map[string]string
	if len(s.ExpandedOptions) > 0 {
		expanded = make(map[string]string, len(s.ExpandedOptions))
		for k, v := range s.ExpandedOptions {
			expanded[k] = v
		}
	}

	var remaining time.Duration
	for _, item := range s.Sequence {
		if !s.hasEntry(item.Habit.ID) {
			remaining += item.Habit.EstimatedDuration()
		}
	}

	missing := s.MissingRequired()
	current := s.CurrentHabit()
	return SessionSnapshot{
		SessionID:          s.ID,
		RoutineID:          s.RoutineID,
		RoutineName:        s.RoutineName,
		DeviceID:           s.DeviceID,
		State:              s.State,
		IsCompleted:        s.IsCompleted(),
		StartedAt:          s.StartedAt,
		CompletedAt:        s.CompletedAt,
		CurrentHabitIndex:  s.CurrentHabitIndex,
		CurrentHabit:       current,
		CurrentTimer:       s.currentTimer(current, now),
		Sequence:           sequence,
		Completions:        completions,
		ExpandedOptions:    expanded,
		RecordedCount:      s.RecordedCount(),
		TotalCount:         len(s.Sequence),
		Progress:           s.Progress(),
		ElapsedSeconds:     int(s.Elapsed(now) / time.Second),
		EstimatedRemaining: int(remaining / time.Second),
		MissingRequired:    missing,
		CanFinish:          s.State == SessionActive && len(missing) == 0,
	}
}

// currentTimer reports the running timer of the current habit. Recorded
// habits and terminal sessions have none.
func (s *RoutineSession) currentTimer(current *Habit, now time.Time) *TimerProgress {
	if current == nil || s.State != SessionActive || s.hasEntry(current.ID) {
		return nil
	}
	p, ok := current.Type.Progress(now.Sub(s.CurrentStartedAt))
	if !ok {
		return nil
	}
	return &p
}

// CompletionRecord is the storage and wire shape handed to completion sinks.
// SessionID is the de-duplication key.
type CompletionRecord struct {
	SessionID            string            `json:"session_id"`
	UserID               string            `json:"user_id"`
	DeviceID             string            `json:"device_id"`
	RoutineID            string            `json:"routine_id"`
	RoutineName          string            `json:"routine_name"`
	Status               SessionState      `json:"status"`
	IsCompleted          bool              `json:"is_completed"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	TotalHabits          int               `json:"total_habits"`
	Completions          []HabitCompletion `json:"habit_completions"`
	RetractedCompletions []HabitCompletion `json:"retracted_completions,omitempty"`
}

func (s *RoutineSession) Record() CompletionRecord {
	completions := make([]HabitCompletion, len(s.HabitCompletions))
	copy(completions, s.HabitCompletions)

	var retracted []HabitCompletion
	if len(s.RetractedCompletions) > 0 {
		retracted = make([]HabitCompletion, len(s.RetractedCompletions))
		copy(retracted, s.RetractedCompletions)
	}

	return CompletionRecord{
		SessionID:            s.ID,
		UserID:               s.UserID,
		DeviceID:             s.DeviceID,
		RoutineID:            s.RoutineID,
		RoutineName:          s.RoutineName,
		Status:               s.State,
		IsCompleted:          s.IsCompleted(),
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
		TotalHabits:          len(s.Sequence),
		Completions:          completions,
		RetractedCompletions: retracted,
	}
}

func (r CompletionRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	if d := r.CompletedAt.Sub(r.StartedAt); d > 0 {
		return d
	}
	return 0
}
