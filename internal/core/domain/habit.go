package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrHabitIDEmpty         = errors.New("habit id cannot be empty")
	ErrHabitNameTooLong     = errors.New("habit name is too long (max 100 chars)")
	ErrHabitNotesTooLong    = errors.New("habit notes are too long (max 500 chars)")
	ErrInvalidColor         = errors.New("invalid color format (must be #RRGGBB)")
	ErrInvalidHabitKind     = errors.New("invalid habit kind")
	ErrHabitPayloadMismatch = errors.New("habit payload does not match its kind")
	ErrInvalidTimerStyle    = errors.New("invalid timer style (must be countdown, countup or multi_segment)")
	ErrInvalidActionKind    = errors.New("invalid action kind (must be app, website or shortcut)")
	ErrActionIdentifier     = errors.New("action identifier cannot be empty")
	ErrConditionalNoOptions = errors.New("conditional habit needs at least one option")
	ErrQuestionEmpty        = errors.New("conditional question cannot be empty")
	ErrOptionIDEmpty        = errors.New("conditional option id cannot be empty")
	ErrDuplicateOption      = errors.New("duplicate conditional option id")
)

var colorRegex = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

type HabitKind string

const (
	KindTask           HabitKind = "task"
	KindTimer          HabitKind = "timer"
	KindAction         HabitKind = "action"
	KindCounter        HabitKind = "counter"
	KindMeasurement    HabitKind = "measurement"
	KindGuidedSequence HabitKind = "guided_sequence"
	KindConditional    HabitKind = "conditional"
)

type TimerStyle string

const (
	TimerCountdown    TimerStyle = "countdown"
	TimerCountup      TimerStyle = "countup"
	TimerMultiSegment TimerStyle = "multi_segment"
)

type ActionKind string

const (
	ActionApp      ActionKind = "app"
	ActionWebsite  ActionKind = "website"
	ActionShortcut ActionKind = "shortcut"
)

const (
	MaxHabitNameLen  = 100
	MaxHabitNotesLen = 500

	taskBaseSeconds       = 60
	taskPerSubtaskSeconds = 45
	actionSeconds         = 30
	counterBaseSeconds    = 30
	counterPerItemSeconds = 10
	measurementSeconds    = 30
	conditionalSeconds    = 30
	minDurationSeconds    = 1
)

type Subtask struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsOptional bool   `json:"is_optional"`
}

type TaskSpec struct {
	Subtasks []Subtask `json:"subtasks"`
}

type TimerSegment struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
}

type TimerSpec struct {
	Style           TimerStyle     `json:"style"`
	DurationSeconds int            `json:"duration_seconds"`
	TargetSeconds   *int           `json:"target_seconds,omitempty"`
	Segments        []TimerSegment `json:"segments,omitempty"`
}

type ActionSpec struct {
	Kind        ActionKind `json:"kind"`
	Identifier  string     `json:"identifier"`
	DisplayName string     `json:"display_name"`
}

type CounterItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Target int    `json:"target,omitempty"`
}

type CounterSpec struct {
	Items []CounterItem `json:"items"`
}

type MeasurementSpec struct {
	Unit   string   `json:"unit"`
	Target *float64 `json:"target,omitempty"`
}

type SequenceStep struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Instructions    string `json:"instructions,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

type SequenceSpec struct {
	Steps []SequenceStep `json:"steps"`
}

type ConditionalOption struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	FollowUp []Habit `json:"follow_up"`
}

type ConditionalSpec struct {
	Question string              `json:"question"`
	Options  []ConditionalOption `json:"options"`
}

func (c *ConditionalSpec) Option(id string) (ConditionalOption, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ConditionalOption{}, false
}

// HabitType is a closed tagged union: Kind names the variant and exactly the
// matching payload pointer is set.
type HabitType struct {
	Kind        HabitKind        `json:"kind"`
	Task        *TaskSpec        `json:"task,omitempty"`
	Timer       *TimerSpec       `json:"timer,omitempty"`
	Action      *ActionSpec      `json:"action,omitempty"`
	Counter     *CounterSpec     `json:"counter,omitempty"`
	Measurement *MeasurementSpec `json:"measurement,omitempty"`
	Sequence    *SequenceSpec    `json:"sequence,omitempty"`
	Conditional *ConditionalSpec `json:"conditional,omitempty"`
}

func TaskType(subtasks ...Subtask) HabitType {
	return HabitType{Kind: KindTask, Task: &TaskSpec{Subtasks: subtasks}}
}

func TimerType(spec TimerSpec) HabitType {
	return HabitType{Kind: KindTimer, Timer: &spec}
}

func ActionType(spec ActionSpec) HabitType {
	return HabitType{Kind: KindAction, Action: &spec}
}

func CounterType(items ...CounterItem) HabitType {
	return HabitType{Kind: KindCounter, Counter: &CounterSpec{Items: items}}
}

func MeasurementType(unit string, target *float64) HabitType {
	return HabitType{Kind: KindMeasurement, Measurement: &MeasurementSpec{Unit: unit, Target: target}}
}

func SequenceType(steps ...SequenceStep) HabitType {
	return HabitType{Kind: KindGuidedSequence, Sequence: &SequenceSpec{Steps: steps}}
}

func ConditionalType(question string, options ...ConditionalOption) HabitType {
	return HabitType{Kind: KindConditional, Conditional: &ConditionalSpec{Question: question, Options: options}}
}

func (t HabitType) payloadCount() int {
	n := 0
	for _, set := range []bool{
		t.Task != nil, t.Timer != nil, t.Action != nil, t.Counter != nil,
		t.Measurement != nil, t.Sequence != nil, t.Conditional != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (t HabitType) Validate() error {
	if t.payloadCount() != 1 {
		return ErrHabitPayloadMismatch
	}

	switch t.Kind {
	case KindTask:
		if t.Task == nil {
			return ErrHabitPayloadMismatch
		}
	case KindTimer:
		if t.Timer == nil {
			return ErrHabitPayloadMismatch
		}
		switch t.Timer.Style {
		case TimerCountdown, TimerCountup, TimerMultiSegment:
		default:
			return ErrInvalidTimerStyle
		}
	case KindAction:
		if t.Action == nil {
			return ErrHabitPayloadMismatch
		}
		switch t.Action.Kind {
		case ActionApp, ActionWebsite, ActionShortcut:
		default:
			return ErrInvalidActionKind
		}
		if strings.TrimSpace(t.Action.Identifier) == "" {
			return ErrActionIdentifier
		}
	case KindCounter:
		if t.Counter == nil {
			return ErrHabitPayloadMismatch
		}
	case KindMeasurement:
		if t.Measurement == nil {
			return ErrHabitPayloadMismatch
		}
	case KindGuidedSequence:
		if t.Sequence == nil {
			return ErrHabitPayloadMismatch
		}
	case KindConditional:
		if t.Conditional == nil {
			return ErrHabitPayloadMismatch
		}
		if strings.TrimSpace(t.Conditional.Question) == "" {
			return ErrQuestionEmpty
		}
		if len(t.Conditional.Options) == 0 {
			return ErrConditionalNoOptions
		}
		seen := make(map[string]bool, len(t.Conditional.Options))
		for _, o := range t.Conditional.Options {
			if strings.TrimSpace(o.ID) == "" {
				return ErrOptionIDEmpty
			}
			if seen[o.ID] {
				return fmt.Errorf("%w: %s", ErrDuplicateOption, o.ID)
			}
			seen[o.ID] = true
		}
	default:
		return ErrInvalidHabitKind
	}
	return nil
}

func clampSeconds(s int) int {
	if s < minDurationSeconds {
		return minDurationSeconds
	}
	return s
}

func seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// EffectiveDuration is the timer's length in seconds after clamping; the
// target wins over the nominal duration when set.
func (t *TimerSpec) EffectiveDuration() int {
	switch t.Style {
	case TimerMultiSegment:
		if len(t.Segments) == 0 {
			return clampSeconds(t.DurationSeconds)
		}
		total := 0
		for _, s := range t.Segments {
			total += clampSeconds(s.DurationSeconds)
		}
		return total
	default:
		if t.TargetSeconds != nil && *t.TargetSeconds > 0 {
			return *t.TargetSeconds
		}
		return clampSeconds(t.DurationSeconds)
	}
}

func (s *SequenceSpec) EffectiveDuration() int {
	total := 0
	for _, step := range s.Steps {
		total += clampSeconds(step.DurationSeconds)
	}
	return total
}

// EstimatedDuration depends only on the variant payload. Conditionals count a
// fixed answer time whatever branch ends up chosen.
func (t HabitType) EstimatedDuration() time.Duration {
	switch t.Kind {
	case KindTask:
		n := 0
		if t.Task != nil {
			n = len(t.Task.Subtasks)
		}
		return seconds(taskBaseSeconds + taskPerSubtaskSeconds*n)
	case KindTimer:
		if t.Timer == nil {
			return seconds(minDurationSeconds)
		}
		return seconds(t.Timer.EffectiveDuration())
	case KindAction:
		return seconds(actionSeconds)
	case KindCounter:
		n := 0
		if t.Counter != nil {
			n = len(t.Counter.Items)
		}
		return seconds(counterBaseSeconds + counterPerItemSeconds*n)
	case KindMeasurement:
		return seconds(measurementSeconds)
	case KindGuidedSequence:
		if t.Sequence == nil || len(t.Sequence.Steps) == 0 {
			return seconds(minDurationSeconds)
		}
		return seconds(t.Sequence.EffectiveDuration())
	case KindConditional:
		return seconds(conditionalSeconds)
	default:
		return 0
	}
}

func (t HabitType) DefaultName() string {
	switch t.Kind {
	case KindTask:
		return "Task"
	case KindTimer:
		return "Timer"
	case KindAction:
		if t.Action != nil {
			if t.Action.DisplayName != "" {
				return t.Action.DisplayName
			}
			switch t.Action.Kind {
			case ActionWebsite:
				return "Open Website"
			case ActionShortcut:
				return "Run Shortcut"
			}
		}
		return "Open App"
	case KindCounter:
		return "Counter"
	case KindMeasurement:
		return "Measurement"
	case KindGuidedSequence:
		return "Guided Sequence"
	case KindConditional:
		if t.Conditional != nil && t.Conditional.Question != "" {
			return t.Conditional.Question
		}
		return "Question"
	default:
		return "Habit"
	}
}

// Icon returns the SF Symbol the clients render for the kind.
func (t HabitType) Icon() string {
	switch t.Kind {
	case KindTask:
		return "checklist"
	case KindTimer:
		return "timer"
	case KindAction:
		return "arrow.up.forward.app"
	case KindCounter:
		return "number.circle"
	case KindMeasurement:
		return "ruler"
	case KindGuidedSequence:
		return "list.number"
	case KindConditional:
		return "arrow.triangle.branch"
	default:
		return "questionmark.circle"
	}
}

func (t HabitType) IsTracking() bool {
	return t.Kind == KindCounter || t.Kind == KindMeasurement
}

type Habit struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       HabitType `json:"type"`
	IsOptional bool      `json:"is_optional"`
	Notes      string    `json:"notes,omitempty"`
	Color      string    `json:"color,omitempty"`
	Order      int       `json:"order"`
	IsActive   bool      `json:"is_active"`
}

func (h Habit) DisplayName() string {
	if name := strings.TrimSpace(h.Name); name != "" {
		return name
	}
	return h.Type.DefaultName()
}

func (h Habit) EstimatedDuration() time.Duration {
	return h.Type.EstimatedDuration()
}

func (h Habit) IsConditional() bool {
	return h.Type.Kind == KindConditional && h.Type.Conditional != nil
}

func (h Habit) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return ErrHabitIDEmpty
	}
	if len(strings.TrimSpace(h.Name)) > MaxHabitNameLen {
		return ErrHabitNameTooLong
	}
	if len(h.Notes) > MaxHabitNotesLen {
		return ErrHabitNotesTooLong
	}
	if h.Color != "" && !colorRegex.MatchString(h.Color) {
		return ErrInvalidColor
	}
	return h.Type.Validate()
}

// TimerProgress is the sub-state of a running timer or guided sequence.
type TimerProgress struct {
	Segment          int     `json:"segment"`
	SegmentRemaining int     `json:"segment_remaining_seconds"`
	Remaining        int     `json:"remaining_seconds"`
	Fraction         float64 `json:"fraction"`
	Done             bool    `json:"done"`
}

func progressOver(durations []int, elapsed time.Duration) TimerProgress {
	total := 0
	for i := range durations {
		durations[i] = clampSeconds(durations[i])
		total += durations[i]
	}
	if total == 0 {
		total = minDurationSeconds
		durations = []int{minDurationSeconds}
	}

	spent := int(elapsed / time.Second)
	if spent < 0 {
		spent = 0
	}
	if spent >= total {
		return TimerProgress{Segment: len(durations) - 1, Fraction: 1, Done: true}
	}

	p := TimerProgress{
		Remaining: total - spent,
		Fraction:  float64(spent) / float64(total),
	}
	acc := 0
	for i, d := range durations {
		if spent < acc+d {
			p.Segment = i
			p.SegmentRemaining = acc + d - spent
			break
		}
		acc += d
	}
	return p
}

// Progress reports where a timer is after elapsed. Count-up timers report
// their fraction against the target (or duration) and stay open-ended.
func (t *TimerSpec) Progress(elapsed time.Duration) TimerProgress {
	if t.Style == TimerMultiSegment && len(t.Segments) > 0 {
		durations := make([]int, len(t.Segments))
		for i, s := range t.Segments {
			durations[i] = s.DurationSeconds
		}
		return progressOver(durations, elapsed)
	}

	p := progressOver([]int{t.EffectiveDuration()}, elapsed)
	if t.Style == TimerCountup && p.Done {
		p.Done = false
		p.Remaining = 0
	}
	return p
}

func (s *SequenceSpec) Progress(elapsed time.Duration) TimerProgress {
	durations := make([]int, len(s.Steps))
	for i, step := range s.Steps {
		durations[i] = step.DurationSeconds
	}
	return progressOver(durations, elapsed)
}

// Progress dispatches to the timer or guided-sequence sub-state. Other kinds
// have no running clock and report false.
func (t HabitType) Progress(elapsed time.Duration) (TimerProgress, bool) {
	switch t.Kind {
	case KindTimer:
		if t.Timer == nil {
			return TimerProgress{}, false
		}
		return t.Timer.Progress(elapsed), true
	case KindGuidedSequence:
		if t.Sequence == nil {
			return TimerProgress{}, false
		}
		return t.Sequence.Progress(elapsed), true
	case KindTask, KindAction, KindCounter, KindMeasurement, KindConditional:
		return TimerProgress{}, false
	default:
		return TimerProgress{}, false
	}
}
