package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound      = errors.New("routine template not found")
	ErrTemplateConflict      = errors.New("routine template version conflict")
	ErrTemplateNameEmpty     = errors.New("routine name cannot be empty")
	ErrTemplateNameTooLong   = errors.New("routine name is too long (max 100 chars)")
	ErrTemplateInvalidUserID = errors.New("invalid user id")
	ErrDuplicateHabitID      = errors.New("duplicate habit id in routine")
	ErrDuplicateHabitOrder   = errors.New("duplicate habit order in the same scope")
	ErrConditionalTooDeep    = errors.New("conditional habits are nested too deeply")
	ErrInvalidPriority       = errors.New("rule priority cannot be negative")
)

const (
	MaxTemplateNameLen = 100

	// MaxConditionalDepth bounds conditional-inside-conditional nesting.
	MaxConditionalDepth = 4

	DefaultRulePriority = 1
)

// ContextRule restricts when a template is picked automatically. An empty
// dimension matches anything.
type ContextRule struct {
	Enabled            bool     `json:"enabled"`
	TimeSlots          []string `json:"time_slots"`
	DayCategories      []string `json:"day_categories"`
	LocationCategories []string `json:"location_categories"`
	Priority           int      `json:"priority"`
}

func (r ContextRule) EffectivePriority() int {
	if r.Priority == 0 {
		return DefaultRulePriority
	}
	return r.Priority
}

type RoutineTemplate struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Habits      []Habit      `json:"habits"`
	ContextRule *ContextRule `json:"context_rule,omitempty"`
	IsDefault   bool         `json:"is_default"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
	Version     int          `json:"version"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func normalizeRule(rule *ContextRule) (*ContextRule, error) {
	if rule == nil {
		return nil, nil
	}
	if rule.Priority < 0 {
		return nil, ErrInvalidPriority
	}
	return &ContextRule{
		Enabled:            rule.Enabled,
		TimeSlots:          normalizeSet(rule.TimeSlots),
		DayCategories:      normalizeSet(rule.DayCategories),
		LocationCategories: normalizeSet(rule.LocationCategories),
		Priority:           rule.EffectivePriority(),
	}, nil
}

func validateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrTemplateNameEmpty
	}
	if len(trimmed) > MaxTemplateNameLen {
		return "", ErrTemplateNameTooLong
	}
	return trimmed, nil
}

// ValidateHabits checks a habit tree the way the routine builder does:
// unique ids across the whole tree, unique order per scope, bounded nesting.
func ValidateHabits(habits []Habit) error {
	return validateScope(habits, 1, make(map[string]bool))
}

func validateScope(habits []Habit, depth int, ids map[string]bool) error {
	orders := make(map[int]bool, len(habits))
	for _, h := range habits {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("habit %q: %w", h.ID, err)
		}
		if ids[h.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateHabitID, h.ID)
		}
		ids[h.ID] = true

		if orders[h.Order] {
			return fmt.Errorf("%w: %d", ErrDuplicateHabitOrder, h.Order)
		}
		orders[h.Order] = true

		if !h.IsConditional() {
			continue
		}
		if depth > MaxConditionalDepth {
			return ErrConditionalTooDeep
		}
		for _, o := range h.Type.Conditional.Options {
			if err := validateScope(o.FollowUp, depth+1, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func NewRoutineTemplate(userID, name string, habits []Habit, rule *ContextRule, isDefault bool) (*RoutineTemplate, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrTemplateInvalidUserID
	}

	cleanName, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateHabits(habits); err != nil {
		return nil, err
	}
	cleanRule, err := normalizeRule(rule)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &RoutineTemplate{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        cleanName,
		Habits:      sortedByOrder(habits),
		ContextRule: cleanRule,
		IsDefault:   isDefault,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (t *RoutineTemplate) Update(name string, habits []Habit, rule *ContextRule, isDefault bool) error {
	cleanName, err := validateName(name)
	if err != nil {
		return err
	}
	if err := ValidateHabits(habits); err != nil {
		return err
	}
	cleanRule, err := normalizeRule(rule)
	if err != nil {
		return err
	}

	t.Name = cleanName
	t.Habits = sortedByOrder(habits)
	t.ContextRule = cleanRule
	t.IsDefault = isDefault
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *RoutineTemplate) MarkUsed(at time.Time) {
	used := at.UTC()
	t.LastUsedAt = &used
}

// ActiveHabits returns the top-level habits with IsActive set, ordered by Order.
func (t *RoutineTemplate) ActiveHabits() []Habit {
	return activeSorted(t.Habits)
}

func (t *RoutineTemplate) EstimatedDuration() time.Duration {
	var total time.Duration
	for _, h := range t.ActiveHabits() {
		total += h.EstimatedDuration()
	}
	return total
}

func sortedByOrder(habits []Habit) []Habit {
	out := make([]Habit, len(habits))
	copy(out, habits)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

func activeSorted(habits []Habit) []Habit {
	var out []Habit
	for _, h := range sortedByOrder(habits) {
		if h.IsActive {
			out = append(out, h)
		}
	}
	return out
}
