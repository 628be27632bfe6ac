package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidTimeOfDay  = errors.New("invalid time of day (must be HH:MM 24h)")
	ErrTimeSlotIDEmpty   = errors.New("time slot id cannot be empty")
	ErrDuplicateTimeSlot = errors.New("duplicate time slot id")
	ErrInvalidWeekday    = errors.New("invalid weekday (must be 0-6)")
	ErrDayCategoryEmpty  = errors.New("day category cannot be empty")
	ErrSettingsNotFound  = errors.New("context settings not found")
)

const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
	SlotEvening   = "evening"
	SlotNight     = "night"
	SlotUnknown   = "unknown"

	DayWeekday = "weekday"
	DayWeekend = "weekend"

	minutesPerDay = 24 * 60
)

var timeOfDayRegex = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayRegex.MatchString(s) {
		return 0, ErrInvalidTimeOfDay
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, ErrInvalidTimeOfDay
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeSlot covers [Start, End). A slot whose Start is after End wraps past
// midnight; Start == End covers the whole day.
type TimeSlot struct {
	ID    string    `json:"id" toml:"id"`
	Name  string    `json:"name" toml:"name"`
	Start TimeOfDay `json:"start" toml:"start"`
	End   TimeOfDay `json:"end" toml:"end"`
}

func (s TimeSlot) Contains(t TimeOfDay) bool {
	switch {
	case s.Start == s.End:
		return true
	case s.Start < s.End:
		return t >= s.Start && t < s.End
	default:
		return t >= s.Start || t < s.End
	}
}

type Context struct {
	TimeSlot         string `json:"time_slot"`
	DayCategory      string `json:"day_category"`
	LocationCategory string `json:"location_category"`
}

type ContextSettings struct {
	TimeSlots     []TimeSlot              `json:"time_slots"`
	DayCategories map[time.Weekday]string `json:"day_categories"`
	Locations     []Location              `json:"locations"`
}

func DefaultTimeSlots() []TimeSlot {
	return []TimeSlot{
		{ID: SlotMorning, Name: "Morning", Start: NewTimeOfDay(5, 0), End: NewTimeOfDay(12, 0)},
		{ID: SlotAfternoon, Name: "Afternoon", Start: NewTimeOfDay(12, 0), End: NewTimeOfDay(17, 0)},
		{ID: SlotEvening, Name: "Evening", Start: NewTimeOfDay(17, 0), End: NewTimeOfDay(21, 0)},
		{ID: SlotNight, Name: "Night", Start: NewTimeOfDay(21, 0), End: NewTimeOfDay(5, 0)},
	}
}

func DefaultDayCategories() map[time.Weekday]string {
	m := make(map[time.Weekday]string, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		m[d] = defaultDayCategory(d)
	}
	return m
}

func DefaultContextSettings() ContextSettings {
	return ContextSettings{
		TimeSlots:     DefaultTimeSlots(),
		DayCategories: DefaultDayCategories(),
		Locations:     []Location{},
	}
}

func defaultDayCategory(d time.Weekday) string {
	if d == time.Saturday || d == time.Sunday {
		return DayWeekend
	}
	return DayWeekday
}

func (cs ContextSettings) Validate() error {
	seen := make(map[string]bool, len(cs.TimeSlots))
	for _, s := range cs.TimeSlots {
		if strings.TrimSpace(s.ID) == "" {
			return ErrTimeSlotIDEmpty
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTimeSlot, s.ID)
		}
		seen[s.ID] = true
		if !s.Start.Valid() || !s.End.Valid() {
			return ErrInvalidTimeOfDay
		}
	}

	for day, category := range cs.DayCategories {
		if day < time.Sunday || day > time.Saturday {
			return ErrInvalidWeekday
		}
		if strings.TrimSpace(category) == "" {
			return ErrDayCategoryEmpty
		}
	}

	for _, l := range cs.Locations {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("location %q: %w", l.Name, err)
		}
	}
	return nil
}

// ContextResolver turns raw signals into a Context. It holds no mutable state
// and is safe for concurrent use.
type ContextResolver struct {
	settings ContextSettings
}

func NewContextResolver(settings ContextSettings) *ContextResolver {
	slots := make([]TimeSlot, len(settings.TimeSlots))
	copy(slots, settings.TimeSlots)

	days := make(map[time.Weekday]string, len(settings.DayCategories))
	for k, v := range settings.DayCategories {
		days[k] = v
	}

	locations := make([]Location, len(settings.Locations))
	copy(locations, settings.Locations)

	return &ContextResolver{
		settings: ContextSettings{TimeSlots: slots, DayCategories: days, Locations: locations},
	}
}

func (r *ContextResolver) Resolve(now time.Time, weekday time.Weekday, lastLocation *Coordinate) Context {
	return Context{
		TimeSlot:         r.TimeSlotAt(TimeOfDayOf(now)),
		DayCategory:      r.DayCategoryFor(weekday),
		LocationCategory: r.LocationCategoryAt(lastLocation),
	}
}

// TimeSlotAt returns the first configured slot containing t. When nothing
// matches it falls back to the first configured slot.
func (r *ContextResolver) TimeSlotAt(t TimeOfDay) string {
	if len(r.settings.TimeSlots) == 0 {
		return SlotUnknown
	}
	for _, s := range r.settings.TimeSlots {
		if s.Contains(t) {
			return s.ID
		}
	}
	return r.settings.TimeSlots[0].ID
}

func (r *ContextResolver) DayCategoryFor(d time.Weekday) string {
	if category, ok := r.settings.DayCategories[d]; ok && category != "" {
		return category
	}
	return defaultDayCategory(d)
}

// LocationCategoryAt walks saved locations in stored order and returns the
// category of the first geofence containing p. It is a first-match policy,
// not nearest-match.
func (r *ContextResolver) LocationCategoryAt(p *Coordinate) string {
	if p == nil || p.Validate() != nil {
		return LocationUnknown
	}
	for _, l := range r.settings.Locations {
		if l.Contains(*p) {
			return l.category()
		}
	}
	return LocationUnknown
}
