package domain

import "time"

type RoutineStatsReport struct {
	From          string         `json:"from"`
	To            string         `json:"to"`
	TotalSessions int            `json:"total_sessions"`
	OverallRate   float64        `json:"overall_completion_rate"`
	Routines      []RoutineStats `json:"routines"`
}

type RoutineStats struct {
	RoutineID        string  `json:"routine_id"`
	RoutineName      string  `json:"routine_name"`
	Started          int     `json:"sessions_started"`
	Completed        int     `json:"sessions_completed"`
	Cancelled        int     `json:"sessions_cancelled"`
	CompletionRate   float64 `json:"completion_rate"`
	AverageSeconds   int     `json:"average_duration_seconds"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	MostSkippedHabit string  `json:"most_skipped_habit,omitempty"`
	MostSkippedCount int     `json:"most_skipped_count,omitempty"`
	HabitsCompleted  int     `json:"habits_completed"`
	HabitsSkipped    int     `json:"habits_skipped"`
}

type StatsInput struct {
	UserID   string
	From     time.Time
	To       time.Time
	Location *time.Location
}
