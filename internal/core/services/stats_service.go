package services

import (
	"context"
	"sort"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

type StatsService struct {
	sessions domain.SessionRepository
	now      func() time.Time
}

func NewStatsService(sessions domain.SessionRepository) *StatsService {
	return &StatsService{
		sessions: sessions,
		now:      time.Now,
	}
}

func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

type routineAccumulator struct {
	stats        domain.RoutineStats
	totalSeconds time.Duration
	dates        []time.Time
	skips        map[string]int
}

// GetRoutineStats aggregates persisted sessions started in [From, To] per
// routine. Streaks count calendar days, in input.Location, with at least one
// completed session.
func (s *StatsService) GetRoutineStats(ctx context.Context, input domain.StatsInput) (*domain.RoutineStatsReport, error) {
	loc := input.Location
	if loc == nil {
		loc = time.UTC
	}

	from := startOfDay(input.From, loc)
	to := startOfDay(input.To, loc).AddDate(0, 0, 1)

	records, err := s.sessions.ListByUser(ctx, input.UserID, from, to)
	if err != nil {
		return nil, err
	}

	byRoutine := make(map[string]*routineAccumulator)
	report := &domain.RoutineStatsReport{
		From:     from.Format("2006-01-02"),
		To:       startOfDay(input.To, loc).Format("2006-01-02"),
		Routines: make([]domain.RoutineStats, 0),
	}
	totalCompleted := 0

	for _, r := range records {
		acc, ok := byRoutine[r.RoutineID]
		if !ok {
			acc = &routineAccumulator{
				stats: domain.RoutineStats{RoutineID: r.RoutineID, RoutineName: r.RoutineName},
				skips: make(map[string]int),
			}
			byRoutine[r.RoutineID] = acc
		}

		acc.stats.Started++
		report.TotalSessions++

		switch r.Status {
		case domain.SessionCompleted:
			acc.stats.Completed++
			totalCompleted++
			acc.totalSeconds += r.Duration()
			if r.CompletedAt != nil {
				acc.dates = append(acc.dates, r.CompletedAt.In(loc))
			}
		case domain.SessionCancelled:
			acc.stats.Cancelled++
		}

		for _, c := range r.Completions {
			if c.HabitID == domain.CancelledHabitID {
				continue
			}
			if c.WasSkipped {
				acc.stats.HabitsSkipped++
				acc.skips[c.HabitName]++
			} else {
				acc.stats.HabitsCompleted++
			}
		}
	}

	today := s.now().In(loc)
	for _, acc := range byRoutine {
		st := acc.stats
		if st.Started > 0 {
			st.CompletionRate = float64(st.Completed) / float64(st.Started) * 100
		}
		if st.Completed > 0 {
			st.AverageSeconds = int(acc.totalSeconds / time.Duration(st.Completed) / time.Second)
		}
		st.CurrentStreak, st.LongestStreak = domain.CalculateStreaks(acc.dates, today)
		st.MostSkippedHabit, st.MostSkippedCount = mostSkipped(acc.skips)

		report.Routines = append(report.Routines, st)
	}

	sort.Slice(report.Routines, func(i, j int) bool {
		a, b := report.Routines[i], report.Routines[j]
		if a.RoutineName != b.RoutineName {
			return a.RoutineName < b.RoutineName
		}
		return a.RoutineID < b.RoutineID
	})

	if report.TotalSessions > 0 {
		report.OverallRate = float64(totalCompleted) / float64(report.TotalSessions) * 100
	}
	return report, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func mostSkipped(skips map[string]int) (string, int) {
	name, count := "", 0
	for habit, n := range skips {
		if n > count || (n == count && habit < name) {
			name, count = habit, n
		}
	}
	return name, count
}
