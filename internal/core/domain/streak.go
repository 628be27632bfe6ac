package domain

import (
	"sort"
	"time"
)

// CalculateStreaks returns the current and longest runs of consecutive days
// found in dates. The current run stays alive if its last day is today or
// yesterday.
func CalculateStreaks(dates []time.Time, today time.Time) (int, int) {
	if len(dates) == 0 {
		return 0, 0
	}

	uniqueDays := make(map[string]bool)
	var sortedDates []time.Time

	for _, d := range dates {
		dateKey := d.Format("2006-01-02")
		if !uniqueDays[dateKey] {
			uniqueDays[dateKey] = true
			t, _ := time.Parse("2006-01-02", dateKey)
			sortedDates = append(sortedDates, t)
		}
	}

	sort.Slice(sortedDates, func(i, j int) bool {
		return sortedDates[i].After(sortedDates[j])
	})

	todayKey, _ := time.Parse("2006-01-02", today.Format("2006-01-02"))

	currentStreak := 0
	diff := todayKey.Sub(sortedDates[0]).Hours() / 24

	if diff >= 0 && diff <= 1 {
		currentStreak = 1
		for i := 0; i < len(sortedDates)-1; i++ {
			if sortedDates[i].Sub(sortedDates[i+1]).Hours() == 24 {
				currentStreak++
			} else {
				break
			}
		}
	}

	longestStreak := 0
	tempStreak := 1

	for i := 0; i < len(sortedDates)-1; i++ {
		if sortedDates[i].Sub(sortedDates[i+1]).Hours() == 24 {
			tempStreak++
		} else {
			if tempStreak > longestStreak {
				longestStreak = tempStreak
			}
			tempStreak = 1
		}
	}
	if tempStreak > longestStreak {
		longestStreak = tempStreak
	}

	return currentStreak, longestStreak
}
