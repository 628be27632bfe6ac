package domain_test

import (
	"testing"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestCalculateStreaks(t *testing.T) {
	today := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	daysAgo := func(n int) time.Time {
		return today.AddDate(0, 0, -n)
	}

	tests := []struct {
		name        string
		dates       []time.Time
		wantCurrent int
		wantLongest int
	}{
		{
			name:        "Empty dates",
			dates:       []time.Time{},
			wantCurrent: 0,
			wantLongest: 0,
		},
		{
			name:        "Single session today",
			dates:       []time.Time{today},
			wantCurrent: 1,
			wantLongest: 1,
		},
		{
			name:        "Single session yesterday (Streak still alive)",
			dates:       []time.Time{daysAgo(1)},
			wantCurrent: 1,
			wantLongest: 1,
		},
		{
			name:        "Single session 2 days ago (Streak broken)",
			dates:       []time.Time{daysAgo(2)},
			wantCurrent: 0,
			wantLongest: 1,
		},
		{
			name:        "Perfect streak",
			dates:       []time.Time{today, daysAgo(1), daysAgo(2)},
			wantCurrent: 3,
			wantLongest: 3,
		},
		{
			name:        "Gap breaks the current streak",
			dates:       []time.Time{today, daysAgo(1), daysAgo(4)},
			wantCurrent: 2,
			wantLongest: 2,
		},
		{
			name:        "Longest streak in the past",
			dates:       []time.Time{today, daysAgo(10), daysAgo(11), daysAgo(12)},
			wantCurrent: 1,
			wantLongest: 3,
		},
		{
			name:        "Unsorted dates",
			dates:       []time.Time{daysAgo(2), today, daysAgo(1)},
			wantCurrent: 3,
			wantLongest: 3,
		},
		{
			name:        "Two sessions on the same day count once",
			dates:       []time.Time{today, today.Add(1 * time.Hour), daysAgo(1)},
			wantCurrent: 2,
			wantLongest: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCurrent, gotLongest := domain.CalculateStreaks(tt.dates, today)
			assert.Equal(t, tt.wantCurrent, gotCurrent, "Current Streak mismatch")
			assert.Equal(t, tt.wantLongest, gotLongest, "Longest Streak mismatch")
		})
	}
}
