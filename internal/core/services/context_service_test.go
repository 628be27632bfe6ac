package services_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextService_Resolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "utc-user", "rome-user")
	require.NoError(t, f.users.UpdateTimezone(ctx, "rome-user", "Europe/Rome"))

	tests := []struct {
		name   string
		userID string
		at     time.Time
		want   domain.Context
	}{
		{
			name:   "UTC user before dawn",
			userID: "utc-user",
			at:     time.Date(2026, 3, 9, 4, 30, 0, 0, time.UTC),
			want:   domain.Context{TimeSlot: domain.SlotNight, DayCategory: domain.DayWeekday, LocationCategory: domain.LocationUnknown},
		},
		{
			name:   "Rome user is already in the morning",
			userID: "rome-user",
			at:     time.Date(2026, 3, 9, 4, 30, 0, 0, time.UTC),
			want:   domain.Context{TimeSlot: domain.SlotMorning, DayCategory: domain.DayWeekday, LocationCategory: domain.LocationUnknown},
		},
		{
			name:   "Friday night in UTC is Saturday in Rome",
			userID: "rome-user",
			at:     time.Date(2026, 3, 6, 23, 30, 0, 0, time.UTC),
			want:   domain.Context{TimeSlot: domain.SlotNight, DayCategory: domain.DayWeekend, LocationCategory: domain.LocationUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.contextSvc.Resolve(ctx, services.ResolveInput{UserID: tt.userID, At: tt.at})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Error: Unknown user", func(t *testing.T) {
		_, err := f.contextSvc.Resolve(ctx, services.ResolveInput{UserID: "ghost", At: monday0730})
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestContextService_Settings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")

	t.Run("Success: Defaults until the user saves settings", func(t *testing.T) {
		settings, err := f.contextSvc.GetSettings(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, settings.TimeSlots, 4)
		assert.Empty(t, settings.Locations)
	})

	t.Run("Success: Saved locations drive resolution", func(t *testing.T) {
		home := domain.Location{ID: "home", Name: "Home", Category: domain.LocationHome, Coordinate: domain.Coordinate{Latitude: 45.46, Longitude: 9.19}, RadiusMeters: 150}

		saved, err := f.contextSvc.UpdateSettings(ctx, "u1", domain.ContextSettings{
			TimeSlots: domain.DefaultTimeSlots(),
			Locations: []domain.Location{home},
		})
		require.NoError(t, err)
		assert.Len(t, saved.DayCategories, 7, "missing day map is filled with the default split")

		got, err := f.contextSvc.Resolve(ctx, services.ResolveInput{UserID: "u1", At: monday0730, Location: &home.Coordinate})
		require.NoError(t, err)
		assert.Equal(t, domain.LocationHome, got.LocationCategory)
	})

	t.Run("Error: Invalid settings are not stored", func(t *testing.T) {
		_, err := f.contextSvc.UpdateSettings(ctx, "u1", domain.ContextSettings{
			TimeSlots: []domain.TimeSlot{{ID: "a"}, {ID: "a"}},
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateTimeSlot)

		settings, err := f.contextSvc.GetSettings(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, settings.Locations, 1)
	})
}
