package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapback/snapback2/internal/usecase/calendar"
)

func TestEvaluate_SameDayNoPromotion(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC) // Thursday
	slot0 := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	flags := calendar.Evaluate(slot0, now)
	require.False(t, flags.DoDailies)
	require.False(t, flags.DoWeeklies)
	require.False(t, flags.DoMonthlies)
}

func TestEvaluate_NewDayTriggersDaily(t *testing.T) {
	now := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	slot0 := time.Date(2026, 7, 29, 22, 0, 0, 0, time.UTC)
	flags := calendar.Evaluate(slot0, now)
	require.True(t, flags.DoDailies)
}

func TestEvaluate_MissingSlotAlwaysDaily(t *testing.T) {
	now := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	flags := calendar.Evaluate(time.Time{}, now)
	require.True(t, flags.DoDailies)
}

func TestEvaluate_FirstOfMonthTriggersMonthly(t *testing.T) {
	now := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	slot0 := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	flags := calendar.Evaluate(slot0, now)
	require.True(t, flags.DoMonthlies)
	require.True(t, flags.DoDailies)
}

func TestEvaluate_SundayTriggersWeekly(t *testing.T) {
	// 2026-08-02 is a Sunday.
	now := time.Date(2026, 8, 2, 2, 0, 0, 0, time.UTC)
	slot0 := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	flags := calendar.Evaluate(slot0, now)
	require.True(t, flags.DoWeeklies)
}

func TestEvaluate_WeeklyAndMonthlyImplyDaily(t *testing.T) {
	for day := 1; day <= 28; day++ {
		now := time.Date(2026, 8, day, 2, 0, 0, 0, time.UTC)
		slot0 := now.AddDate(0, 0, -1)
		flags := calendar.Evaluate(slot0, now)
		if flags.DoWeeklies {
			require.True(t, flags.DoDailies, "day %d: weekly must imply daily", day)
		}
		if flags.DoMonthlies {
			require.True(t, flags.DoDailies, "day %d: monthly must imply daily", day)
		}
	}
}

func TestEvaluate_SameYearDayDifferentYear(t *testing.T) {
	now := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	slot0 := time.Date(2025, 7, 30, 2, 0, 0, 0, time.UTC)
	flags := calendar.Evaluate(slot0, now)
	require.True(t, flags.DoDailies)
}
