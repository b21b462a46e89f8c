package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapback/snapback2/internal/usecase/schedule"
)

func TestThreshold_FloorDominates(t *testing.T) {
	// H=4: floor = (24/4 - 0.5)*3600 = 5.5h = 19800s.
	got := schedule.Threshold(4, 5*time.Minute)
	require.Equal(t, 19800*time.Second, got)
}

func TestThreshold_MustExceedDominates(t *testing.T) {
	got := schedule.Threshold(4, 20*time.Hour)
	require.Equal(t, 20*time.Hour, got)
}

func TestDue_GateSkip(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	slot0 := now.Add(-30 * time.Minute)
	due := schedule.Due(4, slot0, now, 5*time.Minute, false, true)
	require.False(t, due, "30 minutes old with a 5.5h floor must be skipped")
}

func TestDue_ForceBypassesGate(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	slot0 := now.Add(-1 * time.Minute)
	require.True(t, schedule.Due(4, slot0, now, 5*time.Minute, true, true))
}

func TestDue_AutoTimeOffBypassesGate(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	slot0 := now.Add(-1 * time.Minute)
	require.True(t, schedule.Due(4, slot0, now, 5*time.Minute, false, false))
}

func TestDue_MissingSlotAlwaysProceeds(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	require.True(t, schedule.Due(4, time.Time{}, now, 5*time.Minute, false, true))
}

func TestDue_PropertyForAllH(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	for h := uint(1); h <= 24; h++ {
		floor := schedule.Threshold(h, 0)
		justUnder := now.Add(-floor + time.Second)
		justOver := now.Add(-floor - time.Second)
		require.False(t, schedule.Due(h, justUnder, now, 0, false, true), "h=%d just under floor must skip", h)
		require.True(t, schedule.Due(h, justOver, now, 0, false, true), "h=%d just over floor must proceed", h)
	}
}
