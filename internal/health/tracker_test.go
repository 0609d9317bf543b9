package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestReportClassifiesByRecency(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(Thresholds{OKWithin: 5 * time.Second, WarnWithin: 30 * time.Second}, WithClock(clock))

	tracker.Touch("safe-001", clock.now)

	report := tracker.Report("safe-001")
	require.Equal(t, StatusOK, report.Status)
	require.Equal(t, clock.now, report.LastHeartbeat)

	clock.now = clock.now.Add(10 * time.Second)
	require.Equal(t, StatusWarn, tracker.Report("safe-001").Status)

	clock.now = clock.now.Add(30 * time.Second)
	require.Equal(t, StatusError, tracker.Report("safe-001").Status)
}

func TestReportUnseenDeviceIsWarn(t *testing.T) {
	tracker := NewTracker(DefaultThresholds)
	report := tracker.Report("safe-404")
	require.Equal(t, StatusWarn, report.Status)
	require.True(t, report.LastHeartbeat.IsZero())
}

func TestTouchIsMonotonicPerDevice(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(DefaultThresholds, WithClock(clock))

	newer := clock.now
	older := clock.now.Add(-time.Minute)

	tracker.Touch("safe-001", newer)
	tracker.Touch("safe-001", older) // late-arriving message must not roll back

	seen, ok := tracker.LastSeen("safe-001")
	require.True(t, ok)
	require.Equal(t, newer, seen)
}

func TestTouchWithZeroTimeUsesClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(DefaultThresholds, WithClock(clock))

	tracker.Touch("safe-001", time.Time{})

	seen, ok := tracker.LastSeen("safe-001")
	require.True(t, ok)
	require.Equal(t, clock.now, seen)
}

func TestBoundaryAgesAreInclusive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(Thresholds{OKWithin: 5 * time.Second, WarnWithin: 30 * time.Second}, WithClock(clock))

	tracker.Touch("safe-001", clock.now)

	clock.now = clock.now.Add(5 * time.Second)
	require.Equal(t, StatusOK, tracker.Report("safe-001").Status)

	clock.now = clock.now.Add(25 * time.Second)
	require.Equal(t, StatusWarn, tracker.Report("safe-001").Status)

	clock.now = clock.now.Add(time.Nanosecond)
	require.Equal(t, StatusError, tracker.Report("safe-001").Status)
}

func TestNewTrackerRepairsDegenerateThresholds(t *testing.T) {
	tracker := NewTracker(Thresholds{OKWithin: 10 * time.Second, WarnWithin: 2 * time.Second})
	require.Greater(t, tracker.thresholds.WarnWithin, tracker.thresholds.OKWithin)
}
