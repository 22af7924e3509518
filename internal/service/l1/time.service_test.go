package l1_service

import (
	"testing"
	"time"

	"agentbacktest/internal/util"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestTimeManager(t *testing.T) {
	t.Run("skips weekends and starts on first trading day", func(t *testing.T) {
		// 2024-01-06 is a Saturday
		tm, err := NewTimeManager(util.NewDate(2024, 1, 6), util.NewDate(2024, 1, 12), time.UTC, nil)
		require.NoError(t, err)

		expected := []time.Time{
			util.NewDate(2024, 1, 8),
			util.NewDate(2024, 1, 9),
			util.NewDate(2024, 1, 10),
			util.NewDate(2024, 1, 11),
			util.NewDate(2024, 1, 12),
		}
		require.Equal(t, "", cmp.Diff(expected, tm.TradingDays()))
		require.Equal(t, TimeNotStarted, tm.State())
		require.Equal(t, util.NewDate(2024, 1, 8), tm.CurrentDate())
		require.Equal(t, 0.0, tm.Progress())

		days := []time.Time{tm.CurrentDate()}
		for {
			d, ok := tm.Next()
			if !ok {
				break
			}
			days = append(days, d)
		}
		require.Equal(t, "", cmp.Diff(expected, days))
		require.Equal(t, TimeExhausted, tm.State())
		require.False(t, tm.HasNext())
		require.Equal(t, 1.0, tm.Progress())

		_, ok := tm.Next()
		require.False(t, ok)
		require.Equal(t, util.NewDate(2024, 1, 12), tm.CurrentDate())
	})

	t.Run("strictly increasing without weekends", func(t *testing.T) {
		tm, err := NewTimeManager(util.NewDate(2023, 1, 1), util.NewDate(2023, 12, 31), time.UTC, nil)
		require.NoError(t, err)
		days := tm.TradingDays()
		require.Len(t, days, 260)
		for i, d := range days {
			require.False(t, util.IsWeekend(d))
			if i > 0 {
				require.True(t, d.After(days[i-1]))
			}
		}
	})

	t.Run("holiday calendar", func(t *testing.T) {
		cal := NewHolidayCalendar(WeekdayCalendar{}, []time.Time{util.NewDate(2024, 1, 1)})
		tm, err := NewTimeManager(util.NewDate(2024, 1, 1), util.NewDate(2024, 1, 3), time.UTC, cal)
		require.NoError(t, err)
		require.Equal(t, util.NewDate(2024, 1, 2), tm.CurrentDate())
		require.Equal(t, 2, tm.TotalDays())
	})

	t.Run("weekend only range is exhausted", func(t *testing.T) {
		tm, err := NewTimeManager(util.NewDate(2024, 1, 6), util.NewDate(2024, 1, 7), time.UTC, nil)
		require.NoError(t, err)
		require.False(t, tm.HasNext())
		require.Equal(t, TimeExhausted, tm.State())
		require.Equal(t, 0.0, tm.Progress())
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := NewTimeManager(util.NewDate(2024, 1, 7), util.NewDate(2024, 1, 6), time.UTC, nil)
		require.Error(t, err)
	})
}
