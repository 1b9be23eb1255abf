package calendar_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
)

func TestCountWorkingDays_January2026(t *testing.T) {
	start := calendar.NewDay(2026, time.January, 1)
	end := calendar.NewDay(2026, time.January, 31)

	assert.Equal(t, 22, calendar.CountWorkingDays(start, end))
}

func TestCountWorkingDays_InclusiveEndpoints(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{"single weekday", "2026-02-10", "2026-02-10", 1},
		{"single saturday", "2026-02-14", "2026-02-14", 0},
		{"mon to fri", "2026-02-09", "2026-02-13", 5},
		{"full week", "2026-02-09", "2026-02-15", 5},
		{"end before start", "2026-02-10", "2026-02-09", 0},
		{"february 2026", "2026-02-01", "2026-02-28", 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calendar.CountWorkingDays(calendar.MustParseDay(tt.start), calendar.MustParseDay(tt.end))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYearMonth_PrevAcrossYearBoundary(t *testing.T) {
	jan, err := calendar.NewYearMonth(1, 2026)
	require.NoError(t, err)

	assert.Equal(t, "2025-12", jan.Prev().String())
	assert.Equal(t, "2025-10", jan.AddMonths(-3).String())
	assert.Equal(t, "December 2025", jan.Prev().Label())
}

func TestYearMonth_Invalid(t *testing.T) {
	_, err := calendar.NewYearMonth(13, 2026)
	assert.Error(t, err)
	_, err = calendar.NewYearMonth(0, 2026)
	assert.Error(t, err)
	_, err = calendar.ParseYearMonth("2026-2")
	assert.Error(t, err)
}

func TestMonthsBetween(t *testing.T) {
	from, _ := calendar.ParseYearMonth("2025-11")
	to, _ := calendar.ParseYearMonth("2026-02")

	months := calendar.MonthsBetween(from, to)
	require.Len(t, months, 4)
	assert.Equal(t, "2025-11", months[0].String())
	assert.Equal(t, "2026-02", months[3].String())
	assert.Empty(t, calendar.MonthsBetween(to, from))
}

func TestComputeWindow_CurrentMonth(t *testing.T) {
	// GIVEN: now is Wednesday 2026-02-18 at 09:30
	now := time.Date(2026, time.February, 18, 9, 30, 0, 0, time.UTC)

	// WHEN: the window for February 2026 is computed
	w, err := calendar.ComputeWindow(2, 2026, now)
	require.NoError(t, err)

	// THEN: today is yesterday and MTD stops there
	assert.True(t, w.IsCurrentMonth)
	assert.Equal(t, "2026-02-17", w.Yesterday.String())
	assert.Equal(t, "2026-02-01", w.MTDStart.String())
	assert.Equal(t, "2026-02-17", w.MTDEnd.String())
	assert.Equal(t, "2026-01-01", w.PriorStart.String())
	assert.Equal(t, "2026-01-31", w.PriorEnd.String())
	assert.Equal(t, "2025-11-01", w.ClosingRatioStart.String())
	assert.Equal(t, "2026-02-17", w.ClosingRatioEnd.String())
	assert.Equal(t, 12, w.WorkedDays)
	assert.Equal(t, 20, w.TotalWorkingDays)
	assert.Equal(t, 8, w.RemainingWorkingDays)
	assert.Equal(t, "February 2026", w.SelectedMonthLabel)
	assert.Equal(t, "January 2026", w.PriorMonthLabel)
}

func TestComputeWindow_PastMonthRunsToMonthEnd(t *testing.T) {
	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

	w, err := calendar.ComputeWindow(1, 2026, now)
	require.NoError(t, err)

	assert.False(t, w.IsCurrentMonth)
	assert.Equal(t, "2026-01-31", w.MTDEnd.String())
	assert.Equal(t, "2025-12-01", w.PriorStart.String())
	assert.Equal(t, "2025-10-01", w.ClosingRatioStart.String())
	assert.Equal(t, 22, w.WorkedDays)
	assert.Equal(t, 0, w.RemainingWorkingDays)
	assert.False(t, w.IsToday(w.Yesterday), "past months have no today")
}

func TestComputeWindow_FirstOfMonthHasNoWorkedDays(t *testing.T) {
	// GIVEN: the report is requested on the 1st
	now := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)

	w, err := calendar.ComputeWindow(6, 2026, now)
	require.NoError(t, err)

	// THEN: yesterday lies in the previous month and nothing has been worked
	assert.Equal(t, "2026-05-31", w.Yesterday.String())
	assert.Equal(t, 0, w.WorkedDays)
	assert.Equal(t, w.TotalWorkingDays, w.RemainingWorkingDays)
}

func TestWindow_JSONShape(t *testing.T) {
	now := time.Date(2026, time.February, 18, 0, 0, 0, 0, time.UTC)
	w, err := calendar.ComputeWindow(2, 2026, now)
	require.NoError(t, err)

	b, err := json.Marshal(w)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "2026-02", decoded["month"])
	assert.Equal(t, "2026-02-17", decoded["yesterday"])
	assert.Equal(t, float64(12), decoded["worked_days"])
}

func TestParseDay_TruncatesTimestamp(t *testing.T) {
	d, err := calendar.ParseDay("2026-02-10T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10", d.String())

	_, err = calendar.ParseDay("not-a-date")
	assert.Error(t, err)
}

func TestYearMonth_JSONRoundTrip(t *testing.T) {
	var got struct {
		Month calendar.YearMonth `json:"month"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"month":"2026-02"}`), &got))
	assert.Equal(t, calendar.YearMonth{Year: 2026, Month: time.February}, got.Month)

	assert.Error(t, json.Unmarshal([]byte(`{"month":"2026-13"}`), &got))
}
