package calendar

import "time"

// =============================================================================
// DATE WINDOW - Per-request report dates
// =============================================================================

// Window holds every date boundary a report needs for one selected month.
// It is recomputed on each request and never persisted.
//
// Data lags the production system by one day, so "today" in every report is
// the day before now.
type Window struct {
	Month YearMonth `json:"month"`
	Prior YearMonth `json:"prior_month"`

	IsCurrentMonth bool `json:"is_current_month"`
	Yesterday      Day  `json:"yesterday"`

	MTDStart Day `json:"mtd_start"`
	MTDEnd   Day `json:"mtd_end"`

	PriorStart Day `json:"prior_start"`
	PriorEnd   Day `json:"prior_end"`

	ClosingRatioStart Day `json:"closing_ratio_start"`
	ClosingRatioEnd   Day `json:"closing_ratio_end"`

	WorkedDays           int `json:"worked_days"`
	TotalWorkingDays     int `json:"total_working_days"`
	RemainingWorkingDays int `json:"remaining_working_days"`

	SelectedMonthLabel string `json:"selected_month_label"`
	PriorMonthLabel    string `json:"prior_month_label"`
}

// ClosingRatioMonths is how many months before the selected month the
// closing-ratio window reaches back.
const ClosingRatioMonths = 3

// ComputeWindow derives the window for (month, year) as seen at now. It reads
// no clock of its own.
func ComputeWindow(month, year int, now time.Time) (Window, error) {
	selected, err := NewYearMonth(month, year)
	if err != nil {
		return Window{}, err
	}
	return WindowFor(selected, now), nil
}

// WindowFor is ComputeWindow for an already validated month.
func WindowFor(selected YearMonth, now time.Time) Window {
	today := DayOf(now)
	yesterday := today.AddDays(-1)
	isCurrent := selected.Equal(today.YearMonth())

	mtdStart := selected.First()
	mtdEnd := selected.Last()
	if isCurrent {
		mtdEnd = yesterday
	}

	prior := selected.Prev()
	worked := CountWorkingDays(mtdStart, mtdEnd)
	total := CountWorkingDays(mtdStart, selected.Last())

	return Window{
		Month:                selected,
		Prior:                prior,
		IsCurrentMonth:       isCurrent,
		Yesterday:            yesterday,
		MTDStart:             mtdStart,
		MTDEnd:               mtdEnd,
		PriorStart:           prior.First(),
		PriorEnd:             prior.Last(),
		ClosingRatioStart:    selected.AddMonths(-ClosingRatioMonths).First(),
		ClosingRatioEnd:      mtdEnd,
		WorkedDays:           worked,
		TotalWorkingDays:     total,
		RemainingWorkingDays: total - worked,
		SelectedMonthLabel:   selected.Label(),
		PriorMonthLabel:      prior.Label(),
	}
}

// MTD returns the month-to-date period.
func (w Window) MTD() Period { return Period{Start: w.MTDStart, End: w.MTDEnd} }

// ClosingRatio returns the closing-ratio period.
func (w Window) ClosingRatio() Period {
	return Period{Start: w.ClosingRatioStart, End: w.ClosingRatioEnd}
}

// IsToday reports whether d is the report's "today". Only the current month
// has a today.
func (w Window) IsToday(d Day) bool {
	return w.IsCurrentMonth && d.Equal(w.Yesterday)
}
