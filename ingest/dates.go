package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/titledesk/production-reports/calendar"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01-02-06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// parseDate normalises the date shapes the production system and its
// spreadsheets emit: ISO dates and timestamps, US-style dates, and Excel
// serial day numbers. Anything else is nil.
func parseDate(s string) *calendar.Day {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if !(serial >= 1 && serial <= 2958465) {
			return nil
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil
		}
		d := calendar.DayOf(t)
		return &d
	}

	// ISO timestamps: the calendar day is the leading YYYY-MM-DD.
	if len(s) > 10 && s[4] == '-' && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := calendar.DayOf(t)
			return &d
		}
	}
	return nil
}
