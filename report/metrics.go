package report

import (
	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// PERIOD METRICS - today / MTD / prior
// =============================================================================

// PeriodMetrics counts closed orders and their revenue per period.
type PeriodMetrics struct {
	TodayCnt int             `json:"today_cnt"`
	TodayRev decimal.Decimal `json:"today_rev"`
	MTDCnt   int             `json:"mtd_cnt"`
	MTDRev   decimal.Decimal `json:"mtd_rev"`
	PriorCnt int             `json:"prior_cnt"`
	PriorRev decimal.Decimal `json:"prior_rev"`
}

func zeroPeriod() PeriodMetrics {
	return PeriodMetrics{TodayRev: decimal.Zero, MTDRev: decimal.Zero, PriorRev: decimal.Zero}
}

// addCurrent applies a selected-month order closing on txDate.
func (m *PeriodMetrics) addCurrent(w calendar.Window, txDate calendar.Day, rev decimal.Decimal) {
	if w.MTD().Contains(txDate) {
		m.MTDCnt++
		m.MTDRev = m.MTDRev.Add(rev)
	}
	if w.IsToday(txDate) {
		m.TodayCnt++
		m.TodayRev = m.TodayRev.Add(rev)
	}
}

func (m *PeriodMetrics) addPrior(rev decimal.Decimal) {
	m.PriorCnt++
	m.PriorRev = m.PriorRev.Add(rev)
}

// Active is true when any period has a closed order. Revenue is ignored.
func (m PeriodMetrics) Active() bool {
	return m.TodayCnt > 0 || m.MTDCnt > 0 || m.PriorCnt > 0
}

func (m PeriodMetrics) rounded() PeriodMetrics {
	m.TodayRev = engine.Round2(m.TodayRev)
	m.MTDRev = engine.Round2(m.MTDRev)
	m.PriorRev = engine.Round2(m.PriorRev)
	return m
}

// RevenueTotals sums a person's revenue across categories.
type RevenueTotals struct {
	TodayRev decimal.Decimal `json:"today_rev"`
	MTDRev   decimal.Decimal `json:"mtd_rev"`
	PriorRev decimal.Decimal `json:"prior_rev"`
}

// ClosingStats is the closing ratio over the 4-month window.
type ClosingStats struct {
	Created4m    int `json:"created_4m"`
	Closed4m     int `json:"closed_4m"`
	ClosingRatio int `json:"closing_ratio"`
}

// =============================================================================
// DAILY METRICS - closed and open
// =============================================================================

// DailyMetrics is one cell of the Daily Revenue report.
type DailyMetrics struct {
	TodayClosed int             `json:"today_closed"`
	TodayRev    decimal.Decimal `json:"today_rev"`
	MTDClosed   int             `json:"mtd_closed"`
	MTDRev      decimal.Decimal `json:"mtd_rev"`
	PriorClosed int             `json:"prior_closed"`
	PriorRev    decimal.Decimal `json:"prior_rev"`
	TodayOpen   int             `json:"today_open"`
	MTDOpen     int             `json:"mtd_open"`
	PriorOpen   int             `json:"prior_open"`
}

func zeroDaily() DailyMetrics {
	return DailyMetrics{TodayRev: decimal.Zero, MTDRev: decimal.Zero, PriorRev: decimal.Zero}
}

func (m *DailyMetrics) add(o DailyMetrics) {
	m.TodayClosed += o.TodayClosed
	m.TodayRev = m.TodayRev.Add(o.TodayRev)
	m.MTDClosed += o.MTDClosed
	m.MTDRev = m.MTDRev.Add(o.MTDRev)
	m.PriorClosed += o.PriorClosed
	m.PriorRev = m.PriorRev.Add(o.PriorRev)
	m.TodayOpen += o.TodayOpen
	m.MTDOpen += o.MTDOpen
	m.PriorOpen += o.PriorOpen
}

func (m DailyMetrics) rounded() DailyMetrics {
	m.TodayRev = engine.Round2(m.TodayRev)
	m.MTDRev = engine.Round2(m.MTDRev)
	m.PriorRev = engine.Round2(m.PriorRev)
	return m
}

// =============================================================================
// PERSON TABLE - branch -> person -> category accumulation
// =============================================================================

// personEntry accumulates one person's metrics within one branch. Every
// category of the report is present from creation.
type personEntry struct {
	categories map[engine.Category]*PeriodMetrics
	totals     PeriodMetrics
}

// personTable is the mutable branch -> person tree used while scanning rows.
type personTable struct {
	categories []engine.Category
	branches   map[string]map[string]*personEntry
}

func newPersonTable(cats []engine.Category) *personTable {
	return &personTable{categories: cats, branches: make(map[string]map[string]*personEntry)}
}

func (t *personTable) entry(branch, person string) *personEntry {
	people, ok := t.branches[branch]
	if !ok {
		people = make(map[string]*personEntry)
		t.branches[branch] = people
	}
	e, ok := people[person]
	if !ok {
		e = &personEntry{categories: make(map[engine.Category]*PeriodMetrics, len(t.categories)), totals: zeroPeriod()}
		for _, c := range t.categories {
			m := zeroPeriod()
			e.categories[c] = &m
		}
		people[person] = e
	}
	return e
}

func (t *personTable) addCurrent(w calendar.Window, branch, person string, cat engine.Category, txDate calendar.Day, rev decimal.Decimal) {
	e := t.entry(branch, person)
	if m, ok := e.categories[cat]; ok {
		m.addCurrent(w, txDate, rev)
	}
	e.totals.addCurrent(w, txDate, rev)
}

func (t *personTable) addPrior(branch, person string, cat engine.Category, rev decimal.Decimal) {
	e := t.entry(branch, person)
	if m, ok := e.categories[cat]; ok {
		m.addPrior(rev)
	}
	e.totals.addPrior(rev)
}

// prune drops people with no closed order in any period, then empty
// branches.
func (t *personTable) prune() {
	for branch, people := range t.branches {
		for name, e := range people {
			if !e.totals.Active() {
				delete(people, name)
			}
		}
		if len(people) == 0 {
			delete(t.branches, branch)
		}
	}
}
