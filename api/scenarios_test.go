/*
scenarios_test.go - Tests for demo datasets

Tests for:
- Scenario listing and selection
- Generated data shape (dates, volumes, directory)
- Loading through the import service into reports and the discrepancy battery
*/
package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/discrepancy"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/ingest"
	"github.com/titledesk/production-reports/report"
	"github.com/titledesk/production-reports/store/sqlstore"
)

// =============================================================================
// GENERATOR
// =============================================================================

func TestGenerate_SteadyGrowth(t *testing.T) {
	day := calendar.MustParseDay("2026-02-18")
	data := generate(feb, day, steadyOffices)

	assert.Len(t, data.officers, len(steadyOffices))
	assert.Equal(t, []calendar.YearMonth{
		{Year: 2025, Month: 11}, {Year: 2025, Month: 12}, {Year: 2026, Month: 1}, feb,
	}, sortedMonths(data.revenue))
	assert.Equal(t, []calendar.YearMonth{{Year: 2026, Month: 1}, feb}, sortedMonths(data.open))

	// GIVEN: the current month is generated up to today
	// THEN: no date lands after today or outside the month
	for _, it := range data.revenue[feb] {
		if it.TransactionDate != nil {
			assert.False(t, it.TransactionDate.After(day), it.FileNumber)
			assert.Equal(t, feb, it.TransactionDate.YearMonth(), it.FileNumber)
		}
		assert.True(t, engine.IsValidBillCode(it.BillCode))
	}
	for _, o := range data.open[feb] {
		assert.False(t, o.ReceivedDate.After(day), o.FileNumber)
	}
}

func TestGenerate_FileNumbersAreUnique(t *testing.T) {
	data := generate(feb, calendar.MustParseDay("2026-02-18"), steadyOffices)

	seen := map[string]calendar.YearMonth{}
	for month, items := range data.revenue {
		for _, it := range items {
			if prev, ok := seen[it.FileNumber]; ok {
				assert.Equal(t, prev, month, "%s spans two months", it.FileNumber)
			}
			seen[it.FileNumber] = month
		}
	}
	for _, rows := range data.open {
		for _, o := range rows {
			_, dup := seen[o.FileNumber]
			assert.False(t, dup, o.FileNumber)
		}
	}
}

func TestScenarios_List(t *testing.T) {
	srv := newTestServer(t, nil)

	list := decodeBody[[]ScenarioDTO](t, srv.do(t, http.MethodGet, "/api/scenarios", nil))
	require.Len(t, list, len(scenarios))
	assert.Equal(t, "2026-02", list[0].Month)

	rec := srv.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_SteadyGrowthBuildsEveryReport(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "steady-growth"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := decodeBody[ScenarioDTO](t, srv.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "steady-growth", current.ID)

	months := decodeBody[[]sqlstore.MonthCount](t, srv.do(t, http.MethodGet, "/api/months", nil))
	assert.Len(t, months, 4)

	for _, name := range report.Names() {
		rec := srv.do(t, http.MethodGet, "/api/reports/"+string(name)+"?month=2&year=2026", nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", name, rec.Body.String())

		res := decodeBody[report.Result](t, rec)
		assert.Equal(t, name, res.Name)
		assert.Equal(t, "2026-02", res.Meta.CurrentMonth)
		assert.False(t, res.Meta.NoData, name)
	}

	runs := decodeBody[[]engine.ImportRun](t, srv.do(t, http.MethodGet, "/api/import/log", nil))
	require.Len(t, runs, 6, "four revenue months and two open months")
	for _, run := range runs {
		assert.Equal(t, ingest.TriggerDemo, run.TriggeredBy)
		assert.True(t, run.Success)
	}
}

func TestScenarios_DataQualityTripsChecks(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "data-quality"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Month and year default to today
	rec = srv.do(t, http.MethodGet, "/api/reports/discrepancies", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[discrepancy.Report](t, rec)
	assert.Equal(t, "2026-02", res.Month)
	assert.False(t, res.Summary.Clean)
	assert.Empty(t, res.Failed)

	counts := map[string]int{}
	for _, c := range res.Checks {
		counts[c.ID] = c.Count
	}
	assert.Equal(t, 1, counts["unknown-branch"])
	assert.Equal(t, 1, counts["zero-revenue"])
	assert.Equal(t, 1, counts["missing-escrow-fee"])
	assert.Contains(t, counts, "branch-revenue-drop")
	assert.Contains(t, counts, "rep-went-zero")
	assert.Contains(t, counts, "pipeline-drop")

	// Inland's officer is not in the directory
	rec = srv.do(t, http.MethodGet, "/api/reports/title-officer?month=2&year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[report.Result](t, rec).Meta.UnmappedOfficers, "Ghost Officer")
}
