/*
handlers_test.go - HTTP tests for the reporting API

Tests for:
- Status endpoints and error mapping (400/404/502)
- Revenue fetch and the data lookups that read it back
- Open-order workbook upload
- Officer directory CRUD
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/ingest"
	"github.com/titledesk/production-reports/report"
	"github.com/titledesk/production-reports/store/sqlstore"
	"github.com/xuri/excelize/v2"
)

var (
	feb   = calendar.YearMonth{Year: 2026, Month: 2}
	today = time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
)

// stubFetcher serves one canned month.
type stubFetcher struct {
	items []engine.LineItem
}

func (f stubFetcher) FetchMonth(_ context.Context, month calendar.YearMonth) (*ingest.RevenueBatch, error) {
	if month != feb {
		return nil, fmt.Errorf("%w: status 500", engine.ErrFetchFailed)
	}
	return &ingest.RevenueBatch{Month: month, Fetched: len(f.items), LineItems: f.items}, nil
}

func februaryItems() []engine.LineItem {
	closing := calendar.MustParseDay("2026-02-10")
	base := engine.LineItem{
		FileNumber: "20006993-OCT", TransactionDate: &closing, OrderType: "Title only", TransType: "Purchase",
		SalesRep: "Sam Seller", TitleOfficer: "Jane Roe",
	}
	tpc, upre := base, base
	tpc.BillCode, tpc.Amount = "TPC", decimal.NewFromInt(500)
	upre.BillCode, upre.Amount = "UPRE", decimal.NewFromInt(300)
	return []engine.LineItem{tpc, upre}
}

type testServer struct {
	store  *sqlstore.Store
	router http.Handler
}

func newTestServer(t *testing.T, fetcher ingest.Fetcher) *testServer {
	t.Helper()
	store, err := sqlstore.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	imports := ingest.NewService(fetcher, store, log)
	h := NewHandler(store, imports, report.DefaultOptions(), log).WithClock(func() time.Time { return today })
	return &testServer{store: store, router: NewRouter(h, nil)}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// STATUS AND ERRORS
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", DB: "connected"}, decodeBody[HealthResponse](t, rec))
}

func TestHealth_DatabaseDown(t *testing.T) {
	srv := newTestServer(t, nil)
	require.NoError(t, srv.store.Close())

	rec := srv.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "disconnected", decodeBody[HealthResponse](t, rec).DB)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown report", http.MethodGet, "/api/reports/weekly", http.StatusNotFound},
		{"month out of range", http.MethodGet, "/api/reports/daily-revenue?month=13&year=2026", http.StatusBadRequest},
		{"month not a number", http.MethodGet, "/api/reports/r14-ranking?month=feb", http.StatusBadRequest},
		{"discrepancies bad year", http.MethodGet, "/api/reports/discrepancies?month=2&year=26", http.StatusBadRequest},
		{"stats bad month", http.MethodGet, "/api/stats/2026-2", http.StatusBadRequest},
		{"fetch bad month", http.MethodPost, "/api/fetch/february", http.StatusBadRequest},
		{"fetch without SoftPro", http.MethodPost, "/api/fetch/2026-02", http.StatusBadGateway},
		{"unknown order", http.MethodGet, "/api/orders/20000000-OCT", http.StatusNotFound},
		{"import log limit", http.MethodGet, "/api/import/log?limit=0", http.StatusBadRequest},
		{"open summary bad month", http.MethodGet, "/api/open-orders/summary?month=02-2026", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestStatsBadMonthMessage(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/stats/2026-2", nil)
	assert.Equal(t, "Invalid format. Use YYYY-MM", decodeBody[ErrorResponse](t, rec).Error)
}

// =============================================================================
// REVENUE FETCH
// =============================================================================

func TestFetchMonth_ThenLookups(t *testing.T) {
	srv := newTestServer(t, stubFetcher{items: februaryItems()})

	// WHEN: February is fetched
	rec := srv.do(t, http.MethodPost, "/api/fetch/2026-02", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[ingest.Result](t, rec)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.LineItems)
	assert.True(t, decimal.NewFromInt(800).Equal(res.TotalRevenue))

	// THEN: the month is listed
	months := decodeBody[[]sqlstore.MonthCount](t, srv.do(t, http.MethodGet, "/api/months", nil))
	require.Len(t, months, 1)
	assert.Equal(t, "2026-02", months[0].Month)
	assert.Equal(t, 1, months[0].Orders)

	// AND: the order can be looked up
	rec = srv.do(t, http.MethodGet, "/api/orders/20006993-OCT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decodeBody[OrderResponse](t, rec)
	require.Len(t, order.Summary, 1)
	assert.Len(t, order.LineItems, 2)
	assert.Equal(t, "Orange", order.Summary[0].Branch)

	// AND: stats carry money as JSON numbers
	rec = srv.do(t, http.MethodGet, "/api/stats/2026-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"revenue":800`)

	// AND: the import is logged
	runs := decodeBody[[]engine.ImportRun](t, srv.do(t, http.MethodGet, "/api/import/log", nil))
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, ingest.TriggerAPI, runs[0].TriggeredBy)
}

func TestFetchMonth_UpstreamFailureIsLogged(t *testing.T) {
	srv := newTestServer(t, stubFetcher{})

	rec := srv.do(t, http.MethodPost, "/api/fetch/2026-03", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	runs := decodeBody[[]engine.ImportRun](t, srv.do(t, http.MethodGet, "/api/import/log?limit=5", nil))
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
	assert.Equal(t, "2026-03", runs[0].Month)
}

// =============================================================================
// OPEN ORDERS UPLOAD
// =============================================================================

func uploadWorkbook(t *testing.T, srv *testServer, fileName, month string, rows ...[]any) *httptest.ResponseRecorder {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	if month != "" {
		require.NoError(t, mw.WriteField("month", month))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/open-orders", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestImportOpenOrders(t *testing.T) {
	srv := newTestServer(t, nil)
	header := []any{"Order Number", "Received Date", "Transaction Type", "Order Type", "Title Officer"}

	rec := uploadWorkbook(t, srv, "pipeline.xlsx", "2026-02",
		header,
		[]any{"20006993-OCT", "2026-02-03", "Purchase", "Title only", "Jane Roe"},
		[]any{"20006994-GLT", "2026-02-04", "Refinance", "Title only", ""},
		[]any{"99100688", "2026-02-05", "", "Trustee Sale Guarantee", ""},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeBody[ingest.Result](t, rec).Imported)

	summary := decodeBody[OpenOrderSummaryResponse](t, srv.do(t, http.MethodGet, "/api/open-orders/summary?month=2026-02", nil))
	assert.Equal(t, "2026-02", summary.Month)
	assert.Equal(t, 3, summary.Total)

	// Default month is the current one
	summary = decodeBody[OpenOrderSummaryResponse](t, srv.do(t, http.MethodGet, "/api/open-orders/summary", nil))
	assert.Equal(t, "2026-02", summary.Month)
}

func TestImportOpenOrders_Rejected(t *testing.T) {
	srv := newTestServer(t, nil)

	// No data rows
	rec := uploadWorkbook(t, srv, "2026-02-open.xlsx", "", []any{"Order Number", "Received Date"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Not multipart
	rec = srv.do(t, http.MethodPost, "/api/import/open-orders", map[string]string{"file": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// OFFICERS
// =============================================================================

func TestOfficers(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/officers", SaveOfficerRequest{OfficerName: "Jane Roe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "branch is required")

	rec = srv.do(t, http.MethodPost, "/api/officers", SaveOfficerRequest{OfficerName: "Jane Roe", Branch: "Orange"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	list := decodeBody[OfficersResponse](t, srv.do(t, http.MethodGet, "/api/officers", nil))
	require.Len(t, list.Officers, 1)
	assert.Equal(t, "Orange", list.Officers[0].Branch)

	rec = srv.do(t, http.MethodDelete, "/api/officers/Jane%20Roe", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	list = decodeBody[OfficersResponse](t, srv.do(t, http.MethodGet, "/api/officers", nil))
	assert.Empty(t, list.Officers)

	rec = srv.do(t, http.MethodDelete, "/api/officers/Nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
