/*
handlers.go - HTTP API handlers for the production reporting service

PURPOSE:
  Exposes reports, the discrepancy battery, imports and the officer
  directory over REST. Handles HTTP request/response and JSON, and
  delegates to the report, discrepancy and ingest packages.

ENDPOINTS:
  Status:
    GET    /api/health                    DB ping
    GET    /api/months                    Fetch months with data
    GET    /api/import/log?limit=         Recent import runs

  Data:
    GET    /api/orders/{fileNumber}       Summaries and line items
    GET    /api/stats/{yearMonth}         Fetch-month breakdown
    GET    /api/open-orders/summary       Pipeline counts (?month=YYYY-MM)

  Reports:
    GET    /api/reports/{name}            One of report.Names() (?month=&year=)
    GET    /api/reports/discrepancies     Data quality battery (?month=&year=)

  Imports:
    POST   /api/fetch/{yearMonth}         Revenue import from SoftPro
    POST   /api/import/open-orders        Multipart .xlsx upload (file, month)

  Officers:
    GET    /api/officers                  Active directory
    POST   /api/officers                  Add or move an officer
    DELETE /api/officers/{name}           Deactivate

ERROR HANDLING:
  Errors are returned as ErrorResponse with:
  - 400: Invalid month, bad request body, empty import
  - 404: Unknown report, unknown order or officer
  - 502: Production system unavailable or failing
  - 500: Anything else (logged)

SECURITY NOTE:
  No authentication. Deploy behind the company VPN.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo datasets
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/discrepancy"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/ingest"
	"github.com/titledesk/production-reports/logging"
	"github.com/titledesk/production-reports/report"
	"github.com/titledesk/production-reports/store/sqlstore"
)

func init() {
	// Money goes out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

const maxUploadBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlstore.Store
	Reports *report.Builder
	Checks  *discrepancy.Runner
	Imports *ingest.Service
	Log     *logrus.Logger

	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the report builder and discrepancy runner to store.
// imports may carry a nil fetcher, in which case /api/fetch returns 502.
func NewHandler(store *sqlstore.Store, imports *ingest.Service, opts report.Options, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:    store,
		Reports:  report.NewBuilder(store, opts, log),
		Checks:   discrepancy.NewRunner(store, log),
		Imports:  imports,
		Log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithClock fixes "today" for report windows and default months.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	h.Reports.WithClock(now)
	return h
}

// =============================================================================
// STATUS
// =============================================================================

// Health pings the database.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		logging.LogError(h.Log, "api", "health", nil, err)
		writeJSON(w, http.StatusInternalServerError, HealthResponse{Status: "error", DB: "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", DB: "connected"})
}

// ListMonths returns the fetch months that hold data.
// GET /api/months
func (h *Handler) ListMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.Store.Months(r.Context())
	if err != nil {
		h.fail(w, "Failed to list months", err)
		return
	}
	if months == nil {
		months = []sqlstore.MonthCount{}
	}
	writeJSON(w, http.StatusOK, months)
}

// ImportLog returns recent import runs, newest first.
// GET /api/import/log?limit=50
func (h *Handler) ImportLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ImportLog(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to read import log", err)
		return
	}
	if runs == nil {
		runs = []engine.ImportRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// =============================================================================
// DATA
// =============================================================================

// GetOrder returns every summary and line item for one file number.
// GET /api/orders/{fileNumber}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Store.OrderByFileNumber(r.Context(), chi.URLParam(r, "fileNumber"))
	if err != nil {
		h.fail(w, "Order not found", err)
		return
	}
	resp := OrderResponse{LineItems: detail.LineItems, Summary: detail.Summaries}
	if resp.LineItems == nil {
		resp.LineItems = []engine.LineItem{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// MonthStats breaks a fetch month down by branch and category.
// GET /api/stats/{yearMonth}
func (h *Handler) MonthStats(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	stats, err := h.Store.MonthStats(r.Context(), month)
	if err != nil {
		h.fail(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// OpenOrderSummary counts an open month's orders by branch and category.
// GET /api/open-orders/summary?month=YYYY-MM
func (h *Handler) OpenOrderSummary(w http.ResponseWriter, r *http.Request) {
	month := calendar.DayOf(h.now()).YearMonth()
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := calendar.ParseYearMonth(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid format. Use YYYY-MM", err)
			return
		}
		month = m
	}

	counts, err := h.Store.OpenOrderSummary(r.Context(), month)
	if err != nil {
		h.fail(w, "Failed to summarise open orders", err)
		return
	}
	resp := OpenOrderSummaryResponse{Month: month.String(), Counts: counts}
	for _, c := range counts {
		resp.Total += c.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// REPORTS
// =============================================================================

// GetReport builds one named report.
// GET /api/reports/{name}?month=2&year=2026
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	name, err := report.ParseName(chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "Unknown report", err)
		return
	}
	month, year, ok := h.queryMonth(w, r)
	if !ok {
		return
	}

	res, err := h.Reports.Build(r.Context(), name, month, year)
	if err != nil {
		h.fail(w, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Discrepancies runs the data-quality battery.
// GET /api/reports/discrepancies?month=2&year=2026
func (h *Handler) Discrepancies(w http.ResponseWriter, r *http.Request) {
	month, year, ok := h.queryMonth(w, r)
	if !ok {
		return
	}
	res, err := h.Checks.Run(r.Context(), month, year)
	if err != nil {
		h.fail(w, "Failed to run discrepancy checks", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// IMPORTS
// =============================================================================

// FetchMonth imports one revenue month from SoftPro, replacing what is
// stored for it.
// POST /api/fetch/{yearMonth}
func (h *Handler) FetchMonth(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	res, err := h.Imports.ImportRevenueMonth(r.Context(), month, ingest.TriggerAPI)
	if err != nil {
		h.fail(w, fmt.Sprintf("Import of %s failed", month), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImportOpenOrders accepts an open-orders workbook as the "file" form field.
// The month comes from the "month" field, the file name or the first
// received date, in that order.
// POST /api/import/open-orders
func (h *Handler) ImportOpenOrders(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Expected a multipart upload", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	res, err := h.Imports.ImportOpenOrderWorkbook(r.Context(), file, header.Filename, r.FormValue("month"), ingest.TriggerAPI)
	if err != nil {
		h.fail(w, "Open orders import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// OFFICERS
// =============================================================================

// ListOfficers returns the active title officer directory.
// GET /api/officers
func (h *Handler) ListOfficers(w http.ResponseWriter, r *http.Request) {
	officers, err := h.Store.OfficerBranches(r.Context())
	if err != nil {
		h.fail(w, "Failed to list officers", err)
		return
	}
	if officers == nil {
		officers = []engine.OfficerBranch{}
	}
	writeJSON(w, http.StatusOK, OfficersResponse{Officers: officers})
}

// SaveOfficer adds or moves an officer. Saving reactivates a deactivated
// officer.
// POST /api/officers
func (h *Handler) SaveOfficer(w http.ResponseWriter, r *http.Request) {
	var req SaveOfficerRequest
	if !h.decode(w, r, &req) {
		return
	}
	ob := engine.OfficerBranch{OfficerName: req.OfficerName, Branch: req.Branch, Active: true}
	if err := h.Store.SaveOfficerBranch(r.Context(), ob); err != nil {
		h.fail(w, "Failed to save officer", err)
		return
	}
	writeJSON(w, http.StatusCreated, ob)
}

// DeactivateOfficer removes an officer from the directory.
// DELETE /api/officers/{name}
func (h *Handler) DeactivateOfficer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Store.DeactivateOfficer(r.Context(), name); err != nil {
		h.fail(w, "Failed to deactivate officer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// queryMonth reads ?month=&year=, defaulting each to today's.
func (h *Handler) queryMonth(w http.ResponseWriter, r *http.Request) (month, year int, ok bool) {
	var q MonthQuery
	for key, dst := range map[string]*int{"month": &q.Month, "year": &q.Year} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+key, fmt.Errorf("%w: %q", engine.ErrInvalidMonth, v))
			return 0, 0, false
		}
		*dst = n
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month or year", err)
		return 0, 0, false
	}

	today := h.now()
	if q.Month == 0 {
		q.Month = int(today.Month())
	}
	if q.Year == 0 {
		q.Year = today.Year()
	}
	return q.Month, q.Year, true
}

// pathMonth reads the {yearMonth} URL parameter.
func pathMonth(w http.ResponseWriter, r *http.Request) (calendar.YearMonth, bool) {
	month, err := calendar.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid format. Use YYYY-MM", err)
		return calendar.YearMonth{}, false
	}
	return month, true
}

// decode reads and validates a JSON body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// fail maps a domain error to its HTTP status. Unexpected errors are logged.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	var verr validator.ValidationErrors
	switch {
	case engine.IsClientError(err), errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsUpstream(err):
		writeError(w, http.StatusBadGateway, message, err)
	default:
		logging.LogError(h.Log, "api", message, nil, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
