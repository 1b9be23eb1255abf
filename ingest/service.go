/*
service.go - Month imports into the report store

PURPOSE:
  Turns fetched or uploaded batches into stored months:
    revenue:     fetch -> filter -> aggregate -> ReplaceRevenueMonth
    open orders: parse -> classify -> ReplaceOpenOrders

ATOMICITY:
  Each import is one store call that replaces the whole month inside a
  transaction. A failed import leaves the month exactly as it was.

IMPORT LOG:
  Every attempt, successful or not, is recorded with a fresh run id, the
  counts, the duration and who triggered it. Failures are also logged.

BACKFILL:
  Months are fetched one at a time, oldest first. A failing month is
  recorded and the backfill moves on.

SEE ALSO:
  - ingest/softpro.go: Revenue source
  - ingest/openorders.go: Workbook parser
  - engine/store.go: ImportWriter contract
*/
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// Fetcher supplies a month of revenue line items.
type Fetcher interface {
	FetchMonth(ctx context.Context, month calendar.YearMonth) (*RevenueBatch, error)
}

// Store is what the import service writes to.
type Store interface {
	engine.ImportWriter
	OfficerBranches(ctx context.Context) ([]engine.OfficerBranch, error)
}

// Trigger names who started an import, for the import log.
const (
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
	TriggerBackfill = "backfill"
	TriggerDemo     = "demo"
)

// Result summarises one successful import.
type Result struct {
	RunID        string             `json:"run_id"`
	Kind         engine.ImportKind  `json:"import_type"`
	Month        calendar.YearMonth `json:"month"`
	Fetched      int                `json:"records_fetched"`
	Filtered     int                `json:"records_filtered"`
	LineItems    int                `json:"line_items"`
	Imported     int                `json:"records_imported"`
	Skipped      int                `json:"records_skipped"`
	Deleted      int                `json:"records_deleted"`
	TotalRevenue decimal.Decimal    `json:"total_revenue"`
	DurationMS   int64              `json:"duration_ms"`
}

type Service struct {
	fetcher Fetcher
	store   Store
	log     *logrus.Logger
	now     func() time.Time

	// BackfillPause is waited between backfill months.
	BackfillPause time.Duration
}

func NewService(fetcher Fetcher, store Store, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{fetcher: fetcher, store: store, log: log, now: time.Now}
}

// =============================================================================
// REVENUE
// =============================================================================

// ImportRevenueMonth fetches a month from the production system and replaces
// the stored month with it.
func (s *Service) ImportRevenueMonth(ctx context.Context, month calendar.YearMonth, trigger string) (*Result, error) {
	start := s.now()
	if s.fetcher == nil {
		return nil, s.fail(ctx, engine.ImportRevenue, month, start, trigger, fmt.Errorf("%w: no production system configured", engine.ErrFetchFailed))
	}
	batch, err := s.fetcher.FetchMonth(ctx, month)
	if err != nil {
		return nil, s.fail(ctx, engine.ImportRevenue, month, start, trigger, err)
	}
	return s.storeRevenue(ctx, month, batch.Fetched, batch.LineItems, start, trigger)
}

// ImportRevenueItems replaces a month with line items already in hand.
// Items with a non-revenue bill code are dropped first.
func (s *Service) ImportRevenueItems(ctx context.Context, month calendar.YearMonth, items []engine.LineItem, trigger string) (*Result, error) {
	return s.storeRevenue(ctx, month, len(items), items, s.now(), trigger)
}

func (s *Service) storeRevenue(ctx context.Context, month calendar.YearMonth, fetched int, items []engine.LineItem, start time.Time, trigger string) (*Result, error) {
	kept := make([]engine.LineItem, 0, len(items))
	for _, it := range items {
		if engine.IsValidBillCode(it.BillCode) {
			it.FetchMonth = month
			kept = append(kept, it)
		}
	}
	orders := engine.AggregateLineItems(kept)

	deleted, err := s.store.ReplaceRevenueMonth(ctx, month, kept, orders)
	if err != nil {
		return nil, s.fail(ctx, engine.ImportRevenue, month, start, trigger, err)
	}

	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalRevenue())
	}
	res := &Result{
		Kind:         engine.ImportRevenue,
		Month:        month,
		Fetched:      fetched,
		Filtered:     fetched - len(kept),
		LineItems:    len(kept),
		Imported:     len(orders),
		Deleted:      deleted,
		TotalRevenue: engine.Round2(total),
	}
	s.succeed(ctx, res, start, trigger)
	return res, nil
}

// =============================================================================
// OPEN ORDERS
// =============================================================================

// ImportOpenOrders replaces an open month with rows. Categories are filled
// where missing; branches come from the officer directory.
func (s *Service) ImportOpenOrders(ctx context.Context, month calendar.YearMonth, rows []engine.OpenOrder, trigger string) (*Result, error) {
	return s.storeOpenOrders(ctx, month, rows, 0, s.now(), trigger)
}

// ImportOpenOrderWorkbook parses an uploaded workbook and imports it. month
// may be empty; see OpenMonth for how it is inferred.
func (s *Service) ImportOpenOrderWorkbook(ctx context.Context, r io.Reader, fileName, month, trigger string) (*Result, error) {
	start := s.now()
	sheet, err := ParseOpenOrders(r)
	if err != nil {
		return nil, s.failKey(ctx, engine.ImportOpenOrders, month, start, trigger, err)
	}
	ym, err := OpenMonth(month, fileName, sheet.Rows)
	if err != nil {
		return nil, s.failKey(ctx, engine.ImportOpenOrders, month, start, trigger, err)
	}
	if len(sheet.Rows) == 0 {
		return nil, s.fail(ctx, engine.ImportOpenOrders, ym, start, trigger, engine.ErrEmptyImport)
	}
	return s.storeOpenOrders(ctx, ym, sheet.Rows, sheet.Skipped, start, trigger)
}

func (s *Service) storeOpenOrders(ctx context.Context, month calendar.YearMonth, rows []engine.OpenOrder, skipped int, start time.Time, trigger string) (*Result, error) {
	entries, err := s.store.OfficerBranches(ctx)
	if err != nil {
		return nil, s.fail(ctx, engine.ImportOpenOrders, month, start, trigger, fmt.Errorf("load officer directory: %w", err))
	}
	dir := engine.NewOfficerDirectory(entries)

	prepared := make([]engine.OpenOrder, 0, len(rows))
	for _, o := range rows {
		if o.FileNumber == "" {
			skipped++
			continue
		}
		if o.Category == "" {
			o.Category = engine.CategorizeOpenOrder(o.OrderType, o.TransType)
		}
		o.Branch = dir.Branch(o.TitleOfficer)
		o.OpenMonth = month
		prepared = append(prepared, o)
	}

	deleted, err := s.store.ReplaceOpenOrders(ctx, month, prepared)
	if err != nil {
		return nil, s.fail(ctx, engine.ImportOpenOrders, month, start, trigger, err)
	}

	res := &Result{
		Kind:     engine.ImportOpenOrders,
		Month:    month,
		Fetched:  len(rows),
		Imported: len(prepared),
		Skipped:  skipped,
		Deleted:  deleted,
	}
	s.succeed(ctx, res, start, trigger)
	return res, nil
}

// =============================================================================
// BACKFILL
// =============================================================================

// BackfillResult is one month of a backfill.
type BackfillResult struct {
	Month  calendar.YearMonth `json:"month"`
	Result *Result            `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Backfill imports every revenue month from from through to, inclusive.
// Failed months are reported in their result and do not stop the run; only
// a cancelled context does.
func (s *Service) Backfill(ctx context.Context, from, to calendar.YearMonth, trigger string) ([]BackfillResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: backfill range %s..%s is reversed", engine.ErrInvalidMonth, from, to)
	}

	months := calendar.MonthsBetween(from, to)
	results := make([]BackfillResult, 0, len(months))
	for i, m := range months {
		if i > 0 && s.BackfillPause > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(s.BackfillPause):
			}
		}

		res, err := s.ImportRevenueMonth(ctx, m, trigger)
		br := BackfillResult{Month: m, Result: res}
		if err != nil {
			br.Error = err.Error()
		}
		results = append(results, br)

		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

// =============================================================================
// IMPORT LOG
// =============================================================================

func (s *Service) succeed(ctx context.Context, res *Result, start time.Time, trigger string) {
	res.RunID = uuid.NewString()
	res.DurationMS = s.now().Sub(start).Milliseconds()

	s.record(ctx, engine.ImportRun{
		ID:          res.RunID,
		Kind:        res.Kind,
		Month:       res.Month.String(),
		Imported:    res.Imported,
		Deleted:     res.Deleted,
		Fetched:     res.Fetched,
		Success:     true,
		DurationMS:  res.DurationMS,
		TriggeredBy: trigger,
	})
	s.log.WithFields(logrus.Fields{
		"module":      "ingest",
		"run_id":      res.RunID,
		"import_type": res.Kind,
		"month":       res.Month.String(),
		"fetched":     res.Fetched,
		"imported":    res.Imported,
		"deleted":     res.Deleted,
		"duration_ms": res.DurationMS,
	}).Info("import complete")
}

func (s *Service) fail(ctx context.Context, kind engine.ImportKind, month calendar.YearMonth, start time.Time, trigger string, err error) error {
	return s.failKey(ctx, kind, month.String(), start, trigger, err)
}

// failKey records a failure for a month that may not have parsed.
func (s *Service) failKey(ctx context.Context, kind engine.ImportKind, month string, start time.Time, trigger string, err error) error {
	ierr := &engine.ImportError{Kind: kind, Month: month, Err: err}
	run := engine.ImportRun{
		ID:          uuid.NewString(),
		Kind:        kind,
		Month:       month,
		Success:     false,
		Error:       err.Error(),
		DurationMS:  s.now().Sub(start).Milliseconds(),
		TriggeredBy: trigger,
	}
	s.record(ctx, run)
	s.log.WithFields(logrus.Fields{
		"module":      "ingest",
		"run_id":      run.ID,
		"import_type": kind,
		"month":       month,
	}).WithError(err).Error("import failed")
	return ierr
}

// record writes an import-log entry. Cancellation of ctx is ignored.
func (s *Service) record(ctx context.Context, run engine.ImportRun) {
	run.CreatedAt = s.now()
	if err := s.store.RecordImport(context.WithoutCancel(ctx), run); err != nil {
		s.log.WithFields(logrus.Fields{
			"module": "ingest",
			"run_id": run.ID,
		}).WithError(err).Warn("failed to write import log")
	}
}
