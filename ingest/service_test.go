package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/store/memory"
)

// stubFetcher serves canned months and fails the rest.
type stubFetcher struct {
	months map[calendar.YearMonth][]engine.LineItem
	calls  []calendar.YearMonth
}

func (f *stubFetcher) FetchMonth(_ context.Context, month calendar.YearMonth) (*RevenueBatch, error) {
	f.calls = append(f.calls, month)
	items, ok := f.months[month]
	if !ok {
		return nil, fmt.Errorf("%w: status 500", engine.ErrFetchFailed)
	}
	return &RevenueBatch{Month: month, Fetched: len(items), LineItems: items}, nil
}

// brokenStore fails every month replacement.
type brokenStore struct {
	*memory.Memory
}

func (brokenStore) ReplaceRevenueMonth(context.Context, calendar.YearMonth, []engine.LineItem, []engine.OrderSummary) (int, error) {
	return 0, errors.New("disk full")
}

func februaryItems() []engine.LineItem {
	return []engine.LineItem{
		{FileNumber: "20006993-OCT", BillCode: "TPC", Amount: decimal.NewFromInt(500), TransactionDate: day("2026-02-10"),
			OrderType: "Title only", TransType: "Purchase", SalesRep: "Sam Seller", TitleOfficer: "Jane Roe"},
		{FileNumber: "20006993-OCT", BillCode: "ESC", Amount: decimal.NewFromInt(300), TransactionDate: day("2026-02-10"),
			OrderType: "Title only", TransType: "Purchase", SalesRep: "Sam Seller", TitleOfficer: "Jane Roe"},
		{FileNumber: "20006993-OCT", BillCode: "RECF", Amount: decimal.NewFromInt(45)},
	}
}

func TestImportRevenueMonth(t *testing.T) {
	store := memory.New()
	fetcher := &stubFetcher{months: map[calendar.YearMonth][]engine.LineItem{feb: februaryItems()}}
	svc := NewService(fetcher, store, nil)
	ctx := context.Background()

	// WHEN: the month is imported twice
	first, err := svc.ImportRevenueMonth(ctx, feb, TriggerCLI)
	require.NoError(t, err)
	second, err := svc.ImportRevenueMonth(ctx, feb, TriggerCLI)
	require.NoError(t, err)

	// THEN: the second run replaces the first
	assert.Equal(t, 3, first.Fetched)
	assert.Equal(t, 1, first.Filtered)
	assert.Equal(t, 2, first.LineItems)
	assert.Equal(t, 1, first.Imported)
	assert.Equal(t, 0, first.Deleted)
	assert.True(t, decimal.NewFromInt(800).Equal(first.TotalRevenue))
	assert.Equal(t, 1, second.Deleted)
	assert.NotEqual(t, first.RunID, second.RunID)

	orders, err := store.OrderSummaries(ctx, feb, engine.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Orange", orders[0].Branch)
	assert.True(t, decimal.NewFromInt(800).Equal(orders[0].TotalRevenue()))

	log, err := store.ImportLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.True(t, log[0].Success)
	assert.Equal(t, second.RunID, log[0].ID)
	assert.Equal(t, engine.ImportRevenue, log[0].Kind)
	assert.Equal(t, "2026-02", log[0].Month)
	assert.Equal(t, TriggerCLI, log[0].TriggeredBy)
}

func TestImportRevenueMonth_FetchFailureIsRecorded(t *testing.T) {
	store := memory.New()
	svc := NewService(&stubFetcher{}, store, nil)
	ctx := context.Background()

	_, err := svc.ImportRevenueMonth(ctx, feb, TriggerAPI)

	var ierr *engine.ImportError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "2026-02", ierr.Month)
	assert.ErrorIs(t, err, engine.ErrFetchFailed)

	log, err := store.ImportLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
	assert.Contains(t, log[0].Error, "status 500")
}

func TestImportRevenueMonth_WriteFailureKeepsMonth(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	fetcher := &stubFetcher{months: map[calendar.YearMonth][]engine.LineItem{feb: februaryItems()}}

	// GIVEN: February is stored
	_, err := NewService(fetcher, mem, nil).ImportRevenueMonth(ctx, feb, TriggerCLI)
	require.NoError(t, err)

	// WHEN: a re-import fails to write
	_, err = NewService(fetcher, brokenStore{mem}, nil).ImportRevenueMonth(ctx, feb, TriggerCLI)
	require.Error(t, err)

	// THEN: the stored month is untouched and the failure is logged
	orders, err := mem.OrderSummaries(ctx, feb, engine.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	log, err := mem.ImportLog(ctx, 1)
	require.NoError(t, err)
	assert.False(t, log[0].Success)
	assert.Contains(t, log[0].Error, "disk full")
}

func TestImportRevenueMonth_NoFetcher(t *testing.T) {
	_, err := NewService(nil, memory.New(), nil).ImportRevenueMonth(context.Background(), feb, TriggerAPI)
	assert.True(t, engine.IsUpstream(err))
}

func TestImportOpenOrderWorkbook(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveOfficerBranch(ctx, engine.OfficerBranch{OfficerName: "Jane Roe", Branch: "Orange", Active: true}))
	svc := NewService(nil, store, nil)

	buf := workbook(t,
		openHeader,
		[]any{"20006993-OCT", 46063, "", "Purchase", "Title only", "Sam Seller", "Jane Roe", ""},
		[]any{"20006994-GLT", 46056, "", "Refinance", "Title only", "Ann Agent", "Ghost Officer", ""},
		[]any{"", 46056, "", "", "", "", "", ""},
	)

	res, err := svc.ImportOpenOrderWorkbook(ctx, buf, "pipeline.xlsx", "", TriggerAPI)
	require.NoError(t, err)

	assert.Equal(t, feb, res.Month, "inferred from the first received date")
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	rows, err := store.OpenOrdersForMonth(ctx, feb, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	branches := map[string]string{}
	for _, r := range rows {
		branches[r.FileNumber] = r.Branch
		assert.Equal(t, feb, r.OpenMonth)
	}
	assert.Equal(t, "Orange", branches["20006993-OCT"])
	assert.Equal(t, engine.BranchUnassigned, branches["20006994-GLT"])
}

func TestImportOpenOrderWorkbook_NoRows(t *testing.T) {
	store := memory.New()
	svc := NewService(nil, store, nil)

	buf := workbook(t, openHeader, []any{"", "2026-02-03"})
	_, err := svc.ImportOpenOrderWorkbook(context.Background(), buf, "2026-02-open.xlsx", "", TriggerAPI)

	assert.ErrorIs(t, err, engine.ErrEmptyImport)
	assert.True(t, engine.IsClientError(err))

	log, _ := store.ImportLog(context.Background(), 0)
	require.Len(t, log, 1)
	assert.Equal(t, "2026-02", log[0].Month)
	assert.False(t, log[0].Success)
}

func TestBackfill(t *testing.T) {
	jan := calendar.YearMonth{Year: 2026, Month: 1}
	mar := calendar.YearMonth{Year: 2026, Month: 3}
	items := februaryItems()
	fetcher := &stubFetcher{months: map[calendar.YearMonth][]engine.LineItem{jan: items, mar: items}}
	svc := NewService(fetcher, memory.New(), nil)

	// GIVEN: February fails upstream
	results, err := svc.Backfill(context.Background(), jan, mar, TriggerBackfill)
	require.NoError(t, err)

	// THEN: January and March still import, in order
	assert.Equal(t, []calendar.YearMonth{jan, feb, mar}, fetcher.calls)
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.Nil(t, results[1].Result)
	assert.Empty(t, results[2].Error)
	assert.Equal(t, 1, results[2].Result.Imported)
}

func TestBackfill_ReversedRange(t *testing.T) {
	svc := NewService(&stubFetcher{}, memory.New(), nil)
	_, err := svc.Backfill(context.Background(), feb, calendar.YearMonth{Year: 2026, Month: 1}, TriggerBackfill)
	assert.ErrorIs(t, err, engine.ErrInvalidMonth)
}
