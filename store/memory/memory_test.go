package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

func TestMemory_ReplaceAndRead(t *testing.T) {
	m := New()
	ctx := context.Background()
	feb := calendar.YearMonth{Year: 2026, Month: 2}
	closed := calendar.MustParseDay("2026-02-10")

	orders := []engine.OrderSummary{
		{FileNumber: "1-GLT", Category: engine.CategoryPurchase, SalesRep: "Sam", TitleRevenue: decimal.NewFromInt(100), TransactionDate: &closed},
		{FileNumber: "2-GLT", Category: engine.CategoryEscrow, SalesRep: "Sam"},
	}
	_, err := m.ReplaceRevenueMonth(ctx, feb, nil, orders)
	require.NoError(t, err)

	deleted, err := m.ReplaceRevenueMonth(ctx, feb, nil, orders[:1])
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	got, err := m.OrderSummaries(ctx, feb, engine.OrderFilter{ClosedOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, feb, got[0].FetchMonth)

	counts, err := m.CountClosedBy(ctx, engine.BySalesRep, feb.Period(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Sam": 1}, counts)
}

func TestMemory_OpenOrders(t *testing.T) {
	m := New()
	ctx := context.Background()
	feb := calendar.YearMonth{Year: 2026, Month: 2}
	d := calendar.MustParseDay("2026-02-17")

	_, err := m.ReplaceOpenOrders(ctx, feb, []engine.OpenOrder{
		{FileNumber: "1-GLT", ReceivedDate: &d, Category: engine.CategoryPurchase, TitleOfficer: "Jane"},
		{FileNumber: "1-GLT", ReceivedDate: &d, Category: engine.CategoryRefinance, TitleOfficer: "Jane"},
		{FileNumber: "2-GLT", ReceivedDate: &d, Category: engine.CategoryEscrow},
	})
	require.NoError(t, err)

	rows, err := m.OpenOrdersForMonth(ctx, feb, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, engine.CategoryRefinance, rows[0].Category, "later duplicate wins")

	today, err := m.OpenOrdersReceivedOn(ctx, d, []engine.Category{engine.CategoryEscrow})
	require.NoError(t, err)
	assert.Len(t, today, 1)

	counts, err := m.CountOpenedBy(ctx, engine.ByTitleOfficer, feb.Period(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Jane": 1, "": 1}, counts)
}

func TestMemory_Officers(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.SaveOfficerBranch(ctx, engine.OfficerBranch{OfficerName: "Zed", Branch: "Orange", Active: true}))
	require.NoError(t, m.SaveOfficerBranch(ctx, engine.OfficerBranch{OfficerName: "Amy", Branch: "Glendale", Active: true}))
	require.NoError(t, m.DeactivateOfficer(ctx, "Zed"))
	assert.ErrorIs(t, m.DeactivateOfficer(ctx, "Nobody"), engine.ErrNotFound)

	got, err := m.OfficerBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.OfficerBranch{{OfficerName: "Amy", Branch: "Glendale", Active: true}}, got)
}
