package engine_test

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestBranchFromFileNumber(t *testing.T) {
	tests := []struct {
		fileNumber string
		want       string
	}{
		{"20011035-GLT", "Glendale"},
		{"20006993-OCT", "Orange"},
		{"20006993-oct", "Orange"},
		{"30000001-ONT", "Inland Empire"},
		{"40000001-PRV", "Porterville"},
		{"20006993-XYZ", "Unknown"},
		{"99100688", "TSG"},
		{"99100688-OCT", "Orange"},
		{"12345678", "Unknown"},
		{"A-B-GLT", "Glendale"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.fileNumber, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.BranchFromFileNumber(tt.fileNumber))
			// Deterministic on repeat
			assert.Equal(t, tt.want, engine.BranchFromFileNumber(tt.fileNumber))
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		orderType, transType string
		want                 engine.Category
	}{
		{"Trustee Sale Guarantee", "", engine.CategoryTSG},
		{"Title & Escrow", "Purchase", engine.CategoryEscrow},
		{"Title only", "Purchase", engine.CategoryPurchase},
		{" title ONLY ", "refinance", engine.CategoryRefinance},
		{"Title only", "Other", engine.CategoryOther},
		{"Title only", "", engine.CategoryOther},
		{"Escrow only", "", engine.CategoryUnknown},
		{"", "Purchase", engine.CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.Categorize(tt.orderType, tt.transType), "%q/%q", tt.orderType, tt.transType)
	}

	assert.Equal(t, engine.CategoryEscrow, engine.CategorizeOpenOrder("Escrow only", ""))
	assert.Equal(t, engine.CategoryPurchase, engine.CategorizeOpenOrder("Title only", "Purchase"))
}

func TestClassifyRevenue(t *testing.T) {
	tests := map[string]engine.RevenueType{
		"TPC":   engine.RevenueTitle,
		"tpw":   engine.RevenueTitle,
		"ESC":   engine.RevenueEscrow,
		"TSGW":  engine.RevenueTSG,
		" UPRE": engine.RevenueUnderwriter,
	}
	for code, want := range tests {
		got, ok := engine.ClassifyRevenue(code)
		assert.True(t, ok, code)
		assert.Equal(t, want, got, code)
	}

	_, ok := engine.ClassifyRevenue("REC")
	assert.False(t, ok)
	assert.False(t, engine.IsValidBillCode(""))
}

func TestOfficerDirectory_FallsBackToUnassigned(t *testing.T) {
	dir := engine.NewOfficerDirectory([]engine.OfficerBranch{
		{OfficerName: "Jane Roe", Branch: "Glendale", Active: true},
		{OfficerName: "Old Timer", Branch: "Orange", Active: false},
	})

	assert.Equal(t, "Glendale", dir.Branch("Jane Roe"))
	assert.Equal(t, engine.BranchUnassigned, dir.Branch("Old Timer"), "inactive entries are ignored")
	assert.Equal(t, engine.BranchUnassigned, dir.Branch("Nobody"))
	assert.Equal(t, engine.BranchUnassigned, dir.Branch(""))

	var empty *engine.OfficerDirectory
	assert.Equal(t, engine.BranchUnassigned, empty.Branch("Jane Roe"), "nil directory is tolerated")
}

func TestBranchStrategies_AreDistinct(t *testing.T) {
	dir := engine.NewOfficerDirectory([]engine.OfficerBranch{
		{OfficerName: "Jane Roe", Branch: "Glendale", Active: true},
	})
	order := engine.OrderSummary{FileNumber: "20006993-OCT", TitleOfficer: "Jane Roe"}

	assert.Equal(t, "Orange", engine.NewBranchResolver(engine.BranchByFileNumber, dir).OrderBranch(order))
	assert.Equal(t, "Glendale", engine.NewBranchResolver(engine.BranchByOfficer, dir).OrderBranch(order))
}

func TestUnmappedOfficers_DedupesInOrder(t *testing.T) {
	var u engine.UnmappedOfficers
	assert.Empty(t, u.Names())
	assert.True(t, u.Add("B"))
	assert.True(t, u.Add("A"))
	assert.False(t, u.Add("B"))
	assert.Equal(t, []string{"B", "A"}, u.Names())
}

// =============================================================================
// AGGREGATION
// =============================================================================

func day(s string) *calendar.Day {
	d := calendar.MustParseDay(s)
	return &d
}

func item(file, code string, amount float64) engine.LineItem {
	return engine.LineItem{
		FileNumber:      file,
		BillCode:        code,
		Amount:          decimal.NewFromFloat(amount),
		TransactionDate: day("2026-02-10"),
		OrderType:       "Title & Escrow",
		TransType:       "Purchase",
		SalesRep:        "Sam Seller",
		TitleOfficer:    "Jane Roe",
	}
}

func TestAggregateLineItems_SumsByBucket(t *testing.T) {
	// GIVEN: a title charge and an escrow charge on the same order
	items := []engine.LineItem{
		item("20006993-OCT", "TPC", 500),
		item("20006993-OCT", "ESC", 300),
	}

	// WHEN: aggregated
	orders := engine.AggregateLineItems(items)

	// THEN: one order with typed buckets and a derived total
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "Orange", o.Branch)
	assert.Equal(t, engine.CategoryEscrow, o.Category)
	assert.True(t, decimal.NewFromInt(500).Equal(o.TitleRevenue))
	assert.True(t, decimal.NewFromInt(300).Equal(o.EscrowRevenue))
	assert.True(t, decimal.NewFromInt(800).Equal(o.TotalRevenue()))
	assert.Equal(t, 2, o.LineItemCount)
	assert.Equal(t, "2026-02-10", o.TransactionDate.String())
}

func TestAggregateLineItems_TotalIsSumOfBuckets(t *testing.T) {
	items := []engine.LineItem{
		item("1-GLT", "TPC", 100.10),
		item("1-GLT", "TPW", 0.20),
		item("1-GLT", "ESC", 45.33),
		item("1-GLT", "TSGW", 12.01),
		item("1-GLT", "UPRE", 7.07),
		item("1-GLT", "REC", 999),
	}

	orders := engine.AggregateLineItems(items)
	require.Len(t, orders, 1)
	o := orders[0]

	sum := o.TitleRevenue.Add(o.EscrowRevenue).Add(o.TSGRevenue).Add(o.UnderwriterRevenue)
	assert.True(t, sum.Equal(o.TotalRevenue()))
	assert.Equal(t, "164.71", o.TotalRevenue().StringFixed(2))
	assert.Equal(t, 6, o.LineItemCount, "non-revenue items still count")
}

func TestAggregateLineItems_OrderIndependent(t *testing.T) {
	items := []engine.LineItem{
		item("20006993-OCT", "TPC", 500),
		item("20006993-OCT", "ESC", 300),
		item("20011035-GLT", "TPC", 1200),
		item("20011035-GLT", "UPRE", 80),
		item("99100688", "TSGW", 650),
	}
	// Conflicting classification fields within one order
	odd := item("20011035-GLT", "TPW", 10)
	odd.SalesRep = "Another Rep"
	items = append(items, odd)

	first := engine.AggregateLineItems(items)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]engine.LineItem(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		again := engine.AggregateLineItems(shuffled)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].FileNumber, again[j].FileNumber)
			assert.Equal(t, first[j].SalesRep, again[j].SalesRep)
			assert.True(t, first[j].TotalRevenue().Equal(again[j].TotalRevenue()))
			assert.Equal(t, first[j].LineItemCount, again[j].LineItemCount)
		}
	}
}

func TestAggregateLineItems_Empty(t *testing.T) {
	assert.Empty(t, engine.AggregateLineItems(nil))
}

// =============================================================================
// METRICS
// =============================================================================

func TestClosingRatio(t *testing.T) {
	assert.Equal(t, 120, engine.ClosingRatio(10, 12), "not clamped to 100")
	assert.Equal(t, 0, engine.ClosingRatio(0, 5))
	assert.Equal(t, 33, engine.ClosingRatio(3, 1))
	assert.Equal(t, 67, engine.ClosingRatio(3, 2))
	assert.Equal(t, 50, engine.ClosingRatio(8, 4))
}

func TestProjectRevenue(t *testing.T) {
	mtd := decimal.NewFromInt(12000)

	assert.Equal(t, "20000.00", engine.ProjectRevenue(mtd, 12, 8).StringFixed(2))
	assert.True(t, engine.ProjectRevenue(mtd, 0, 20).IsZero(), "zero worked days projects zero")
}

func TestPercentChange(t *testing.T) {
	pct, ok := engine.PercentChange(decimal.NewFromInt(60), decimal.NewFromInt(100))
	require.True(t, ok)
	assert.Equal(t, "-40", pct.String())

	_, ok = engine.PercentChange(decimal.NewFromInt(60), decimal.Zero)
	assert.False(t, ok)
}

func TestDecimalOrZero(t *testing.T) {
	assert.Equal(t, "1234.5", engine.DecimalOrZero("1,234.50").String())
	assert.True(t, engine.DecimalOrZero("").IsZero())
	assert.True(t, engine.DecimalOrZero("n/a").IsZero())
}
