package engine

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/calendar"
)

// =============================================================================
// LINE-ITEM AGGREGATION
// =============================================================================

// AggregateLineItems collapses line items into one OrderSummary per file
// number. Amounts are summed per revenue bucket; items whose bill code is not
// revenue still count toward LineItemCount but add nothing.
//
// Classification fields come from the first item of each group in canonical
// order (see lineItemLess), so shuffling the input never changes the output.
// Summaries are returned sorted by file number.
//
// The result is meant to replace a month wholesale; it is never merged with
// an earlier run.
func AggregateLineItems(items []LineItem) []OrderSummary {
	sorted := make([]LineItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return lineItemLess(sorted[i], sorted[j]) })

	var orders []OrderSummary
	index := make(map[string]int)

	for _, item := range sorted {
		i, ok := index[item.FileNumber]
		if !ok {
			orders = append(orders, newSummary(item))
			i = len(orders) - 1
			index[item.FileNumber] = i
		}
		o := &orders[i]

		if rt, ok := ClassifyRevenue(item.BillCode); ok {
			switch rt {
			case RevenueTitle:
				o.TitleRevenue = o.TitleRevenue.Add(item.Amount)
			case RevenueEscrow:
				o.EscrowRevenue = o.EscrowRevenue.Add(item.Amount)
			case RevenueTSG:
				o.TSGRevenue = o.TSGRevenue.Add(item.Amount)
			case RevenueUnderwriter:
				o.UnderwriterRevenue = o.UnderwriterRevenue.Add(item.Amount)
			}
		}
		o.LineItemCount++
	}
	return orders
}

func newSummary(item LineItem) OrderSummary {
	return OrderSummary{
		FileNumber:         item.FileNumber,
		Branch:             BranchFromFileNumber(item.FileNumber),
		OrderType:          item.OrderType,
		TransType:          item.TransType,
		Category:           Categorize(item.OrderType, item.TransType),
		SalesRep:           item.SalesRep,
		TitleOfficer:       item.TitleOfficer,
		EscrowOfficer:      item.EscrowOfficer,
		TitleRevenue:       decimal.Zero,
		EscrowRevenue:      decimal.Zero,
		TSGRevenue:         decimal.Zero,
		UnderwriterRevenue: decimal.Zero,
		TransactionDate:    item.TransactionDate,
		ReceivedDate:       item.ReceivedDate,
		DisbursementDate:   item.DisbursementDate,
		EscrowClosedDate:   item.EscrowClosedDate,
		FetchMonth:         item.FetchMonth,
	}
}

// lineItemLess is a total order over the fields that matter to a summary.
func lineItemLess(a, b LineItem) bool {
	if c := strings.Compare(a.FileNumber, b.FileNumber); c != 0 {
		return c < 0
	}
	if c := strings.Compare(dayKey(a.TransactionDate), dayKey(b.TransactionDate)); c != 0 {
		return c < 0
	}
	if c := strings.Compare(a.BillCode, b.BillCode); c != 0 {
		return c < 0
	}
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c < 0
	}
	for _, pair := range [][2]string{
		{a.SalesRep, b.SalesRep},
		{a.TitleOfficer, b.TitleOfficer},
		{a.EscrowOfficer, b.EscrowOfficer},
		{a.OrderType, b.OrderType},
		{a.TransType, b.TransType},
		{dayKey(a.ReceivedDate), dayKey(b.ReceivedDate)},
		{a.Description, b.Description},
	} {
		if c := strings.Compare(pair[0], pair[1]); c != 0 {
			return c < 0
		}
	}
	return false
}

// dayKey sorts nil dates after real ones.
func dayKey(d *calendar.Day) string {
	if d == nil {
		return "~"
	}
	return d.String()
}
