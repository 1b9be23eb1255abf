/*
Package engine provides the data model and the pure rules of the
production-reporting engine.

PURPOSE:
  Everything here is deterministic and free of I/O: classification of raw
  order attributes into branch and category, revenue-type bucketing of
  bill codes, and collapsing billing line items into per-order summaries.
  Report builders, the discrepancy battery and the importers all sit on
  top of these rules.

KEY TYPES:
  LineItem:      One billing charge as received from the production system
  OrderSummary:  One row per file number per fetch month
  OpenOrder:     One row per file number per open month (separate population)
  OfficerBranch: Title officer to home branch directory entry

DESIGN PRINCIPLES:
  1. Sentinels, not errors: unresolvable inputs classify to "Unknown",
     "Unassigned" or "Other" so reports always render
  2. Precision: revenue is decimal.Decimal, coalesced to zero at the boundary
  3. Recompute, never trust: total revenue is derived from the typed buckets

SEE ALSO:
  - classify.go: Branch, category and revenue-type rules
  - aggregate.go: Line-item aggregation
  - store.go: Interfaces the report and import layers depend on
*/
package engine

import (
	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/calendar"
)

// =============================================================================
// CATEGORY - Order classification
// =============================================================================

type Category string

const (
	CategoryPurchase  Category = "Purchase"
	CategoryRefinance Category = "Refinance"
	CategoryEscrow    Category = "Escrow"
	CategoryTSG       Category = "TSG"
	CategoryOther     Category = "Other"
	CategoryUnknown   Category = "Unknown"
)

// Branch sentinels. Real branch names come from the suffix table or the
// officer directory.
const (
	BranchTSG        = "TSG"
	BranchUnknown    = "Unknown"
	BranchUnassigned = "Unassigned"
)

// UnassignedPerson is used for orders with no sales rep or title officer.
const UnassignedPerson = "Unassigned"

// =============================================================================
// REVENUE TYPE - Bill code buckets
// =============================================================================

type RevenueType string

const (
	RevenueTitle       RevenueType = "title"
	RevenueEscrow      RevenueType = "escrow"
	RevenueTSG         RevenueType = "tsg"
	RevenueUnderwriter RevenueType = "underwriter"
)

// Bill codes kept at ingestion. Everything else is discarded.
const (
	BillCodeTitlePremiumCalc   = "TPC"
	BillCodeTitlePremiumWaived = "TPW"
	BillCodeEscrowFee          = "ESC"
	BillCodeTSGWork            = "TSGW"
	BillCodeUnderwriterPremium = "UPRE"
)

var ValidBillCodes = []string{
	BillCodeTitlePremiumCalc,
	BillCodeTitlePremiumWaived,
	BillCodeEscrowFee,
	BillCodeTSGWork,
	BillCodeUnderwriterPremium,
}

// =============================================================================
// ROWS
// =============================================================================

// LineItem is one billing charge for one order.
type LineItem struct {
	FileNumber       string             `json:"file_number"`
	TransactionDate  *calendar.Day      `json:"transaction_date"`
	ReceivedDate     *calendar.Day      `json:"received_date"`
	DisbursementDate *calendar.Day      `json:"disbursement_date"`
	EscrowClosedDate *calendar.Day      `json:"escrow_closed_date"`
	BillCode         string             `json:"bill_code"`
	BillCodeCategory string             `json:"bill_code_category"`
	Description      string             `json:"description"`
	Amount           decimal.Decimal    `json:"amount"`
	SalesRep         string             `json:"sales_rep"`
	TitleOfficer     string             `json:"title_officer"`
	EscrowOfficer    string             `json:"escrow_officer"`
	OrderType        string             `json:"order_type"`
	TransType        string             `json:"trans_type"`
	TitleOffice      string             `json:"title_office"`
	EscrowOffice     string             `json:"escrow_office"`
	PropertyType     string             `json:"property_type"`
	County           string             `json:"county"`
	City             string             `json:"city"`
	State            string             `json:"state"`
	Zip              string             `json:"zip"`
	Address          string             `json:"address"`
	MarketingSource  string             `json:"marketing_source"`
	MainContact      string             `json:"main_contact"`
	Underwriter      string             `json:"underwriter"`
	FetchMonth       calendar.YearMonth `json:"fetch_month"`
}

// OrderSummary is the per-order rollup of a fetch month's line items.
// TransactionDate is the closing date; nil means the order has not closed.
type OrderSummary struct {
	FileNumber         string             `json:"file_number"`
	Branch             string             `json:"branch"`
	OrderType          string             `json:"order_type"`
	TransType          string             `json:"trans_type"`
	Category           Category           `json:"category"`
	SalesRep           string             `json:"sales_rep"`
	TitleOfficer       string             `json:"title_officer"`
	EscrowOfficer      string             `json:"escrow_officer"`
	TitleRevenue       decimal.Decimal    `json:"title_revenue"`
	EscrowRevenue      decimal.Decimal    `json:"escrow_revenue"`
	TSGRevenue         decimal.Decimal    `json:"tsg_revenue"`
	UnderwriterRevenue decimal.Decimal    `json:"underwriter_revenue"`
	TransactionDate    *calendar.Day      `json:"transaction_date"`
	ReceivedDate       *calendar.Day      `json:"received_date"`
	DisbursementDate   *calendar.Day      `json:"disbursement_date"`
	EscrowClosedDate   *calendar.Day      `json:"escrow_closed_date"`
	FetchMonth         calendar.YearMonth `json:"fetch_month"`
	LineItemCount      int                `json:"line_item_count"`
}

// TotalRevenue is always the sum of the four typed buckets.
func (o OrderSummary) TotalRevenue() decimal.Decimal {
	return o.TitleRevenue.Add(o.EscrowRevenue).Add(o.TSGRevenue).Add(o.UnderwriterRevenue)
}

// TitleOnlyRevenue is title plus underwriter revenue, the figure credited to
// title officers.
func (o OrderSummary) TitleOnlyRevenue() decimal.Decimal {
	return o.TitleRevenue.Add(o.UnderwriterRevenue)
}

// IsClosed reports whether the order has a closing date.
func (o OrderSummary) IsClosed() bool { return o.TransactionDate != nil }

// OpenOrder is an order captured when it was opened. It is a distinct
// population from OrderSummary.
type OpenOrder struct {
	FileNumber      string             `json:"file_number"`
	ReceivedDate    *calendar.Day      `json:"received_date"`
	SettlementDate  *calendar.Day      `json:"settlement_date"`
	TransType       string             `json:"trans_type"`
	OrderType       string             `json:"order_type"`
	ProductType     string             `json:"product_type"`
	Profile         string             `json:"profile"`
	Branch          string             `json:"branch"`
	Category        Category           `json:"category"`
	SalesRep        string             `json:"sales_rep"`
	TitleOfficer    string             `json:"title_officer"`
	EscrowOfficer   string             `json:"escrow_officer"`
	EscrowAssistant string             `json:"escrow_assistant"`
	MarketingSource string             `json:"marketing_source"`
	MainContact     string             `json:"main_contact"`
	OpenMonth       calendar.YearMonth `json:"open_month"`
}

// OfficerBranch maps a title officer to a home branch.
type OfficerBranch struct {
	OfficerName string `json:"officer_name"`
	Branch      string `json:"branch"`
	Active      bool   `json:"is_active"`
}

// PersonOrUnassigned returns name, or "Unassigned" when empty.
func PersonOrUnassigned(name string) string {
	if name == "" {
		return UnassignedPerson
	}
	return name
}
