/*
store.go - Persistence interfaces for the reporting engine

PURPOSE:
  Defines the boundary between the aggregation rules and the database.
  Report builders read through ReportSource; importers write through
  ImportWriter. Both are satisfied by store/sqlstore (SQLite or PostgreSQL)
  and by store/memory (tests).

REPLACE-PER-MONTH CONTRACT:
  Imports never patch rows incrementally. ReplaceRevenueMonth and
  ReplaceOpenOrders delete a month's batch and insert the new one inside a
  single transaction: readers see the old month or the new month, never a
  mix. Re-running the same import is therefore idempotent.

DISJOINT POPULATIONS:
  CountOpenedBy reads the open-order table; CountClosedBy reads order
  summaries. They are queried independently and never joined.

SEE ALSO:
  - store/sqlstore/sqlstore.go: SQL implementation
  - store/memory/memory.go: In-memory implementation
*/
package engine

import (
	"context"
	"time"

	"github.com/titledesk/production-reports/calendar"
)

// PersonKey selects the column a closing-ratio count is grouped by.
type PersonKey string

const (
	BySalesRep     PersonKey = "sales_rep"
	ByTitleOfficer PersonKey = "title_officer"
)

// OrderFilter narrows order-summary reads. Empty Categories means all.
type OrderFilter struct {
	ClosedOnly bool
	Categories []Category
}

// Matches applies the filter to one order.
func (f OrderFilter) Matches(o OrderSummary) bool {
	if f.ClosedOnly && !o.IsClosed() {
		return false
	}
	return CategoryIn(o.Category, f.Categories)
}

// CategoryIn reports whether c is in cats. An empty list matches everything.
func CategoryIn(c Category, cats []Category) bool {
	if len(cats) == 0 {
		return true
	}
	for _, x := range cats {
		if x == c {
			return true
		}
	}
	return false
}

// =============================================================================
// READ SIDE
// =============================================================================

// ReportSource is everything a report builder reads.
type ReportSource interface {
	// OrderSummaries returns a fetch month's orders.
	OrderSummaries(ctx context.Context, month calendar.YearMonth, f OrderFilter) ([]OrderSummary, error)

	// OpenOrdersForMonth returns an open month's orders.
	OpenOrdersForMonth(ctx context.Context, month calendar.YearMonth, cats []Category) ([]OpenOrder, error)

	// OpenOrdersReceivedOn returns open orders received on one day, across
	// open months.
	OpenOrdersReceivedOn(ctx context.Context, day calendar.Day, cats []Category) ([]OpenOrder, error)

	// CountOpenedBy counts open orders received within p, grouped by person.
	// Orders with no person are keyed "".
	CountOpenedBy(ctx context.Context, key PersonKey, p calendar.Period, cats []Category) (map[string]int, error)

	// CountClosedBy counts order summaries whose closing date is within p,
	// grouped by person. Orders with no person are keyed "".
	CountClosedBy(ctx context.Context, key PersonKey, p calendar.Period, cats []Category) (map[string]int, error)

	// OfficerBranches returns the officer directory, active entries only.
	OfficerBranches(ctx context.Context) ([]OfficerBranch, error)
}

// =============================================================================
// WRITE SIDE
// =============================================================================

// ImportWriter replaces whole months atomically.
type ImportWriter interface {
	// ReplaceRevenueMonth swaps a fetch month's line items and summaries.
	// Returns how many summaries were removed.
	ReplaceRevenueMonth(ctx context.Context, month calendar.YearMonth, items []LineItem, orders []OrderSummary) (deleted int, err error)

	// ReplaceOpenOrders swaps an open month's rows. Rows are unique on
	// (file number, open month); a later duplicate in the batch wins.
	ReplaceOpenOrders(ctx context.Context, month calendar.YearMonth, rows []OpenOrder) (deleted int, err error)

	// RecordImport appends an import-log entry.
	RecordImport(ctx context.Context, run ImportRun) error
}

// ImportRun is one import-log entry.
type ImportRun struct {
	ID          string     `json:"id"`
	Kind        ImportKind `json:"import_type"`
	Month       string     `json:"month"`
	Imported    int        `json:"records_imported"`
	Deleted     int        `json:"records_deleted"`
	Fetched     int        `json:"records_fetched"`
	Success     bool       `json:"success"`
	Error       string     `json:"error_message,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	TriggeredBy string     `json:"triggered_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OfficerStore maintains the officer directory.
type OfficerStore interface {
	SaveOfficerBranch(ctx context.Context, ob OfficerBranch) error
	DeactivateOfficer(ctx context.Context, officerName string) error
	OfficerBranches(ctx context.Context) ([]OfficerBranch, error)
}
