package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// DIALECTS
// =============================================================================

// Dialect is the database/sql driver name the store was opened with.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

func (d Dialect) Valid() bool { return d == SQLite || d == Postgres }

// rebind rewrites "?" placeholders to "$n" for PostgreSQL. Queries in this
// package never contain a literal question mark.
func (d Dialect) rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// =============================================================================
// SCHEMA
// =============================================================================
// Dates are stored as 'YYYY-MM-DD' text in both dialects so range filters
// compare lexically and identically. Money is REAL on SQLite and
// NUMERIC(14,2) on PostgreSQL; both scan into decimal.Decimal.

const schemaTemplate = `
-- Raw billing charges, replaced per fetch month
CREATE TABLE IF NOT EXISTS revenue_line_items (
	id {{serial}},
	file_number TEXT NOT NULL,
	transaction_date TEXT,
	received_date TEXT,
	disbursement_date TEXT,
	escrow_closed_date TEXT,
	bill_code TEXT NOT NULL,
	bill_code_category TEXT,
	description TEXT,
	amount {{money}} NOT NULL DEFAULT 0,
	sales_rep TEXT,
	title_officer TEXT,
	escrow_officer TEXT,
	order_type TEXT,
	trans_type TEXT,
	title_office TEXT,
	escrow_office TEXT,
	property_type TEXT,
	county TEXT,
	city TEXT,
	state TEXT,
	zip TEXT,
	address TEXT,
	marketing_source TEXT,
	main_contact TEXT,
	underwriter TEXT,
	fetch_month TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_line_items_month_file
	ON revenue_line_items(fetch_month, file_number);

-- One row per order per fetch month. No uniqueness constraint: duplicates
-- are reported by the discrepancy battery, not rejected here.
CREATE TABLE IF NOT EXISTS order_summary (
	id {{serial}},
	file_number TEXT NOT NULL,
	branch TEXT NOT NULL,
	order_type TEXT,
	trans_type TEXT,
	category TEXT NOT NULL,
	sales_rep TEXT,
	title_officer TEXT,
	escrow_officer TEXT,
	title_revenue {{money}} NOT NULL DEFAULT 0,
	escrow_revenue {{money}} NOT NULL DEFAULT 0,
	tsg_revenue {{money}} NOT NULL DEFAULT 0,
	underwriter_revenue {{money}} NOT NULL DEFAULT 0,
	total_revenue {{money}} NOT NULL DEFAULT 0,
	transaction_date TEXT,
	received_date TEXT,
	disbursement_date TEXT,
	escrow_closed_date TEXT,
	fetch_month TEXT NOT NULL,
	line_item_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_summary_month
	ON order_summary(fetch_month, category);
CREATE INDEX IF NOT EXISTS idx_order_summary_tx_date
	ON order_summary(transaction_date);
CREATE INDEX IF NOT EXISTS idx_order_summary_file
	ON order_summary(file_number);

-- Pipeline snapshot, replaced per open month
CREATE TABLE IF NOT EXISTS open_orders (
	id {{serial}},
	file_number TEXT NOT NULL,
	received_date TEXT,
	settlement_date TEXT,
	trans_type TEXT,
	order_type TEXT,
	product_type TEXT,
	profile TEXT,
	branch TEXT NOT NULL,
	category TEXT NOT NULL,
	sales_rep TEXT,
	title_officer TEXT,
	escrow_officer TEXT,
	escrow_assistant TEXT,
	marketing_source TEXT,
	main_contact TEXT,
	open_month TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(file_number, open_month)
);

CREATE INDEX IF NOT EXISTS idx_open_orders_received
	ON open_orders(received_date);

-- Title officer home branches
CREATE TABLE IF NOT EXISTS title_officer_branches (
	officer_name TEXT PRIMARY KEY,
	branch TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TEXT NOT NULL
);

-- One entry per import attempt, success or failure
CREATE TABLE IF NOT EXISTS import_log (
	id TEXT PRIMARY KEY,
	import_type TEXT NOT NULL,
	month TEXT NOT NULL,
	records_imported INTEGER NOT NULL DEFAULT 0,
	records_deleted INTEGER NOT NULL DEFAULT 0,
	records_fetched INTEGER NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL,
	error_message TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	triggered_by TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_log_created
	ON import_log(created_at);
`

func (d Dialect) schema() []string {
	r := strings.NewReplacer(
		"{{serial}}", map[Dialect]string{
			SQLite:   "INTEGER PRIMARY KEY AUTOINCREMENT",
			Postgres: "BIGSERIAL PRIMARY KEY",
		}[d],
		"{{money}}", map[Dialect]string{
			SQLite:   "REAL",
			Postgres: "NUMERIC(14,2)",
		}[d],
	)

	var stmts []string
	for _, stmt := range strings.Split(r.Replace(schemaTemplate), ";") {
		lines := strings.Split(stmt, "\n")
		var kept []string
		for _, l := range lines {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "--") {
				kept = append(kept, l)
			}
		}
		if len(kept) > 0 {
			stmts = append(stmts, strings.Join(kept, "\n"))
		}
	}
	return stmts
}

// migrate creates the database schema. Statements run one at a time since
// not every driver accepts a multi-statement Exec.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
