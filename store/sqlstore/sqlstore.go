/*
Package sqlstore provides a database/sql implementation of the engine's
storage interfaces, over SQLite or PostgreSQL.

PURPOSE:
  Implements engine.ReportSource, engine.ImportWriter and engine.OfficerStore,
  plus the read-only lookups behind the API (months, stats, order detail,
  import log). The discrepancy battery runs its SQL through QueryContext.

INTERFACES IMPLEMENTED:
  engine.ReportSource:  Order summaries, open orders, closing-ratio counts
  engine.ImportWriter:  Transactional replace-per-month, import log
  engine.OfficerStore:  Title officer directory

REPLACE-PER-MONTH:
  A month's batch is deleted and re-inserted inside one transaction, so a
  failed import leaves the previous batch intact and readers never see a
  half-written month. Imports of the same month are serialised by a
  per-month lock; different months do not wait on each other.

KEY TABLES:
  revenue_line_items:     Raw billing charges (fetch_month batches)
  order_summary:          Per-order rollups (fetch_month batches)
  open_orders:            Pipeline snapshot (open_month batches)
  title_officer_branches: Officer directory
  import_log:             One row per import attempt

DIALECTS:
  "sqlite3" (mattn/go-sqlite3) is the default and what tests use.
  "pgx" (jackc/pgx/v5/stdlib) targets PostgreSQL. Queries are written with
  "?" placeholders and rebound for PostgreSQL.

USAGE:
  store, err := sqlstore.New("sqlite3", "./data/reports.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// Store implements the engine storage interfaces over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu         sync.Mutex
	monthLocks map[string]*sync.Mutex
}

var (
	_ engine.ReportSource = (*Store)(nil)
	_ engine.ImportWriter = (*Store)(nil)
	_ engine.OfficerStore = (*Store)(nil)
)

// New opens a store for driver ("sqlite3" or "pgx") and migrates the schema.
func New(driver, dsn string) (*Store, error) {
	dialect := Dialect(driver)
	if !dialect.Valid() {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// One connection: ":memory:" databases are per-connection, and SQLite
		// has a single writer regardless.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, dialect: dialect, monthLocks: make(map[string]*sync.Mutex)}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite store. Use ":memory:" for an in-memory database.
func NewSQLite(path string) (*Store, error) {
	return New(string(SQLite), path)
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if path == ":memory:" {
		return path + "?_foreign_keys=on"
	}
	return path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports which SQL dialect the store speaks.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// QueryContext runs a read query written with "?" placeholders.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

// monthLock returns the mutex serialising imports of one batch.
func (s *Store) monthLock(kind engine.ImportKind, month calendar.YearMonth) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(kind) + "/" + month.String()
	l, ok := s.monthLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.monthLocks[key] = l
	}
	return l
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) exec(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

// withTx executes fn inside a database transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// IMPORT WRITER (engine.ImportWriter interface)
// =============================================================================

// ReplaceRevenueMonth deletes a fetch month's line items and order summaries
// and inserts the new batch in one transaction.
func (s *Store) ReplaceRevenueMonth(ctx context.Context, month calendar.YearMonth, items []engine.LineItem, orders []engine.OrderSummary) (int, error) {
	lock := s.monthLock(engine.ImportRevenue, month)
	lock.Lock()
	defer lock.Unlock()

	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM revenue_line_items WHERE fetch_month = ?`, month.String()); err != nil {
			return fmt.Errorf("failed to delete line items: %w", err)
		}
		res, err := s.exec(ctx, tx, `DELETE FROM order_summary WHERE fetch_month = ?`, month.String())
		if err != nil {
			return fmt.Errorf("failed to delete order summaries: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = int(n)

		now := nowText()
		for _, it := range items {
			if err := s.insertLineItem(ctx, tx, month, it, now); err != nil {
				return err
			}
		}
		for _, o := range orders {
			if err := s.insertOrderSummary(ctx, tx, month, o, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) insertLineItem(ctx context.Context, tx *sql.Tx, month calendar.YearMonth, it engine.LineItem, now string) error {
	_, err := s.exec(ctx, tx, `
		INSERT INTO revenue_line_items
		(file_number, transaction_date, received_date, disbursement_date, escrow_closed_date,
		 bill_code, bill_code_category, description, amount, sales_rep, title_officer,
		 escrow_officer, order_type, trans_type, title_office, escrow_office, property_type,
		 county, city, state, zip, address, marketing_source, main_contact, underwriter,
		 fetch_month, created_at)
		VALUES (`+placeholders(27)+`)`,
		it.FileNumber, dayArg(it.TransactionDate), dayArg(it.ReceivedDate),
		dayArg(it.DisbursementDate), dayArg(it.EscrowClosedDate),
		it.BillCode, nullString(it.BillCodeCategory), nullString(it.Description), it.Amount,
		nullString(it.SalesRep), nullString(it.TitleOfficer), nullString(it.EscrowOfficer),
		nullString(it.OrderType), nullString(it.TransType), nullString(it.TitleOffice),
		nullString(it.EscrowOffice), nullString(it.PropertyType), nullString(it.County),
		nullString(it.City), nullString(it.State), nullString(it.Zip), nullString(it.Address),
		nullString(it.MarketingSource), nullString(it.MainContact), nullString(it.Underwriter),
		month.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert line item %s: %w", it.FileNumber, err)
	}
	return nil
}

func (s *Store) insertOrderSummary(ctx context.Context, tx *sql.Tx, month calendar.YearMonth, o engine.OrderSummary, now string) error {
	_, err := s.exec(ctx, tx, `
		INSERT INTO order_summary
		(file_number, branch, order_type, trans_type, category, sales_rep, title_officer,
		 escrow_officer, title_revenue, escrow_revenue, tsg_revenue, underwriter_revenue,
		 total_revenue, transaction_date, received_date, disbursement_date, escrow_closed_date,
		 fetch_month, line_item_count, created_at)
		VALUES (`+placeholders(20)+`)`,
		o.FileNumber, o.Branch, nullString(o.OrderType), nullString(o.TransType), string(o.Category),
		nullString(o.SalesRep), nullString(o.TitleOfficer), nullString(o.EscrowOfficer),
		o.TitleRevenue, o.EscrowRevenue, o.TSGRevenue, o.UnderwriterRevenue, o.TotalRevenue(),
		dayArg(o.TransactionDate), dayArg(o.ReceivedDate), dayArg(o.DisbursementDate),
		dayArg(o.EscrowClosedDate), month.String(), o.LineItemCount, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order summary %s: %w", o.FileNumber, err)
	}
	return nil
}

// ReplaceOpenOrders deletes an open month's rows and inserts the new batch in
// one transaction. A later row with the same file number wins.
func (s *Store) ReplaceOpenOrders(ctx context.Context, month calendar.YearMonth, rows []engine.OpenOrder) (int, error) {
	lock := s.monthLock(engine.ImportOpenOrders, month)
	lock.Lock()
	defer lock.Unlock()

	rows = dedupeOpenOrders(rows)

	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `DELETE FROM open_orders WHERE open_month = ?`, month.String())
		if err != nil {
			return fmt.Errorf("failed to delete open orders: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = int(n)

		now := nowText()
		for _, o := range rows {
			_, err := s.exec(ctx, tx, `
				INSERT INTO open_orders
				(file_number, received_date, settlement_date, trans_type, order_type, product_type,
				 profile, branch, category, sales_rep, title_officer, escrow_officer,
				 escrow_assistant, marketing_source, main_contact, open_month, created_at)
				VALUES (`+placeholders(17)+`)`,
				o.FileNumber, dayArg(o.ReceivedDate), dayArg(o.SettlementDate),
				nullString(o.TransType), nullString(o.OrderType), nullString(o.ProductType),
				nullString(o.Profile), o.Branch, string(o.Category), nullString(o.SalesRep),
				nullString(o.TitleOfficer), nullString(o.EscrowOfficer), nullString(o.EscrowAssistant),
				nullString(o.MarketingSource), nullString(o.MainContact), month.String(), now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert open order %s: %w", o.FileNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func dedupeOpenOrders(rows []engine.OpenOrder) []engine.OpenOrder {
	index := make(map[string]int, len(rows))
	out := make([]engine.OpenOrder, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.FileNumber]; ok {
			out[i] = r
			continue
		}
		index[r.FileNumber] = len(out)
		out = append(out, r)
	}
	return out
}

// RecordImport appends an import-log entry.
func (s *Store) RecordImport(ctx context.Context, run engine.ImportRun) error {
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO import_log
		(id, import_type, month, records_imported, records_deleted, records_fetched,
		 success, error_message, duration_ms, triggered_by, created_at)
		VALUES (`+placeholders(11)+`)`,
		run.ID, string(run.Kind), run.Month, run.Imported, run.Deleted, run.Fetched,
		run.Success, nullString(run.Error), run.DurationMS, nullString(run.TriggeredBy),
		created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// =============================================================================
// OFFICER DIRECTORY (engine.OfficerStore interface)
// =============================================================================

// SaveOfficerBranch inserts or updates an officer's home branch.
func (s *Store) SaveOfficerBranch(ctx context.Context, ob engine.OfficerBranch) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO title_officer_branches (officer_name, branch, is_active, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (officer_name) DO UPDATE SET
			branch = excluded.branch,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		ob.OfficerName, ob.Branch, ob.Active, nowText(),
	)
	if err != nil {
		return fmt.Errorf("failed to save officer branch: %w", err)
	}
	return nil
}

// DeactivateOfficer keeps the row but removes it from the directory.
func (s *Store) DeactivateOfficer(ctx context.Context, officerName string) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE title_officer_branches SET is_active = ?, updated_at = ? WHERE officer_name = ?`,
		false, nowText(), officerName,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate officer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("officer %q: %w", officerName, engine.ErrNotFound)
	}
	return nil
}

// OfficerBranches returns the active directory entries.
func (s *Store) OfficerBranches(ctx context.Context) ([]engine.OfficerBranch, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT officer_name, branch, is_active
		FROM title_officer_branches
		WHERE is_active = ?
		ORDER BY officer_name`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query officer branches: %w", err)
	}
	defer rows.Close()

	var out []engine.OfficerBranch
	for rows.Next() {
		var ob engine.OfficerBranch
		if err := rows.Scan(&ob.OfficerName, &ob.Branch, &ob.Active); err != nil {
			return nil, fmt.Errorf("failed to scan officer branch: %w", err)
		}
		out = append(out, ob)
	}
	return out, rows.Err()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears all data (for demo scenario loading).
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"revenue_line_items", "order_summary", "open_orders",
			"title_officer_branches", "import_log",
		} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func dayArg(d *calendar.Day) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func parseDay(ns sql.NullString) *calendar.Day {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := calendar.ParseDay(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339)
}
