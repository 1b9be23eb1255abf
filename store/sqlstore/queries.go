package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// REPORT SOURCE (engine.ReportSource interface)
// =============================================================================

const orderColumns = `
	file_number, branch, order_type, trans_type, category, sales_rep, title_officer,
	escrow_officer, title_revenue, escrow_revenue, tsg_revenue, underwriter_revenue,
	transaction_date, received_date, disbursement_date, escrow_closed_date,
	fetch_month, line_item_count`

const openOrderColumns = `
	file_number, received_date, settlement_date, trans_type, order_type, product_type,
	profile, branch, category, sales_rep, title_officer, escrow_officer,
	escrow_assistant, marketing_source, main_contact, open_month`

// OrderSummaries returns a fetch month's orders sorted by file number.
func (s *Store) OrderSummaries(ctx context.Context, month calendar.YearMonth, f engine.OrderFilter) ([]engine.OrderSummary, error) {
	query := `SELECT ` + orderColumns + ` FROM order_summary WHERE fetch_month = ?`
	args := []any{month.String()}
	if f.ClosedOnly {
		query += ` AND transaction_date IS NOT NULL`
	}
	query, args = withCategories(query, args, f.Categories)
	query += ` ORDER BY file_number, id`

	return s.queryOrders(ctx, query, args...)
}

// OrderByFileNumber returns every summary and line item stored for a file
// number, across fetch months.
func (s *Store) OrderByFileNumber(ctx context.Context, fileNumber string) (*OrderDetail, error) {
	orders, err := s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM order_summary WHERE file_number = ? ORDER BY fetch_month DESC, id`,
		fileNumber)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s: %w", fileNumber, engine.ErrNotFound)
	}

	items, err := s.lineItems(ctx, fileNumber)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{FileNumber: fileNumber, Summaries: orders, LineItems: items}, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]engine.OrderSummary, error) {
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order summaries: %w", err)
	}
	defer rows.Close()

	var out []engine.OrderSummary
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (engine.OrderSummary, error) {
	var (
		o                                         engine.OrderSummary
		orderType, transType, category            sql.NullString
		salesRep, titleOfficer, escrowOfficer     sql.NullString
		title, escrow, tsg, underwriter           decimal.NullDecimal
		txDate, received, disbursed, escrowClosed sql.NullString
		fetchMonth                                string
		count                                     sql.NullInt64
	)
	err := rows.Scan(
		&o.FileNumber, &o.Branch, &orderType, &transType, &category,
		&salesRep, &titleOfficer, &escrowOfficer,
		&title, &escrow, &tsg, &underwriter,
		&txDate, &received, &disbursed, &escrowClosed,
		&fetchMonth, &count,
	)
	if err != nil {
		return o, fmt.Errorf("failed to scan order summary: %w", err)
	}

	o.OrderType = orderType.String
	o.TransType = transType.String
	o.Category = engine.Category(category.String)
	o.SalesRep = salesRep.String
	o.TitleOfficer = titleOfficer.String
	o.EscrowOfficer = escrowOfficer.String
	o.TitleRevenue = engine.NullDecimalOrZero(title)
	o.EscrowRevenue = engine.NullDecimalOrZero(escrow)
	o.TSGRevenue = engine.NullDecimalOrZero(tsg)
	o.UnderwriterRevenue = engine.NullDecimalOrZero(underwriter)
	o.TransactionDate = parseDay(txDate)
	o.ReceivedDate = parseDay(received)
	o.DisbursementDate = parseDay(disbursed)
	o.EscrowClosedDate = parseDay(escrowClosed)
	o.FetchMonth, _ = calendar.ParseYearMonth(fetchMonth)
	o.LineItemCount = engine.NullIntOrZero(count)
	return o, nil
}

func (s *Store) lineItems(ctx context.Context, fileNumber string) ([]engine.LineItem, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT file_number, transaction_date, received_date, bill_code, description, amount,
		       sales_rep, title_officer, escrow_officer, order_type, trans_type, fetch_month
		FROM revenue_line_items
		WHERE file_number = ?
		ORDER BY fetch_month DESC, id`, fileNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var out []engine.LineItem
	for rows.Next() {
		var (
			it                                    engine.LineItem
			txDate, received, description         sql.NullString
			salesRep, titleOfficer, escrowOfficer sql.NullString
			orderType, transType                  sql.NullString
			amount                                decimal.NullDecimal
			fetchMonth                            string
		)
		if err := rows.Scan(&it.FileNumber, &txDate, &received, &it.BillCode, &description, &amount,
			&salesRep, &titleOfficer, &escrowOfficer, &orderType, &transType, &fetchMonth); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		it.TransactionDate = parseDay(txDate)
		it.ReceivedDate = parseDay(received)
		it.Description = description.String
		it.Amount = engine.NullDecimalOrZero(amount)
		it.SalesRep = salesRep.String
		it.TitleOfficer = titleOfficer.String
		it.EscrowOfficer = escrowOfficer.String
		it.OrderType = orderType.String
		it.TransType = transType.String
		it.FetchMonth, _ = calendar.ParseYearMonth(fetchMonth)
		out = append(out, it)
	}
	return out, rows.Err()
}

// OpenOrdersForMonth returns an open month's orders.
func (s *Store) OpenOrdersForMonth(ctx context.Context, month calendar.YearMonth, cats []engine.Category) ([]engine.OpenOrder, error) {
	query, args := withCategories(
		`SELECT `+openOrderColumns+` FROM open_orders WHERE open_month = ?`,
		[]any{month.String()}, cats)
	return s.queryOpenOrders(ctx, query+` ORDER BY file_number`, args...)
}

// OpenOrdersReceivedOn returns open orders received on day, whatever batch
// they were filed under.
func (s *Store) OpenOrdersReceivedOn(ctx context.Context, day calendar.Day, cats []engine.Category) ([]engine.OpenOrder, error) {
	query, args := withCategories(
		`SELECT `+openOrderColumns+` FROM open_orders WHERE received_date = ?`,
		[]any{day.String()}, cats)
	return s.queryOpenOrders(ctx, query+` ORDER BY open_month, file_number`, args...)
}

func (s *Store) queryOpenOrders(ctx context.Context, query string, args ...any) ([]engine.OpenOrder, error) {
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var out []engine.OpenOrder
	for rows.Next() {
		var (
			o                                                engine.OpenOrder
			received, settlement                             sql.NullString
			transType, orderType, productType, profile       sql.NullString
			category                                         string
			salesRep, titleOfficer, escrowOfficer, assistant sql.NullString
			marketing, contact                               sql.NullString
			openMonth                                        string
		)
		err := rows.Scan(&o.FileNumber, &received, &settlement, &transType, &orderType, &productType,
			&profile, &o.Branch, &category, &salesRep, &titleOfficer, &escrowOfficer,
			&assistant, &marketing, &contact, &openMonth)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open order: %w", err)
		}
		o.ReceivedDate = parseDay(received)
		o.SettlementDate = parseDay(settlement)
		o.TransType = transType.String
		o.OrderType = orderType.String
		o.ProductType = productType.String
		o.Profile = profile.String
		o.Category = engine.Category(category)
		o.SalesRep = salesRep.String
		o.TitleOfficer = titleOfficer.String
		o.EscrowOfficer = escrowOfficer.String
		o.EscrowAssistant = assistant.String
		o.MarketingSource = marketing.String
		o.MainContact = contact.String
		o.OpenMonth, _ = calendar.ParseYearMonth(openMonth)
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOpenedBy counts open orders received within p, grouped by person.
func (s *Store) CountOpenedBy(ctx context.Context, key engine.PersonKey, p calendar.Period, cats []engine.Category) (map[string]int, error) {
	return s.countBy(ctx, "open_orders", "received_date", key, p, cats)
}

// CountClosedBy counts order summaries closing within p, grouped by person.
// Every fetch month contributes; the window alone decides membership.
func (s *Store) CountClosedBy(ctx context.Context, key engine.PersonKey, p calendar.Period, cats []engine.Category) (map[string]int, error) {
	return s.countBy(ctx, "order_summary", "transaction_date", key, p, cats)
}

func (s *Store) countBy(ctx context.Context, table, dateCol string, key engine.PersonKey, p calendar.Period, cats []engine.Category) (map[string]int, error) {
	col, err := personColumn(key)
	if err != nil {
		return nil, err
	}
	query, args := withCategories(
		fmt.Sprintf(`SELECT COALESCE(%[1]s, ''), COUNT(*) FROM %[2]s WHERE %[3]s >= ? AND %[3]s <= ?`, col, table, dateCol),
		[]any{p.Start.String(), p.End.String()}, cats)
	query += fmt.Sprintf(` GROUP BY COALESCE(%s, '')`, col)

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s by %s: %w", table, col, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[name] += n
	}
	return counts, rows.Err()
}

func personColumn(key engine.PersonKey) (string, error) {
	switch key {
	case engine.BySalesRep:
		return "sales_rep", nil
	case engine.ByTitleOfficer:
		return "title_officer", nil
	default:
		return "", fmt.Errorf("unknown person key %q", key)
	}
}

func withCategories(query string, args []any, cats []engine.Category) (string, []any) {
	if len(cats) == 0 {
		return query, args
	}
	query += ` AND category IN (` + placeholders(len(cats)) + `)`
	for _, c := range cats {
		args = append(args, string(c))
	}
	return query, args
}

// =============================================================================
// API LOOKUPS
// =============================================================================

// MonthCount summarises one fetch month.
type MonthCount struct {
	Month   string          `json:"month"`
	Orders  int             `json:"orders"`
	Closed  int             `json:"closed"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Months lists fetch months with data, newest first.
func (s *Store) Months(ctx context.Context) ([]MonthCount, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT fetch_month,
		       COUNT(*),
		       SUM(CASE WHEN transaction_date IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(total_revenue)
		FROM order_summary
		GROUP BY fetch_month
		ORDER BY fetch_month DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query months: %w", err)
	}
	defer rows.Close()

	var out []MonthCount
	for rows.Next() {
		var (
			m       MonthCount
			closed  sql.NullInt64
			revenue decimal.NullDecimal
		)
		if err := rows.Scan(&m.Month, &m.Orders, &closed, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan month: %w", err)
		}
		m.Closed = engine.NullIntOrZero(closed)
		m.Revenue = engine.Round2(engine.NullDecimalOrZero(revenue))
		out = append(out, m)
	}
	return out, rows.Err()
}

// ImportLog returns the most recent import runs first.
func (s *Store) ImportLog(ctx context.Context, limit int) ([]engine.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.QueryContext(ctx, `
		SELECT id, import_type, month, records_imported, records_deleted, records_fetched,
		       success, error_message, duration_ms, triggered_by, created_at
		FROM import_log
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import log: %w", err)
	}
	defer rows.Close()

	var out []engine.ImportRun
	for rows.Next() {
		var (
			run             engine.ImportRun
			kind, created   string
			errMsg, trigger sql.NullString
		)
		if err := rows.Scan(&run.ID, &kind, &run.Month, &run.Imported, &run.Deleted, &run.Fetched,
			&run.Success, &errMsg, &run.DurationMS, &trigger, &created); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		run.Kind = engine.ImportKind(kind)
		run.Error = errMsg.String
		run.TriggeredBy = trigger.String
		run.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, run)
	}
	return out, rows.Err()
}

// OrderDetail is everything stored for one file number.
type OrderDetail struct {
	FileNumber string                `json:"file_number"`
	Summaries  []engine.OrderSummary `json:"summaries"`
	LineItems  []engine.LineItem     `json:"line_items"`
}

// Bucket is one group of a breakdown.
type Bucket struct {
	Name    string          `json:"name"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// MonthStats is the headline breakdown of a fetch month.
type MonthStats struct {
	Month      string          `json:"month"`
	Orders     int             `json:"orders"`
	Closed     int             `json:"closed"`
	Revenue    decimal.Decimal `json:"revenue"`
	ByBranch   []Bucket        `json:"by_branch"`
	ByCategory []Bucket        `json:"by_category"`
}

// MonthStats breaks a fetch month down by stored branch and category.
func (s *Store) MonthStats(ctx context.Context, month calendar.YearMonth) (*MonthStats, error) {
	orders, err := s.OrderSummaries(ctx, month, engine.OrderFilter{})
	if err != nil {
		return nil, err
	}

	stats := &MonthStats{Month: month.String(), Revenue: decimal.Zero}
	branches := make(map[string]*Bucket)
	categories := make(map[string]*Bucket)
	for _, o := range orders {
		rev := o.TotalRevenue()
		stats.Orders++
		if o.IsClosed() {
			stats.Closed++
		}
		stats.Revenue = stats.Revenue.Add(rev)
		addBucket(branches, o.Branch, rev)
		addBucket(categories, string(o.Category), rev)
	}
	stats.Revenue = engine.Round2(stats.Revenue)
	stats.ByBranch = sortedBuckets(branches)
	stats.ByCategory = sortedBuckets(categories)
	return stats, nil
}

// OpenOrderCount is one (branch, category) cell of the pipeline summary.
type OpenOrderCount struct {
	Branch   string          `json:"branch"`
	Category engine.Category `json:"category"`
	Count    int             `json:"count"`
}

// OpenOrderSummary counts an open month's orders by stored branch and
// category.
func (s *Store) OpenOrderSummary(ctx context.Context, month calendar.YearMonth) ([]OpenOrderCount, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT branch, category, COUNT(*)
		FROM open_orders
		WHERE open_month = ?
		GROUP BY branch, category
		ORDER BY branch, category`, month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to summarise open orders: %w", err)
	}
	defer rows.Close()

	out := []OpenOrderCount{}
	for rows.Next() {
		var (
			c        OpenOrderCount
			category string
		)
		if err := rows.Scan(&c.Branch, &category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan open order count: %w", err)
		}
		c.Category = engine.Category(category)
		out = append(out, c)
	}
	return out, rows.Err()
}

func addBucket(m map[string]*Bucket, name string, rev decimal.Decimal) {
	b, ok := m[name]
	if !ok {
		b = &Bucket{Name: name, Revenue: decimal.Zero}
		m[name] = b
	}
	b.Orders++
	b.Revenue = b.Revenue.Add(rev)
}

func sortedBuckets(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		b.Revenue = engine.Round2(b.Revenue)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out
}
