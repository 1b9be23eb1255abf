package discrepancy

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/calendar"
)

// params are the dates one battery run is evaluated against.
type params struct {
	month   calendar.YearMonth
	prior   calendar.YearMonth
	closing calendar.Period
}

func (p params) monthArg() []any { return []any{p.month.String()} }
func (p params) bothArgs() []any { return []any{p.month.String(), p.prior.String()} }
func (p params) closingArgs() []any {
	start, end := p.closing.Start.String(), p.closing.End.String()
	return []any{start, end, start, end}
}

type definition struct {
	id       string
	severity Severity
	title    string
	query    string
	args     func(p params) []any
	scan     []column

	// extra are columns added by refine, in display order after scan.
	extra []string

	// refine filters or decorates the scanned rows. nil keeps them.
	refine func(rows []Row) []Row

	// count overrides len(rows) as the flagged count.
	count func(rows []Row) int

	describe func(rows []Row) string
}

func (d definition) columnNames() []string {
	names := make([]string, 0, len(d.scan)+len(d.extra))
	for _, c := range d.scan {
		names = append(names, c.name)
	}
	return append(names, d.extra...)
}

var hundred = decimal.NewFromInt(100)

// ratioPct is closed/opened*100 to one decimal; 0 when nothing opened.
func ratioPct(opened, closed int) decimal.Decimal {
	if opened <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(closed)).Mul(hundred).Div(decimal.NewFromInt(int64(opened))).Round(1)
}

// droppedBelow reports whether current fell more than pct percent below a
// positive prior.
func droppedBelow(current, prior decimal.Decimal, pct int64) bool {
	if !prior.IsPositive() {
		return false
	}
	change := current.Sub(prior).Mul(hundred)
	return change.LessThan(prior.Mul(decimal.NewFromInt(-pct)))
}

func pctChange(current, prior decimal.Decimal) decimal.Decimal {
	return current.Sub(prior).Div(prior).Mul(hundred).Round(1)
}

func countf(format string) func(rows []Row) string {
	return func(rows []Row) string { return fmt.Sprintf(format, len(rows)) }
}

var orderColumns = []column{
	{"file_number", text}, {"branch", text}, {"category", text}, {"sales_rep", text},
}

func withColumns(base []column, more ...column) []column {
	out := make([]column, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}

// =============================================================================
// THE BATTERY
// =============================================================================

var battery = []definition{
	// -------------------------------------------------------------------------
	// Revenue anomalies
	// -------------------------------------------------------------------------
	{
		id:       "zero-revenue",
		severity: Critical,
		title:    "Closed Orders with $0 Revenue",
		query: `SELECT file_number, branch, category, sales_rep, transaction_date
			FROM order_summary
			WHERE fetch_month = ? AND total_revenue = 0
			ORDER BY transaction_date DESC, file_number`,
		args:     params.monthArg,
		scan:     withColumns(orderColumns, column{"transaction_date", text}),
		describe: countf("%d orders were sent to accounting with zero revenue. Bill codes may be missing or the sync may have dropped charges."),
	},
	{
		id:       "high-revenue",
		severity: Warning,
		title:    "High Revenue Orders (> $10,000)",
		query: `SELECT file_number, branch, category, sales_rep, total_revenue, transaction_date
			FROM order_summary
			WHERE fetch_month = ? AND total_revenue > 10000
			ORDER BY total_revenue DESC, file_number`,
		args:     params.monthArg,
		scan:     withColumns(orderColumns, column{"total_revenue", money}, column{"transaction_date", text}),
		describe: countf("%d orders have revenue above $10,000. Confirm they are not data entry errors."),
	},
	{
		id:       "missing-escrow-fee",
		severity: Critical,
		title:    "T&E Orders Missing Escrow Revenue",
		query: `SELECT file_number, branch, sales_rep, title_revenue, escrow_revenue, total_revenue, transaction_date
			FROM order_summary
			WHERE fetch_month = ?
				AND order_type = 'Title & Escrow'
				AND (escrow_revenue = 0 OR escrow_revenue IS NULL)
				AND total_revenue > 0
			ORDER BY total_revenue DESC, file_number`,
		args: params.monthArg,
		scan: []column{
			{"file_number", text}, {"branch", text}, {"sales_rep", text},
			{"title_revenue", money}, {"escrow_revenue", money}, {"total_revenue", money},
			{"transaction_date", text},
		},
		describe: countf(`%d "Title & Escrow" orders carry title revenue but no escrow revenue. The escrow fee may not have been billed.`),
	},

	// -------------------------------------------------------------------------
	// Data integrity
	// -------------------------------------------------------------------------
	{
		id:       "closed-no-open",
		severity: Warning,
		title:    "Closed Orders Never Opened",
		query: `SELECT os.file_number, os.branch, os.category, os.sales_rep, os.transaction_date
			FROM order_summary os
			LEFT JOIN open_orders oo ON os.file_number = oo.file_number
			WHERE os.fetch_month = ? AND oo.file_number IS NULL
			ORDER BY os.transaction_date DESC, os.file_number`,
		args:     params.monthArg,
		scan:     withColumns(orderColumns, column{"transaction_date", text}),
		describe: countf("%d orders have revenue but never appear in the open-order data. They may predate open-order tracking, or the open-order import is incomplete."),
	},
	{
		id:       "unknown-branch",
		severity: Critical,
		title:    "Orders with Unknown Branch",
		query: `SELECT file_number, branch, category, sales_rep, total_revenue, transaction_date
			FROM order_summary
			WHERE fetch_month = ? AND (branch IS NULL OR branch = '' OR branch = 'Unknown')
			ORDER BY total_revenue DESC, file_number`,
		args:     params.monthArg,
		scan:     withColumns(orderColumns, column{"total_revenue", money}, column{"transaction_date", text}),
		describe: countf("%d orders have an unrecognized file number suffix and fall outside every branch report."),
	},
	{
		id:       "missing-personnel",
		severity: Warning,
		title:    "Closed Orders Missing Personnel",
		query: `SELECT file_number, branch, category,
				CASE WHEN sales_rep IS NULL OR sales_rep = '' THEN 'Missing Sales Rep' ELSE '' END,
				CASE WHEN title_officer IS NULL OR title_officer = '' THEN 'Missing Title Officer' ELSE '' END,
				total_revenue, transaction_date
			FROM order_summary
			WHERE fetch_month = ? AND total_revenue > 0
				AND (sales_rep IS NULL OR sales_rep = '' OR title_officer IS NULL OR title_officer = '')
			ORDER BY total_revenue DESC, file_number`,
		args: params.monthArg,
		scan: []column{
			{"file_number", text}, {"branch", text}, {"category", text},
			{"missing_sales_rep", text}, {"missing_title_officer", text},
			{"total_revenue", money}, {"transaction_date", text},
		},
		describe: countf("%d closed orders have no sales rep or no title officer. They are credited to Unassigned in the R-14 and Title Officer reports."),
	},

	// -------------------------------------------------------------------------
	// Closing ratio, over the selected month and the three before it
	// -------------------------------------------------------------------------
	{
		id:       "low-closing-ratio",
		severity: Warning,
		title:    "Reps with Closing Ratio Below 25%",
		query:    closingRatioQuery(10),
		args:     params.closingArgs,
		scan:     closingColumns,
		extra:    []string{"ratio"},
		refine: closingRatioFilter(func(r decimal.Decimal) bool {
			return r.LessThan(decimal.NewFromInt(25))
		}, true),
		describe: countf("%d sales reps closed under 25%% of what they opened over the last 4 months (10 orders minimum). The pipeline may hold stale orders."),
	},
	{
		id:       "high-closing-ratio",
		severity: Info,
		title:    "Reps with Closing Ratio Above 100%",
		query:    closingRatioQuery(5),
		args:     params.closingArgs,
		scan:     closingColumns,
		extra:    []string{"ratio"},
		refine: closingRatioFilter(func(r decimal.Decimal) bool {
			return r.GreaterThan(hundred)
		}, false),
		describe: countf("%d sales reps closed more orders than they opened over the last 4 months. They are working down an older backlog, or open-order data has a gap."),
	},

	// -------------------------------------------------------------------------
	// Month over month
	// -------------------------------------------------------------------------
	{
		id:       "branch-revenue-drop",
		severity: Critical,
		title:    "Branch Revenue Dropped >30%",
		query: `WITH cur AS (
				SELECT branch, SUM(total_revenue) AS rev
				FROM order_summary WHERE fetch_month = ? GROUP BY branch
			),
			prev AS (
				SELECT branch, SUM(total_revenue) AS rev
				FROM order_summary WHERE fetch_month = ? GROUP BY branch
			)
			SELECT c.branch, c.rev, COALESCE(p.rev, 0)
			FROM cur c
			LEFT JOIN prev p ON c.branch = p.branch`,
		args:  params.bothArgs,
		scan:  []column{{"branch", text}, {"current_rev", money}, {"prior_rev", money}},
		extra: []string{"pct_change"},
		refine: func(rows []Row) []Row {
			var out []Row
			for _, r := range rows {
				cur, prior := r.Money("current_rev"), r.Money("prior_rev")
				if !droppedBelow(cur, prior, 30) {
					continue
				}
				r["pct_change"] = pctChange(cur, prior)
				out = append(out, r)
			}
			sort.SliceStable(out, func(i, j int) bool {
				return out[i]["pct_change"].(decimal.Decimal).LessThan(out[j]["pct_change"].(decimal.Decimal))
			})
			return out
		},
		describe: countf("%d branches lost more than 30%% of their revenue compared to the prior month."),
	},
	{
		id:       "rep-went-zero",
		severity: Warning,
		title:    "Reps with Zero Orders (Had Activity Prior)",
		query: `WITH cur AS (
				SELECT sales_rep, COUNT(*) AS cnt, SUM(total_revenue) AS rev
				FROM order_summary
				WHERE fetch_month = ? AND sales_rep IS NOT NULL AND sales_rep != ''
				GROUP BY sales_rep
			),
			prev AS (
				SELECT sales_rep, COUNT(*) AS cnt, SUM(total_revenue) AS rev
				FROM order_summary
				WHERE fetch_month = ? AND sales_rep IS NOT NULL AND sales_rep != ''
				GROUP BY sales_rep
			)
			SELECT p.sales_rep, p.cnt, p.rev, COALESCE(c.cnt, 0), COALESCE(c.rev, 0)
			FROM prev p
			LEFT JOIN cur c ON p.sales_rep = c.sales_rep
			WHERE COALESCE(c.cnt, 0) = 0 AND p.cnt >= 3
			ORDER BY p.rev DESC, p.sales_rep`,
		args: params.bothArgs,
		scan: []column{
			{"sales_rep", text}, {"prior_orders", count}, {"prior_rev", money},
			{"current_orders", count}, {"current_rev", money},
		},
		describe: countf("%d sales reps who closed 3 or more orders last month have closed none this month. They may have left or been reassigned, or the month is still young."),
	},
	{
		id:       "pipeline-drop",
		severity: Critical,
		title:    "Order Pipeline Dropped >30%",
		query: `SELECT
				(SELECT COUNT(*) FROM open_orders WHERE open_month = ?),
				(SELECT COUNT(*) FROM open_orders WHERE open_month = ?)`,
		args:  params.bothArgs,
		scan:  []column{{"current_opens", count}, {"prior_opens", count}},
		extra: []string{"pct_change"},
		refine: func(rows []Row) []Row {
			var out []Row
			for _, r := range rows {
				cur := decimal.NewFromInt(int64(r.Int("current_opens")))
				prior := decimal.NewFromInt(int64(r.Int("prior_opens")))
				if !droppedBelow(cur, prior, 30) {
					continue
				}
				r["pct_change"] = pctChange(cur, prior)
				out = append(out, r)
			}
			return out
		},
		count: func([]Row) int { return 1 },
		describe: func(rows []Row) string {
			r := rows[0]
			return fmt.Sprintf("New orders fell %s%% compared to the prior month (%d vs %d). The market may be slowing, or an open-order import is missing.",
				r["pct_change"].(decimal.Decimal).Abs().String(), r.Int("current_opens"), r.Int("prior_opens"))
		},
	},
	{
		id:       "duplicate-orders",
		severity: Critical,
		title:    "Duplicate File Numbers",
		query: `SELECT file_number, COUNT(*), SUM(total_revenue)
			FROM order_summary
			WHERE fetch_month = ?
			GROUP BY file_number
			HAVING COUNT(*) > 1
			ORDER BY COUNT(*) DESC, file_number`,
		args:     params.monthArg,
		scan:     []column{{"file_number", text}, {"occurrences", count}, {"total_rev", money}},
		describe: countf("%d file numbers appear more than once in the same month, inflating revenue and order counts."),
	},
}

// =============================================================================
// CLOSING RATIO
// =============================================================================
// Opened and closed are independent populations: open_orders by received
// date, order_summary by closing date. Both over the same window.

var closingColumns = []column{{"sales_rep", text}, {"open_cnt", count}, {"close_cnt", count}}

func closingRatioQuery(minOpened int) string {
	return fmt.Sprintf(`WITH opened AS (
			SELECT sales_rep, COUNT(*) AS open_cnt
			FROM open_orders
			WHERE received_date >= ? AND received_date <= ?
				AND sales_rep IS NOT NULL AND sales_rep != ''
			GROUP BY sales_rep
		),
		closed AS (
			SELECT sales_rep, COUNT(*) AS close_cnt
			FROM order_summary
			WHERE transaction_date >= ? AND transaction_date <= ?
				AND sales_rep IS NOT NULL AND sales_rep != ''
			GROUP BY sales_rep
		)
		SELECT o.sales_rep, o.open_cnt, COALESCE(c.close_cnt, 0)
		FROM opened o
		LEFT JOIN closed c ON o.sales_rep = c.sales_rep
		WHERE o.open_cnt >= %d
		ORDER BY o.sales_rep`, minOpened)
}

func closingRatioFilter(keep func(ratio decimal.Decimal) bool, ascending bool) func([]Row) []Row {
	return func(rows []Row) []Row {
		var out []Row
		for _, r := range rows {
			ratio := ratioPct(r.Int("open_cnt"), r.Int("close_cnt"))
			if !keep(ratio) {
				continue
			}
			r["ratio"] = ratio
			out = append(out, r)
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i]["ratio"].(decimal.Decimal), out[j]["ratio"].(decimal.Decimal)
			if ascending {
				return a.LessThan(b)
			}
			return a.GreaterThan(b)
		})
		return out
	}
}
