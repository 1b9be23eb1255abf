/*
Package discrepancy runs the data-quality battery for one month.

PURPOSE:
  Twelve independent SQL checks look for data that would make the reports
  wrong or misleading: orders with no revenue, missing personnel, branches
  that collapsed month over month, duplicate file numbers and so on. Each
  check yields zero or more flagged rows with a fixed severity.

ISOLATION:
  A check whose query fails is logged and skipped. The other checks and the
  summary are still returned; the failed check's id is listed in
  Report.Failed.

ORDERING:
  Checks are returned critical first, then warning, then info. Within a
  severity they keep battery order.

PORTABILITY:
  Queries use only SQL that SQLite and PostgreSQL share. Ratios, percentage
  changes and rounding are computed here, not in SQL.

SEE ALSO:
  - discrepancy/checks.go: The battery
  - store/sqlstore/sqlstore.go: Store.QueryContext satisfies Querier
*/
package discrepancy

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// MaxDetails caps the rows attached to one check. Count is always the full
// number of flagged rows.
const MaxDetails = 20

// Querier runs a read query written with "?" placeholders.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// RESULT TYPES
// =============================================================================

type Severity string

const (
	Critical Severity = "critical"
	Warning  Severity = "warning"
	Info     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case Critical:
		return 0
	case Warning:
		return 1
	default:
		return 2
	}
}

// Row is one flagged record, keyed by column name.
type Row map[string]any

func (r Row) Text(col string) string {
	s, _ := r[col].(string)
	return s
}

func (r Row) Int(col string) int {
	n, _ := r[col].(int)
	return n
}

func (r Row) Money(col string) decimal.Decimal {
	d, _ := r[col].(decimal.Decimal)
	return d
}

// Check is one check that flagged at least one row.
type Check struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Count       int      `json:"count"`
	Details     []Row    `json:"details"`
	Columns     []string `json:"columns"`
}

type Summary struct {
	TotalChecks int  `json:"total_checks"`
	IssuesFound int  `json:"issues_found"`
	Critical    int  `json:"critical"`
	Warnings    int  `json:"warnings"`
	Info        int  `json:"info"`
	Clean       bool `json:"clean"`
}

// Report is the outcome of one battery run.
type Report struct {
	Summary    Summary  `json:"summary"`
	Checks     []Check  `json:"checks"`
	Failed     []string `json:"failed,omitempty"`
	Month      string   `json:"month"`
	PriorMonth string   `json:"prior_month"`
}

// =============================================================================
// RUNNER
// =============================================================================

type Runner struct {
	q      Querier
	log    *logrus.Logger
	checks []definition
}

func NewRunner(q Querier, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{q: q, log: log, checks: battery}
}

// Run runs the battery for (month, year).
func (r *Runner) Run(ctx context.Context, month, year int) (*Report, error) {
	ym, err := calendar.NewYearMonth(month, year)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, err)
	}
	return r.RunMonth(ctx, ym)
}

// RunMonth runs every check against ym and its prior month. The only error
// returned is a cancelled context; individual check failures are recorded
// in Report.Failed.
func (r *Runner) RunMonth(ctx context.Context, ym calendar.YearMonth) (*Report, error) {
	p := params{
		month:   ym,
		prior:   ym.Prev(),
		closing: calendar.Period{Start: ym.AddMonths(-3).First(), End: ym.Last()},
	}

	report := &Report{
		Checks:     []Check{},
		Month:      p.month.String(),
		PriorMonth: p.prior.String(),
	}
	for _, def := range r.checks {
		check, err := r.runOne(ctx, def, p)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"module": "discrepancy",
				"check":  def.id,
				"month":  p.month.String(),
			}).WithError(err).Warn("discrepancy check failed, skipping")
			report.Failed = append(report.Failed, def.id)
			continue
		}
		if check != nil {
			report.Checks = append(report.Checks, *check)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(report.Checks, func(i, j int) bool {
		return report.Checks[i].Severity.rank() < report.Checks[j].Severity.rank()
	})
	report.Summary = summarize(len(r.checks), report.Checks)
	return report, nil
}

// runOne returns nil when the check flags nothing.
func (r *Runner) runOne(ctx context.Context, def definition, p params) (*Check, error) {
	rows, err := r.q.QueryContext(ctx, def.query, def.args(p)...)
	if err != nil {
		return nil, err
	}
	flagged, err := scanRows(rows, def.scan)
	if err != nil {
		return nil, err
	}
	if def.refine != nil {
		flagged = def.refine(flagged)
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	details := flagged
	if len(details) > MaxDetails {
		details = details[:MaxDetails]
	}
	n := len(flagged)
	if def.count != nil {
		n = def.count(flagged)
	}
	return &Check{
		ID:          def.id,
		Severity:    def.severity,
		Title:       def.title,
		Description: def.describe(flagged),
		Count:       n,
		Details:     details,
		Columns:     def.columnNames(),
	}, nil
}

func summarize(total int, checks []Check) Summary {
	s := Summary{TotalChecks: total, IssuesFound: len(checks)}
	for _, c := range checks {
		switch c.Severity {
		case Critical:
			s.Critical++
		case Warning:
			s.Warnings++
		case Info:
			s.Info++
		}
	}
	s.Clean = len(checks) == 0
	return s
}

// =============================================================================
// SCANNING
// =============================================================================

type kind int

const (
	text kind = iota
	count
	money
)

type column struct {
	name string
	kind kind
}

func scanRows(rows *sql.Rows, cols []column) ([]Row, error) {
	defer rows.Close()

	var out []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		for i, c := range cols {
			switch c.kind {
			case count:
				dest[i] = new(sql.NullInt64)
			case money:
				dest[i] = new(decimal.NullDecimal)
			default:
				dest[i] = new(sql.NullString)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			switch v := dest[i].(type) {
			case *sql.NullInt64:
				row[c.name] = engine.NullIntOrZero(*v)
			case *decimal.NullDecimal:
				row[c.name] = engine.Round2(engine.NullDecimalOrZero(*v))
			case *sql.NullString:
				row[c.name] = v.String
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
