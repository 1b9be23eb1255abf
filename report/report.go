/*
Package report builds the production reports from stored order rows.

PURPOSE:
  Every report follows the same skeleton:
    1. Compute the date window for the selected month (calendar.WindowFor)
    2. Read order summaries for the selected and prior fetch months, plus
       open orders and closing-ratio counts where the report needs them
    3. Bucket rows into branch -> category or branch -> person -> category
    4. Accumulate today / MTD / prior counts and revenue per bucket
    5. Attach closing ratios, prune inactive people, order the output

REPORTS:
  daily-revenue      branch -> category, closed and open counts, revenue
  r14-branches       branch -> sales rep -> category, closing ratio
  r14-ranking        sales reps ranked by MTD revenue, with projection
  title-officer      officer branch -> title officer -> Purchase/Refinance
  escrow-production  branch -> sales rep, Escrow orders only
  tsg-production     branch -> sales rep, TSG orders only

BRANCH RESOLUTION:
  Each report has its own engine.BranchStrategy (Options.Strategies). All
  reports default to the officer directory; the two strategies give
  different numbers and are never swapped silently.

OUTPUT:
  Reports are ordered trees of slices, never maps: branches sort
  alphabetically with "Unassigned" last, people likewise. A month with no
  rows at all returns an empty report with Meta.NoData set.

SEE ALSO:
  - engine/classify.go: Branch and category rules
  - calendar/window.go: Date window
*/
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// REPORT NAMES
// =============================================================================

type Name string

const (
	DailyRevenue     Name = "daily-revenue"
	R14Branches      Name = "r14-branches"
	R14Ranking       Name = "r14-ranking"
	TitleOfficer     Name = "title-officer"
	EscrowProduction Name = "escrow-production"
	TSGProduction    Name = "tsg-production"
)

// Names lists every report in display order.
func Names() []Name {
	return []Name{DailyRevenue, R14Branches, R14Ranking, TitleOfficer, EscrowProduction, TSGProduction}
}

type buildFunc func(b *Builder, ctx context.Context, r *run) (*Result, error)

var registry = map[Name]buildFunc{
	DailyRevenue:     (*Builder).dailyRevenue,
	R14Branches:      (*Builder).r14Branches,
	R14Ranking:       (*Builder).r14Ranking,
	TitleOfficer:     (*Builder).titleOfficer,
	EscrowProduction: (*Builder).escrowProduction,
	TSGProduction:    (*Builder).tsgProduction,
}

// ParseName validates a report name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if _, ok := registry[n]; !ok {
		return "", fmt.Errorf("%q: %w", s, engine.ErrUnknownReport)
	}
	return n, nil
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options holds the per-deployment report choices.
type Options struct {
	// Strategies picks the branch resolution per report. Missing entries use
	// the officer directory.
	Strategies map[Name]engine.BranchStrategy

	// DailyIncludeEscrow adds the Escrow category to the Daily Revenue report.
	DailyIncludeEscrow bool
}

func DefaultOptions() Options {
	return Options{Strategies: map[Name]engine.BranchStrategy{}}
}

func (o Options) strategy(n Name) engine.BranchStrategy {
	if s, ok := o.Strategies[n]; ok && s.Valid() {
		return s
	}
	return engine.BranchByOfficer
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the payload of every report.
type Result struct {
	Name       Name            `json:"name"`
	Report     any             `json:"report"`
	GrandTotal *DailyMetrics   `json:"grand_total,omitempty"`
	Dates      calendar.Window `json:"dates"`
	Meta       Meta            `json:"meta"`
}

type Meta struct {
	CurrentMonth     string                `json:"current_month"`
	PriorMonth       string                `json:"prior_month"`
	BranchStrategy   engine.BranchStrategy `json:"branch_strategy"`
	Categories       []engine.Category     `json:"categories,omitempty"`
	Branches         []string              `json:"branches,omitempty"`
	NoData           bool                  `json:"no_data"`
	UnmappedOfficers []string              `json:"unmapped_officers,omitempty"`
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder builds reports from a ReportSource.
type Builder struct {
	src  engine.ReportSource
	opts Options
	log  *logrus.Logger
	now  func() time.Time
}

func NewBuilder(src engine.ReportSource, opts Options, log *logrus.Logger) *Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{src: src, opts: opts, log: log, now: time.Now}
}

// WithClock replaces the clock used to compute date windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build runs the named report for (month, year).
func (b *Builder) Build(ctx context.Context, name Name, month, year int) (*Result, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, engine.ErrUnknownReport)
	}
	selected, err := calendar.NewYearMonth(month, year)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, err)
	}

	r, err := b.prepare(ctx, name, selected)
	if err != nil {
		return nil, err
	}
	res, err := fn(b, ctx, r)
	if err != nil {
		return nil, fmt.Errorf("build %s for %s: %w", name, selected, err)
	}
	res.Name = name
	res.Dates = r.window
	res.Meta.CurrentMonth = r.window.Month.String()
	res.Meta.PriorMonth = r.window.Prior.String()
	res.Meta.BranchStrategy = r.strategy
	return res, nil
}

// run is the per-call state shared by the builders.
type run struct {
	name      Name
	window    calendar.Window
	strategy  engine.BranchStrategy
	directory *engine.OfficerDirectory
	resolver  engine.BranchResolver
	unmapped  engine.UnmappedOfficers
}

func (b *Builder) prepare(ctx context.Context, name Name, selected calendar.YearMonth) (*run, error) {
	entries, err := b.src.OfficerBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("load officer directory: %w", err)
	}
	dir := engine.NewOfficerDirectory(entries)
	strategy := b.opts.strategy(name)

	return &run{
		name:      name,
		window:    calendar.WindowFor(selected, b.now()),
		strategy:  strategy,
		directory: dir,
		resolver:  engine.NewBranchResolver(strategy, dir),
	}, nil
}

// orders reads the selected and prior fetch months. Prior rows are always
// closed-only; prior revenue is what closed last month.
func (b *Builder) orders(ctx context.Context, r *run, current engine.OrderFilter, cats []engine.Category) (cur, prior []engine.OrderSummary, err error) {
	current.Categories = cats
	cur, err = b.src.OrderSummaries(ctx, r.window.Month, current)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s orders: %w", r.window.Month, err)
	}
	prior, err = b.src.OrderSummaries(ctx, r.window.Prior, engine.OrderFilter{ClosedOnly: true, Categories: cats})
	if err != nil {
		return nil, nil, fmt.Errorf("load %s orders: %w", r.window.Prior, err)
	}
	return cur, prior, nil
}

// closingCounts reads both closing-ratio populations for the window. They
// are queried separately and never joined.
func (b *Builder) closingCounts(ctx context.Context, r *run, key engine.PersonKey, cats []engine.Category) (map[string]ClosingStats, error) {
	period := r.window.ClosingRatio()
	created, err := b.src.CountOpenedBy(ctx, key, period, cats)
	if err != nil {
		return nil, fmt.Errorf("count opened: %w", err)
	}
	closed, err := b.src.CountClosedBy(ctx, key, period, cats)
	if err != nil {
		return nil, fmt.Errorf("count closed: %w", err)
	}

	stats := make(map[string]ClosingStats)
	for name, n := range created {
		s := stats[engine.PersonOrUnassigned(name)]
		s.Created4m += n
		stats[engine.PersonOrUnassigned(name)] = s
	}
	for name, n := range closed {
		s := stats[engine.PersonOrUnassigned(name)]
		s.Closed4m += n
		stats[engine.PersonOrUnassigned(name)] = s
	}
	for name, s := range stats {
		s.ClosingRatio = engine.ClosingRatio(s.Created4m, s.Closed4m)
		stats[name] = s
	}
	return stats, nil
}

// =============================================================================
// ORDERING
// =============================================================================

// lessUnassignedLast sorts names alphabetically with "Unassigned" last.
func lessUnassignedLast(a, b string) bool {
	if a == engine.BranchUnassigned {
		return false
	}
	if b == engine.BranchUnassigned {
		return true
	}
	return a < b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessUnassignedLast(keys[i], keys[j]) })
	return keys
}
