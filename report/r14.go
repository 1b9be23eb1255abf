package report

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// PERSON TREE OUTPUT - shared by R-14 Branches and Title Officer
// =============================================================================

// CategoryMetrics is one category column of a person row.
type CategoryMetrics struct {
	Category engine.Category `json:"category"`
	PeriodMetrics
}

// PersonRow is one sales rep or title officer within a branch.
type PersonRow struct {
	Name       string            `json:"name"`
	Categories []CategoryMetrics `json:"categories"`
	Totals     RevenueTotals     `json:"totals"`
	ClosingStats
}

// BranchPeople is one branch of a branch -> person report.
type BranchPeople struct {
	Branch string      `json:"branch"`
	People []PersonRow `json:"people"`
}

// emit orders the pruned table and attaches closing stats by person name.
func (t *personTable) emit(closing map[string]ClosingStats) ([]BranchPeople, []string) {
	branches := sortedKeys(t.branches)
	out := make([]BranchPeople, 0, len(branches))
	for _, branch := range branches {
		people := t.branches[branch]
		bp := BranchPeople{Branch: branch}
		for _, name := range sortedKeys(people) {
			e := people[name]
			row := PersonRow{
				Name: name,
				Totals: RevenueTotals{
					TodayRev: engine.Round2(e.totals.TodayRev),
					MTDRev:   engine.Round2(e.totals.MTDRev),
					PriorRev: engine.Round2(e.totals.PriorRev),
				},
				ClosingStats: closing[name],
			}
			for _, c := range t.categories {
				row.Categories = append(row.Categories, CategoryMetrics{Category: c, PeriodMetrics: e.categories[c].rounded()})
			}
			bp.People = append(bp.People, row)
		}
		out = append(out, bp)
	}
	return out, branches
}

// =============================================================================
// R-14 BRANCHES - branch -> sales rep -> category
// =============================================================================

var r14Categories = []engine.Category{
	engine.CategoryPurchase, engine.CategoryRefinance, engine.CategoryEscrow, engine.CategoryTSG,
}

func (b *Builder) r14Branches(ctx context.Context, r *run) (*Result, error) {
	current, prior, err := b.orders(ctx, r, engine.OrderFilter{ClosedOnly: true}, r14Categories)
	if err != nil {
		return nil, err
	}
	closing, err := b.closingCounts(ctx, r, engine.BySalesRep, nil)
	if err != nil {
		return nil, err
	}

	table := newPersonTable(r14Categories)
	for _, o := range current {
		rep := engine.PersonOrUnassigned(o.SalesRep)
		table.addCurrent(r.window, r.resolver.OrderBranch(o), rep, o.Category, *o.TransactionDate, o.TotalRevenue())
	}
	for _, o := range prior {
		rep := engine.PersonOrUnassigned(o.SalesRep)
		table.addPrior(r.resolver.OrderBranch(o), rep, o.Category, o.TotalRevenue())
	}
	table.prune()

	report, branches := table.emit(closing)
	return &Result{
		Report: report,
		Meta: Meta{
			Categories: r14Categories,
			Branches:   branches,
			NoData:     len(current) == 0 && len(prior) == 0,
		},
	}, nil
}

// =============================================================================
// R-14 RANKING - flat by sales rep
// =============================================================================

// RankRow is one sales rep in the ranking.
type RankRow struct {
	SalesRep string `json:"sales_rep"`
	PeriodMetrics
	ProjectedRev decimal.Decimal `json:"projected_rev"`
	ClosingStats
}

// r14Ranking ranks reps with any closed order by MTD revenue, highest first.
// Ties keep name order.
func (b *Builder) r14Ranking(ctx context.Context, r *run) (*Result, error) {
	w := r.window
	current, prior, err := b.orders(ctx, r, engine.OrderFilter{ClosedOnly: true}, nil)
	if err != nil {
		return nil, err
	}
	closing, err := b.closingCounts(ctx, r, engine.BySalesRep, nil)
	if err != nil {
		return nil, err
	}

	reps := make(map[string]*PeriodMetrics)
	rep := func(name string) *PeriodMetrics {
		name = engine.PersonOrUnassigned(name)
		m, ok := reps[name]
		if !ok {
			z := zeroPeriod()
			m = &z
			reps[name] = m
		}
		return m
	}
	for _, o := range current {
		rep(o.SalesRep).addCurrent(w, *o.TransactionDate, o.TotalRevenue())
	}
	for _, o := range prior {
		rep(o.SalesRep).addPrior(o.TotalRevenue())
	}

	ranking := make([]RankRow, 0, len(reps))
	for _, name := range sortedKeys(reps) {
		m := reps[name]
		if !m.Active() {
			continue
		}
		ranking = append(ranking, RankRow{
			SalesRep:      name,
			PeriodMetrics: m.rounded(),
			ProjectedRev:  engine.ProjectRevenue(m.MTDRev, w.WorkedDays, w.RemainingWorkingDays),
			ClosingStats:  closing[name],
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].MTDRev.GreaterThan(ranking[j].MTDRev)
	})

	return &Result{
		Report: ranking,
		Meta:   Meta{NoData: len(current) == 0 && len(prior) == 0},
	}, nil
}
