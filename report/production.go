package report

import (
	"context"

	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// ESCROW & TSG PRODUCTION - branch -> sales rep, one category
// =============================================================================

// RepRow is one sales rep in a single-category production report.
type RepRow struct {
	SalesRep string `json:"sales_rep"`
	PeriodMetrics
	ClosingStats
}

// BranchReps is one branch of a single-category production report.
type BranchReps struct {
	Branch string   `json:"branch"`
	Reps   []RepRow `json:"reps"`
}

func (b *Builder) escrowProduction(ctx context.Context, r *run) (*Result, error) {
	return b.categoryProduction(ctx, r, engine.CategoryEscrow)
}

func (b *Builder) tsgProduction(ctx context.Context, r *run) (*Result, error) {
	return b.categoryProduction(ctx, r, engine.CategoryTSG)
}

func (b *Builder) categoryProduction(ctx context.Context, r *run, cat engine.Category) (*Result, error) {
	cats := []engine.Category{cat}
	current, prior, err := b.orders(ctx, r, engine.OrderFilter{ClosedOnly: true}, cats)
	if err != nil {
		return nil, err
	}
	closing, err := b.closingCounts(ctx, r, engine.BySalesRep, cats)
	if err != nil {
		return nil, err
	}

	table := newPersonTable(cats)
	for _, o := range current {
		table.addCurrent(r.window, r.resolver.OrderBranch(o), engine.PersonOrUnassigned(o.SalesRep), o.Category, *o.TransactionDate, o.TotalRevenue())
	}
	for _, o := range prior {
		table.addPrior(r.resolver.OrderBranch(o), engine.PersonOrUnassigned(o.SalesRep), o.Category, o.TotalRevenue())
	}
	table.prune()

	branches := sortedKeys(table.branches)
	report := make([]BranchReps, 0, len(branches))
	for _, branch := range branches {
		people := table.branches[branch]
		br := BranchReps{Branch: branch}
		for _, name := range sortedKeys(people) {
			br.Reps = append(br.Reps, RepRow{
				SalesRep:      name,
				PeriodMetrics: people[name].totals.rounded(),
				ClosingStats:  closing[name],
			})
		}
		report = append(report, br)
	}

	return &Result{
		Report: report,
		Meta: Meta{
			Categories: cats,
			Branches:   branches,
			NoData:     len(current) == 0 && len(prior) == 0,
		},
	}, nil
}
