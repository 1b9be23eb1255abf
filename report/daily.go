package report

import (
	"context"
	"fmt"

	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// DAILY REVENUE - branch -> category
// =============================================================================

// DailyCategory is one category row of a Daily Revenue branch.
type DailyCategory struct {
	Category engine.Category `json:"category"`
	DailyMetrics
}

// DailyBranch is one branch of the Daily Revenue report.
type DailyBranch struct {
	Branch     string          `json:"branch"`
	Categories []DailyCategory `json:"categories"`
	Totals     DailyMetrics    `json:"totals"`
}

func (o Options) dailyCategories() []engine.Category {
	if o.DailyIncludeEscrow {
		return []engine.Category{engine.CategoryPurchase, engine.CategoryRefinance, engine.CategoryEscrow, engine.CategoryTSG}
	}
	return []engine.Category{engine.CategoryPurchase, engine.CategoryRefinance, engine.CategoryTSG}
}

// dailyRevenue counts closed orders and revenue from order summaries and
// opened orders from the open-order table. Branches are never pruned.
func (b *Builder) dailyRevenue(ctx context.Context, r *run) (*Result, error) {
	w := r.window
	cats := b.opts.dailyCategories()

	current, prior, err := b.orders(ctx, r, engine.OrderFilter{}, cats)
	if err != nil {
		return nil, err
	}
	openCurrent, err := b.src.OpenOrdersForMonth(ctx, w.Month, cats)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}
	openPrior, err := b.src.OpenOrdersForMonth(ctx, w.Prior, cats)
	if err != nil {
		return nil, fmt.Errorf("load prior open orders: %w", err)
	}
	var openToday []engine.OpenOrder
	if w.IsCurrentMonth {
		openToday, err = b.src.OpenOrdersReceivedOn(ctx, w.Yesterday, cats)
		if err != nil {
			return nil, fmt.Errorf("load today's open orders: %w", err)
		}
	}

	table := make(map[string]map[engine.Category]*DailyMetrics)
	cell := func(branch string, cat engine.Category) *DailyMetrics {
		row, ok := table[branch]
		if !ok {
			row = make(map[engine.Category]*DailyMetrics, len(cats))
			for _, c := range cats {
				m := zeroDaily()
				row[c] = &m
			}
			table[branch] = row
		}
		return row[cat]
	}

	for _, o := range current {
		if !engine.CategoryIn(o.Category, cats) {
			continue
		}
		m := cell(r.resolver.OrderBranch(o), o.Category)
		if o.TransactionDate == nil {
			continue
		}
		rev := o.TotalRevenue()
		if w.MTD().Contains(*o.TransactionDate) {
			m.MTDClosed++
			m.MTDRev = m.MTDRev.Add(rev)
		}
		if w.IsToday(*o.TransactionDate) {
			m.TodayClosed++
			m.TodayRev = m.TodayRev.Add(rev)
		}
	}
	for _, o := range prior {
		if !engine.CategoryIn(o.Category, cats) {
			continue
		}
		m := cell(r.resolver.OrderBranch(o), o.Category)
		m.PriorClosed++
		m.PriorRev = m.PriorRev.Add(o.TotalRevenue())
	}
	for _, o := range openCurrent {
		if engine.CategoryIn(o.Category, cats) {
			cell(r.resolver.OpenOrderBranch(o), o.Category).MTDOpen++
		}
	}
	for _, o := range openToday {
		if engine.CategoryIn(o.Category, cats) {
			cell(r.resolver.OpenOrderBranch(o), o.Category).TodayOpen++
		}
	}
	for _, o := range openPrior {
		if engine.CategoryIn(o.Category, cats) {
			cell(r.resolver.OpenOrderBranch(o), o.Category).PriorOpen++
		}
	}

	branches := sortedKeys(table)
	report := make([]DailyBranch, 0, len(branches))
	grand := zeroDaily()
	for _, branch := range branches {
		db := DailyBranch{Branch: branch, Totals: zeroDaily()}
		for _, c := range cats {
			m := *table[branch][c]
			db.Totals.add(m)
			db.Categories = append(db.Categories, DailyCategory{Category: c, DailyMetrics: m.rounded()})
		}
		grand.add(db.Totals)
		db.Totals = db.Totals.rounded()
		report = append(report, db)
	}
	grand = grand.rounded()

	return &Result{
		Report:     report,
		GrandTotal: &grand,
		Meta: Meta{
			Categories: cats,
			Branches:   branches,
			NoData:     len(current) == 0 && len(prior) == 0 && len(openCurrent) == 0 && len(openPrior) == 0,
		},
	}, nil
}
