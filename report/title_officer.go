package report

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// TITLE OFFICER PRODUCTION - officer branch -> title officer -> category
// =============================================================================

var titleOfficerCategories = []engine.Category{engine.CategoryPurchase, engine.CategoryRefinance}

// titleOfficer credits officers with title revenue only (title plus
// underwriter), for Purchase and Refinance orders. Officers missing from the
// directory are reported in Meta.UnmappedOfficers and logged once per call.
func (b *Builder) titleOfficer(ctx context.Context, r *run) (*Result, error) {
	current, prior, err := b.orders(ctx, r, engine.OrderFilter{ClosedOnly: true}, titleOfficerCategories)
	if err != nil {
		return nil, err
	}
	closing, err := b.closingCounts(ctx, r, engine.ByTitleOfficer, titleOfficerCategories)
	if err != nil {
		return nil, err
	}

	branchOf := func(o engine.OrderSummary) (string, string) {
		officer := engine.PersonOrUnassigned(o.TitleOfficer)
		if officer == engine.UnassignedPerson {
			return engine.BranchUnassigned, officer
		}
		if _, ok := r.directory.Lookup(officer); !ok && r.unmapped.Add(officer) {
			b.log.WithFields(logrus.Fields{
				"report":  string(r.name),
				"officer": officer,
			}).Warn("title officer not in branch directory")
		}
		return r.resolver.OrderBranch(o), officer
	}

	table := newPersonTable(titleOfficerCategories)
	for _, o := range current {
		branch, officer := branchOf(o)
		table.addCurrent(r.window, branch, officer, o.Category, *o.TransactionDate, o.TitleOnlyRevenue())
	}
	for _, o := range prior {
		branch, officer := branchOf(o)
		table.addPrior(branch, officer, o.Category, o.TitleOnlyRevenue())
	}
	table.prune()

	report, branches := table.emit(closing)
	return &Result{
		Report: report,
		Meta: Meta{
			Categories:       titleOfficerCategories,
			Branches:         branches,
			NoData:           len(current) == 0 && len(prior) == 0,
			UnmappedOfficers: r.unmapped.Names(),
		},
	}, nil
}
