package engine

import (
	"sort"
	"strings"
)

// =============================================================================
// BRANCH BY FILE NUMBER
// =============================================================================
// File numbers look like "20006993-OCT" or "20011035-GLT". TSG files carry no
// suffix and start with 99, e.g. "99100688".

var branchSuffixes = map[string]string{
	"GLT": "Glendale",
	"OCT": "Orange",
	"ONT": "Inland Empire",
	"PRV": "Porterville",
}

// BranchFromFileNumber resolves a branch from the file-number suffix.
func BranchFromFileNumber(fileNumber string) string {
	if fileNumber == "" {
		return BranchUnknown
	}
	if strings.HasPrefix(fileNumber, "99") && !strings.Contains(fileNumber, "-") {
		return BranchTSG
	}
	i := strings.LastIndex(fileNumber, "-")
	if i < 0 {
		return BranchUnknown
	}
	if branch, ok := branchSuffixes[strings.ToUpper(fileNumber[i+1:])]; ok {
		return branch
	}
	return BranchUnknown
}

// KnownBranches lists the suffix-table branches in display order.
func KnownBranches() []string {
	branches := make([]string, 0, len(branchSuffixes))
	for _, b := range branchSuffixes {
		branches = append(branches, b)
	}
	sort.Strings(branches)
	return branches
}

// =============================================================================
// CATEGORY
// =============================================================================

// Categorize maps the production system's order type and transaction type
// to a report category.
func Categorize(orderType, transType string) Category {
	switch normalize(orderType) {
	case "":
		return CategoryUnknown
	case "trustee sale guarantee":
		return CategoryTSG
	case "title & escrow":
		return CategoryEscrow
	case "title only":
		switch normalize(transType) {
		case "purchase":
			return CategoryPurchase
		case "refinance":
			return CategoryRefinance
		default:
			return CategoryOther
		}
	default:
		return CategoryUnknown
	}
}

// CategorizeOpenOrder is Categorize plus the spreadsheet's "Escrow only"
// order type, which only appears in open-order exports.
func CategorizeOpenOrder(orderType, transType string) Category {
	if normalize(orderType) == "escrow only" {
		return CategoryEscrow
	}
	return Categorize(orderType, transType)
}

// IsTitleOfficerCategory reports whether the category counts toward title
// officer production.
func IsTitleOfficerCategory(c Category) bool {
	return c == CategoryPurchase || c == CategoryRefinance
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// =============================================================================
// REVENUE TYPE
// =============================================================================

// ClassifyRevenue buckets a bill code. ok is false for codes that are not
// revenue and must be excluded.
func ClassifyRevenue(billCode string) (rt RevenueType, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(billCode)) {
	case BillCodeTitlePremiumCalc, BillCodeTitlePremiumWaived:
		return RevenueTitle, true
	case BillCodeEscrowFee:
		return RevenueEscrow, true
	case BillCodeTSGWork:
		return RevenueTSG, true
	case BillCodeUnderwriterPremium:
		return RevenueUnderwriter, true
	default:
		return "", false
	}
}

// IsValidBillCode reports whether a line item survives ingestion filtering.
func IsValidBillCode(billCode string) bool {
	_, ok := ClassifyRevenue(billCode)
	return ok
}

// =============================================================================
// OFFICER DIRECTORY
// =============================================================================

// OfficerDirectory resolves title officers to their home branch. An empty or
// partial directory is valid: unmapped officers resolve to "Unassigned".
type OfficerDirectory struct {
	branches map[string]string
}

// NewOfficerDirectory builds a directory from the active entries.
func NewOfficerDirectory(entries []OfficerBranch) *OfficerDirectory {
	d := &OfficerDirectory{branches: make(map[string]string, len(entries))}
	for _, e := range entries {
		if e.Active && e.OfficerName != "" && e.Branch != "" {
			d.branches[e.OfficerName] = e.Branch
		}
	}
	return d
}

// Lookup returns the officer's branch and whether it is mapped.
func (d *OfficerDirectory) Lookup(officer string) (string, bool) {
	if d == nil || officer == "" {
		return "", false
	}
	b, ok := d.branches[officer]
	return b, ok
}

// Branch returns the officer's branch or "Unassigned".
func (d *OfficerDirectory) Branch(officer string) string {
	if b, ok := d.Lookup(officer); ok {
		return b
	}
	return BranchUnassigned
}

func (d *OfficerDirectory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.branches)
}

// UnmappedOfficers collects officers missing from the directory during a
// single report build, in first-seen order.
type UnmappedOfficers struct {
	seen  map[string]bool
	names []string
}

// Add records name and reports whether it was new.
func (u *UnmappedOfficers) Add(name string) bool {
	if u.seen == nil {
		u.seen = make(map[string]bool)
	}
	if u.seen[name] {
		return false
	}
	u.seen[name] = true
	u.names = append(u.names, name)
	return true
}

// Names returns the collected officers. Never nil.
func (u *UnmappedOfficers) Names() []string {
	if u.names == nil {
		return []string{}
	}
	return append([]string(nil), u.names...)
}

// =============================================================================
// BRANCH STRATEGY
// =============================================================================

// BranchStrategy names how a report resolves an order's branch. The two
// strategies give different numbers and are chosen per report.
type BranchStrategy string

const (
	BranchByOfficer    BranchStrategy = "officer"
	BranchByFileNumber BranchStrategy = "file_number"
)

func (s BranchStrategy) Valid() bool {
	return s == BranchByOfficer || s == BranchByFileNumber
}

// BranchResolver resolves the branch for both populations.
type BranchResolver interface {
	OrderBranch(o OrderSummary) string
	OpenOrderBranch(o OpenOrder) string
}

// FileNumberBranches resolves from the file-number suffix.
type FileNumberBranches struct{}

func (FileNumberBranches) OrderBranch(o OrderSummary) string {
	return BranchFromFileNumber(o.FileNumber)
}

func (FileNumberBranches) OpenOrderBranch(o OpenOrder) string {
	return BranchFromFileNumber(o.FileNumber)
}

// OfficerBranches resolves from the title officer's home branch.
type OfficerBranches struct {
	Directory *OfficerDirectory
}

func (r OfficerBranches) OrderBranch(o OrderSummary) string {
	return r.Directory.Branch(o.TitleOfficer)
}

func (r OfficerBranches) OpenOrderBranch(o OpenOrder) string {
	return r.Directory.Branch(o.TitleOfficer)
}

// NewBranchResolver returns the resolver for a strategy. Unknown strategies
// fall back to the officer directory.
func NewBranchResolver(s BranchStrategy, dir *OfficerDirectory) BranchResolver {
	if s == BranchByFileNumber {
		return FileNumberBranches{}
	}
	return OfficerBranches{Directory: dir}
}
