package engine

import (
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COALESCE TO ZERO
// =============================================================================
// Missing or malformed numbers from the store and the production system are
// treated as zero here, at the boundary, so the arithmetic downstream can
// assume well-formed values.

// DecimalOrZero parses s, returning zero for empty or malformed input.
func DecimalOrZero(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NullDecimalOrZero unwraps a nullable column.
func NullDecimalOrZero(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}

// NullIntOrZero unwraps a nullable count.
func NullIntOrZero(n sql.NullInt64) int {
	if !n.Valid {
		return 0
	}
	return int(n.Int64)
}

// Round2 rounds money to cents.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// =============================================================================
// RATIOS & PROJECTIONS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ClosingRatio is closed/created as a whole percentage. The two counts come
// from independent populations, so results above 100 are legitimate. Zero
// created yields 0.
func ClosingRatio(created, closed int) int {
	if created <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(closed)).Mul(hundred).Div(decimal.NewFromInt(int64(created)))
	return int(pct.Round(0).IntPart())
}

// ProjectRevenue extrapolates month-to-date revenue over the whole month's
// working days. Zero worked days yields zero.
func ProjectRevenue(mtd decimal.Decimal, workedDays, remainingDays int) decimal.Decimal {
	if workedDays <= 0 {
		return decimal.Zero
	}
	daily := mtd.Div(decimal.NewFromInt(int64(workedDays)))
	return Round2(daily.Mul(decimal.NewFromInt(int64(workedDays + remainingDays))))
}

// PercentChange is (current-prior)/prior*100 rounded to one decimal. ok is
// false when prior is not positive.
func PercentChange(current, prior decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if !prior.IsPositive() {
		return decimal.Zero, false
	}
	return current.Sub(prior).Div(prior).Mul(hundred).Round(1), true
}
