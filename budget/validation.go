package budget

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CALCULATIONS - line item totals
// =============================================================================

// Calculations are totals over a strategy's line items.
type Calculations struct {
	TotalImpressions       int64           `json:"totalImpressions"`
	TotalClientBudget      decimal.Decimal `json:"totalClientBudget"`
	TotalDSPSpend          decimal.Decimal `json:"totalDspSpend"`
	TotalProfit            decimal.Decimal `json:"totalProfit"`
	AverageRPM             decimal.Decimal `json:"averageRpm"`
	ProfitMarginPercentage decimal.Decimal `json:"profitMarginPercentage"`
}

// Calculate sums the line items. A nil strategy yields all zeros.
func Calculate(s *Strategy) Calculations {
	c := Calculations{
		TotalClientBudget:      decimal.Zero,
		TotalDSPSpend:          decimal.Zero,
		TotalProfit:            decimal.Zero,
		AverageRPM:             decimal.Zero,
		ProfitMarginPercentage: decimal.Zero,
	}
	if s == nil {
		return c
	}

	for _, item := range s.LineItems {
		c.TotalImpressions += item.Impressions
		c.TotalClientBudget = c.TotalClientBudget.Add(item.ClientBudget)
		c.TotalDSPSpend = c.TotalDSPSpend.Add(item.DSPSpend)
	}
	c.TotalProfit = c.TotalClientBudget.Sub(c.TotalDSPSpend)
	c.AverageRPM = BlendedRate(c.TotalClientBudget, c.TotalImpressions)
	if c.TotalClientBudget.IsPositive() {
		c.ProfitMarginPercentage = c.TotalProfit.Div(c.TotalClientBudget).Mul(hundred)
	}
	return c
}

// =============================================================================
// VALIDATION - advisory part/whole checks
// =============================================================================

// BudgetValidation compares the line items against the strategy's pool.
// It is advisory: nothing is ever blocked on it.
type BudgetValidation struct {
	IsValid             bool            `json:"isValid"`
	TotalLineItemBudget decimal.Decimal `json:"totalLineItemBudget"`
	TotalClientBudget   decimal.Decimal `json:"totalClientBudget"`
	Difference          decimal.Decimal `json:"difference"` // line items minus pool
	ImpressionDiff      int64           `json:"impressionDifference"`
	Warnings            []string        `json:"warnings"`
	Errors              []string        `json:"errors"`
}

// Validate classifies the difference between the summed line items and the
// pool:
//
//	budget over by more than Tolerance   -> error
//	budget under by more than Tolerance  -> warning
//	any impression difference            -> warning
func Validate(s *Strategy) BudgetValidation {
	v := BudgetValidation{
		IsValid:             true,
		TotalLineItemBudget: decimal.Zero,
		TotalClientBudget:   decimal.Zero,
		Difference:          decimal.Zero,
		Warnings:            []string{},
		Errors:              []string{},
	}
	if s == nil {
		return v
	}

	calc := Calculate(s)
	v.TotalLineItemBudget = calc.TotalClientBudget
	v.TotalClientBudget = s.ClientBudget
	v.Difference = calc.TotalClientBudget.Sub(s.ClientBudget)
	v.ImpressionDiff = calc.TotalImpressions - s.ImpressionGoal

	if v.Difference.Abs().GreaterThan(Tolerance) {
		amount := FormatMoney(v.Difference.Abs())
		if v.Difference.IsPositive() {
			v.Errors = append(v.Errors, "Line items exceed client budget by "+amount)
		} else {
			v.Warnings = append(v.Warnings, "Unallocated budget: "+amount)
		}
	}

	if v.ImpressionDiff != 0 {
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("Impression allocation differs from goal by %s", humanize.Comma(v.ImpressionDiff)))
	}

	v.IsValid = len(v.Errors) == 0
	return v
}

// FormatMoney renders an amount as "$1234.50".
func FormatMoney(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
