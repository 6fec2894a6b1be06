package budget_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/strategy-planner/budget"
)

func singleItem(poolBudget, itemBudget string) *budget.Strategy {
	s := pool(poolBudget, 0, "0")
	s.LineItems = []budget.LineItem{{ID: "a", ClientBudget: dec(itemBudget)}}
	return s
}

func TestValidate_OverAllocationIsError(t *testing.T) {
	v := budget.Validate(singleItem("1000", "1000.02"))

	assert.Equal(t, []string{"Line items exceed client budget by $0.02"}, v.Errors)
	assert.Empty(t, v.Warnings)
	assert.False(t, v.IsValid)
}

func TestValidate_UnderAllocationIsWarning(t *testing.T) {
	v := budget.Validate(singleItem("1000", "999.98"))

	assert.Empty(t, v.Errors)
	assert.Equal(t, []string{"Unallocated budget: $0.02"}, v.Warnings)
	assert.True(t, v.IsValid)
}

func TestValidate_WithinTolerance(t *testing.T) {
	for _, amount := range []string{"1000.005", "999.995", "1000.01", "1000"} {
		v := budget.Validate(singleItem("1000", amount))
		assert.Empty(t, v.Errors, amount)
		assert.Empty(t, v.Warnings, amount)
	}
}

func TestValidate_ImpressionDifferenceIsWarning(t *testing.T) {
	s := pool("1000", 1_000_000, "0")
	s.LineItems = []budget.LineItem{{ID: "a", ClientBudget: dec("1000"), Impressions: 998_500}}

	v := budget.Validate(s)

	assert.Empty(t, v.Errors)
	assert.Equal(t, []string{"Impression allocation differs from goal by -1,500"}, v.Warnings)
	assert.Equal(t, int64(-1500), v.ImpressionDiff)
}

func TestValidate_NilStrategy(t *testing.T) {
	v := budget.Validate(nil)
	assert.True(t, v.IsValid)
	assert.NotNil(t, v.Errors)
}

func TestCalculate_Totals(t *testing.T) {
	s := pool("1000", 100_000, "0")
	s.LineItems = []budget.LineItem{
		{ID: "a", Impressions: 60_000, ClientBudget: dec("600"), DSPSpend: dec("240")},
		{ID: "b", Impressions: 40_000, ClientBudget: dec("400"), DSPSpend: dec("160")},
	}

	c := budget.Calculate(s)

	assert.Equal(t, int64(100_000), c.TotalImpressions)
	assertDecimal(t, "1000", c.TotalClientBudget)
	assertDecimal(t, "400", c.TotalDSPSpend)
	assertDecimal(t, "600", c.TotalProfit)
	assertDecimal(t, "10", c.AverageRPM)
	assertDecimal(t, "60", c.ProfitMarginPercentage)
}

func TestCalculate_Empty(t *testing.T) {
	c := budget.Calculate(pool("1000", 1000, "0"))
	assert.True(t, c.AverageRPM.IsZero())
	assert.True(t, c.ProfitMarginPercentage.IsZero())
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1234.50", budget.FormatMoney(dec("1234.5")))
	assert.Equal(t, "-$0.02", budget.FormatMoney(dec("-0.02")))
}
