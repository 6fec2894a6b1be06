package budget_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/strategy-planner/budget"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, dec(want).InexactFloat64(), got.InexactFloat64(), 1e-6, msgAndArgs...)
}

// pool returns an empty strategy with the given pool totals and campaign dates.
func pool(budgetAmount string, goal int64, spend string) *budget.Strategy {
	return &budget.Strategy{
		ID:             "strategy-1",
		Name:           "Spring Launch",
		ClientBudget:   dec(budgetAmount),
		ImpressionGoal: goal,
		DSPSpend:       dec(spend),
		CampaignStart:  budget.NewDate(2025, 1, 15),
		CampaignEnd:    budget.NewDate(2025, 4, 10),
	}
}

func testAllocator() *budget.LineItemAllocator {
	n := 0
	return &budget.LineItemAllocator{
		NewID: func() string {
			n++
			return "li-" + string(rune('a'+n-1))
		},
		Now: func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		},
	}
}
