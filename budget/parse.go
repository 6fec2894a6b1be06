package budget

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numericPrefix matches the leading number in user input, the same prefix a
// lenient float parser would consume ("12.5abc" -> "12.5").
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseAmount parses a user-entered number. Currency symbols, thousands
// separators and surrounding spaces are ignored. Empty or unparseable input
// is zero: a half-typed value never fails an edit.
func ParseAmount(text string) decimal.Decimal {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)

	m := numericPrefix.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseImpressions parses a user-entered impression count, rounded to the
// nearest whole impression.
func ParseImpressions(text string) int64 {
	return roundImpressions(ParseAmount(text))
}

var (
	maxImpressions = decimal.NewFromInt(math.MaxInt64)
	minImpressions = decimal.NewFromInt(math.MinInt64)
)

// roundImpressions rounds half away from zero. Values outside the int64
// range clamp to its bounds and keep their sign.
func roundImpressions(d decimal.Decimal) int64 {
	r := d.Round(0)
	switch {
	case r.GreaterThan(maxImpressions):
		return math.MaxInt64
	case r.LessThan(minImpressions):
		return math.MinInt64
	}
	return r.IntPart()
}
