/*
derive.go - Field derivation rules

PURPOSE:
  Given the current financials of a line item or flight and the field the
  user just edited, compute every field that must change to keep the record
  internally consistent. Pure: no side effects, the caller merges the result.

RULES:
  impressions or dspBid edited  -> dspSpend     = impressions / 1000 * dspBid
  impressions or rpm edited     -> clientBudget = impressions / 1000 * rpm
  flights only, any edit        -> profitMargin = clientBudget - dspSpend

  Editing clientBudget or dspSpend directly changes only that field.

  The same rules apply to both entity kinds; only the field names differ
  (see lineItemMetrics / flightMetrics).
*/
package budget

import "github.com/shopspring/decimal"

// =============================================================================
// FIELDS
// =============================================================================

// Field names an editable attribute. Values match the JSON field names.
type Field string

// Line item fields
const (
	FieldChannel         Field = "channel"
	FieldBillingCategory Field = "billingCategory"
	FieldTactic          Field = "tactic"
	FieldTargeting       Field = "targeting"
	FieldChannelPartner  Field = "channelPartner"
	FieldBrandAdvertiser Field = "brandAdvertiser"
	FieldIONumber        Field = "ioNumber"
	FieldCampaignName    Field = "campaignName"
	FieldDescription     Field = "description"
	FieldImpressions     Field = "impressions"
	FieldRPM             Field = "rpm"
	FieldClientBudget    Field = "clientBudget"
	FieldDSPBid          Field = "dspBid"
	FieldDSPSpend        Field = "dspSpend"
	FieldFlightStart     Field = "flightStart"
	FieldFlightEnd       Field = "flightEnd"
)

// Flight fields
const (
	FieldMonthYear              Field = "monthYear"
	FieldImpressionsAllocation  Field = "impressionsAllocation"
	FieldRPMTarget              Field = "rpmTarget"
	FieldClientBudgetAllocation Field = "clientBudgetAllocation"
	FieldDSPBidAllocation       Field = "dspBidAllocation"
	FieldDSPSpendAllocation     Field = "dspSpendAllocation"
	FieldProfitMargin           Field = "profitMargin"
)

// Metric identifies one of the five financial fields independent of entity kind.
type Metric int

const (
	MetricImpressions Metric = iota + 1
	MetricRPM
	MetricClientBudget
	MetricDSPBid
	MetricDSPSpend
)

var lineItemMetrics = map[Field]Metric{
	FieldImpressions:  MetricImpressions,
	FieldRPM:          MetricRPM,
	FieldClientBudget: MetricClientBudget,
	FieldDSPBid:       MetricDSPBid,
	FieldDSPSpend:     MetricDSPSpend,
}

var flightMetrics = map[Field]Metric{
	FieldImpressionsAllocation:  MetricImpressions,
	FieldRPMTarget:              MetricRPM,
	FieldClientBudgetAllocation: MetricClientBudget,
	FieldDSPBidAllocation:       MetricDSPBid,
	FieldDSPSpendAllocation:     MetricDSPSpend,
}

// =============================================================================
// DERIVATION
// =============================================================================

// Derivation is the result of an edit: the complete, consistent values and
// the metrics that changed (the edited one first).
type Derivation struct {
	Values  Financials
	Changed []Metric
}

// Derive parses raw for the edited metric and applies the derivation rules.
func Derive(current Financials, metric Metric, raw string) Derivation {
	if metric == MetricImpressions {
		return DeriveImpressions(current, ParseImpressions(raw))
	}
	return DeriveValue(current, metric, ParseAmount(raw))
}

// DeriveImpressions applies an impressions edit.
func DeriveImpressions(current Financials, impressions int64) Derivation {
	next := current
	next.Impressions = impressions
	next.DSPSpend = CostFor(next.Impressions, next.DSPBid)
	next.ClientBudget = CostFor(next.Impressions, next.RPM)
	return Derivation{
		Values:  next,
		Changed: []Metric{MetricImpressions, MetricDSPSpend, MetricClientBudget},
	}
}

// DeriveValue applies an edit to one of the decimal metrics. An impressions
// value is rounded to the nearest whole impression.
func DeriveValue(current Financials, metric Metric, value decimal.Decimal) Derivation {
	next := current
	changed := []Metric{metric}

	switch metric {
	case MetricImpressions:
		return DeriveImpressions(current, roundImpressions(value))
	case MetricRPM:
		next.RPM = value
		next.ClientBudget = CostFor(next.Impressions, next.RPM)
		changed = append(changed, MetricClientBudget)
	case MetricDSPBid:
		next.DSPBid = value
		next.DSPSpend = CostFor(next.Impressions, next.DSPBid)
		changed = append(changed, MetricDSPSpend)
	case MetricClientBudget:
		next.ClientBudget = value
	case MetricDSPSpend:
		next.DSPSpend = value
	}
	return Derivation{Values: next, Changed: changed}
}

// Changes reports whether the derivation touched the metric.
func (d Derivation) Changes(m Metric) bool {
	for _, c := range d.Changed {
		if c == m {
			return true
		}
	}
	return false
}
