/*
Package factory provides JSON to Go strategy template conversion.

PURPOSE:
  Converts JSON template definitions into Template values and instantiates
  strategies from them. Planners save a strategy's line-item layout once
  (tactics, targeting, rates) and reuse it for the next client.

JSON SCHEMA:
  {
    "id": "tpl-dispensary-q",
    "name": "Dispensary Quarter",
    "description": "Three tactic launch",
    "defaultDuration": 3,
    "clientBudget": "15000",
    "impressionGoal": 1500000,
    "dspSpend": "4500",
    "lineItemTemplate": [
      {"tactic": "Conquesting", "targeting": "Geospatial: Competitor Dispensaries",
       "rpm": "10", "dspBid": "3"},
      {"tactic": "Retargeting", "rpm": "12", "dspBid": "3.5"}
    ],
    "tags": ["cannabis", "launch"]
  }

DEFAULTS:
  defaultDuration   3 months when missing or < 1
  tactic            Conquesting when empty
  pool fields       zero; line items then keep the template's rates

INSTANTIATION:
  The strategy is built from NewStrategyInput, the campaign runs
  defaultDuration months from today, each template entry becomes a line
  item with flights dated to the campaign. A non-empty pool is split
  evenly across the line items and flights are generated.

USAGE:
  f := factory.NewTemplateFactory()
  tpl, err := f.ParseTemplate(record.ConfigJSON)
  strategy, err := f.Instantiate(tpl, input, time.Now())

SEE ALSO:
  - budget/allocator.go: Rebalance
  - budget/flights.go: RegenerateFlights
  - store/sqlite/sqlite.go: TemplateRecord persistence
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/strategy-planner/budget"
)

// DefaultDurationMonths is used when a template names no duration.
const DefaultDurationMonths = 3

// ErrEmptyTemplateName is returned when a template has no name.
var ErrEmptyTemplateName = errors.New("template name is required")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a strategy template.
type TemplateJSON struct {
	ID              string             `json:"id,omitempty"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	DefaultDuration int                `json:"defaultDuration,omitempty"` // months
	ClientBudget    *decimal.Decimal   `json:"clientBudget,omitempty"`
	ImpressionGoal  int64              `json:"impressionGoal,omitempty"`
	DSPSpend        *decimal.Decimal   `json:"dspSpend,omitempty"`
	LineItems       []LineItemTemplate `json:"lineItemTemplate"`
	Tags            []string           `json:"tags,omitempty"`
}

// LineItemTemplate is a line item without identity, dates or amounts.
type LineItemTemplate struct {
	Channel         string          `json:"channel,omitempty"`
	BillingCategory string          `json:"billingCategory,omitempty"`
	Tactic          string          `json:"tactic,omitempty"`
	Targeting       string          `json:"targeting,omitempty"`
	ChannelPartner  string          `json:"channelPartner,omitempty"`
	BrandAdvertiser string          `json:"brandAdvertiser,omitempty"`
	CampaignName    string          `json:"campaignName,omitempty"`
	Description     string          `json:"description,omitempty"`
	RPM             decimal.Decimal `json:"rpm"`
	DSPBid          decimal.Decimal `json:"dspBid"`
}

// Template is a validated template ready to instantiate.
type Template struct {
	ID             string
	Name           string
	Description    string
	DurationMonths int
	ClientBudget   decimal.Decimal
	ImpressionGoal int64
	DSPSpend       decimal.Decimal
	LineItems      []LineItemTemplate
	Tags           []string
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts JSON templates to Go structs and back.
type TemplateFactory struct {
	allocator *budget.LineItemAllocator
}

// NewTemplateFactory creates a new template factory.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{allocator: budget.NewLineItemAllocator()}
}

// NewTemplateFactoryWith uses the given allocator for line item ids.
func NewTemplateFactoryWith(allocator *budget.LineItemAllocator) *TemplateFactory {
	return &TemplateFactory{allocator: allocator}
}

// ParseTemplate parses a JSON string into a Template.
func (f *TemplateFactory) ParseTemplate(jsonStr string) (*Template, error) {
	var tj TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, fmt.Errorf("failed to parse template JSON: %w", err)
	}
	return f.FromJSON(tj)
}

// FromJSON validates tj and fills in defaults.
func (f *TemplateFactory) FromJSON(tj TemplateJSON) (*Template, error) {
	name := strings.TrimSpace(tj.Name)
	if name == "" {
		return nil, ErrEmptyTemplateName
	}
	if tj.ImpressionGoal < 0 {
		return nil, &budget.FieldError{Field: "impressionGoal", Err: fmt.Errorf("must not be negative")}
	}

	t := &Template{
		ID:             tj.ID,
		Name:           name,
		Description:    tj.Description,
		DurationMonths: tj.DefaultDuration,
		ImpressionGoal: tj.ImpressionGoal,
		ClientBudget:   decimal.Zero,
		DSPSpend:       decimal.Zero,
		Tags:           normalizeTags(tj.Tags),
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DurationMonths < 1 {
		t.DurationMonths = DefaultDurationMonths
	}
	if tj.ClientBudget != nil {
		t.ClientBudget = *tj.ClientBudget
	}
	if tj.DSPSpend != nil {
		t.DSPSpend = *tj.DSPSpend
	}

	for _, li := range tj.LineItems {
		if strings.TrimSpace(li.Tactic) == "" {
			li.Tactic = string(budget.DefaultTactic)
		}
		t.LineItems = append(t.LineItems, li)
	}
	return t, nil
}

// ToJSON converts a Template to TemplateJSON.
func (f *TemplateFactory) ToJSON(t *Template) TemplateJSON {
	tj := TemplateJSON{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		DefaultDuration: t.DurationMonths,
		ImpressionGoal:  t.ImpressionGoal,
		LineItems:       append([]LineItemTemplate{}, t.LineItems...),
		Tags:            t.Tags,
	}
	if !t.ClientBudget.IsZero() {
		v := t.ClientBudget
		tj.ClientBudget = &v
	}
	if !t.DSPSpend.IsZero() {
		v := t.DSPSpend
		tj.DSPSpend = &v
	}
	return tj
}

// FromStrategy captures a strategy's layout as a template. Amounts and dates
// are dropped; rates, tactics and identity fields are kept.
func (f *TemplateFactory) FromStrategy(s budget.Strategy, name, description string, tags []string) TemplateJSON {
	tj := TemplateJSON{
		Name:            name,
		Description:     description,
		DefaultDuration: monthsBetween(s.CampaignStart, s.CampaignEnd),
		LineItems:       make([]LineItemTemplate, 0, len(s.LineItems)),
		Tags:            normalizeTags(tags),
	}
	for _, li := range s.LineItems {
		tj.LineItems = append(tj.LineItems, LineItemTemplate{
			Channel:         li.Channel,
			BillingCategory: li.BillingCategory,
			Tactic:          string(li.Tactic),
			Targeting:       li.Targeting,
			ChannelPartner:  li.ChannelPartner,
			BrandAdvertiser: li.BrandAdvertiser,
			CampaignName:    li.CampaignName,
			Description:     li.Description,
			RPM:             li.RPM,
			DSPBid:          li.DSPBid,
		})
	}
	return tj
}

// Instantiate builds a new, unsaved strategy from the template.
func (f *TemplateFactory) Instantiate(t *Template, in budget.NewStrategyInput, now time.Time) (budget.Strategy, error) {
	in.TemplateID = t.ID
	s, err := in.Build(now)
	if err != nil {
		return budget.Strategy{}, err
	}
	s.CampaignEnd = s.CampaignStart.AddMonths(t.DurationMonths)
	s.ClientBudget = t.ClientBudget
	s.ImpressionGoal = t.ImpressionGoal
	s.DSPSpend = t.DSPSpend

	for i, lt := range t.LineItems {
		s.LineItems = append(s.LineItems, budget.LineItem{
			ID:              f.allocator.NewID(),
			Channel:         firstNonEmpty(lt.Channel, s.Channel),
			BillingCategory: firstNonEmpty(lt.BillingCategory, s.BillingCategory),
			Tactic:          budget.Tactic(lt.Tactic),
			Targeting:       lt.Targeting,
			ChannelPartner:  lt.ChannelPartner,
			BrandAdvertiser: lt.BrandAdvertiser,
			CampaignName:    lt.CampaignName,
			Description:     lt.Description,
			RPM:             lt.RPM,
			ClientBudget:    decimal.Zero,
			DSPBid:          lt.DSPBid,
			DSPSpend:        decimal.Zero,
			FlightStart:     s.CampaignStart,
			FlightEnd:       s.CampaignEnd,
			Order:           i,
		})
	}

	if s.ImpressionGoal > 0 {
		f.allocator.Rebalance(&s)
	}
	budget.RegenerateFlights(&s)
	return s, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// monthsBetween counts whole calendar months from start to end, at least 1.
func monthsBetween(start, end budget.Date) int {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return DefaultDurationMonths
	}
	months := (end.Time.Year()-start.Time.Year())*12 + int(end.Time.Month()-start.Time.Month())
	if end.Time.Day() < start.Time.Day() {
		months--
	}
	if months < 1 {
		return 1
	}
	return months
}
