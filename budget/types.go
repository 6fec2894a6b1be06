/*
Package budget provides the campaign budget allocation and reconciliation engine.

PURPOSE:
  A strategy declares a budget pool (client budget, impression goal, DSP
  spend) and decomposes it twice: into line items and into time-based
  flights. This package keeps those decompositions consistent with the pool
  as individual fields are edited.

KEY CONCEPTS IN THIS FILE (types.go):
  - Strategy: the aggregate owning the pool and both decompositions
  - LineItem: one allocable slice of the pool
  - Flight: one calendar period's slice of the pool
  - Financials: the five monetary fields shared by line items and flights

DESIGN PRINCIPLES:
  1. Precision: currency and rates use decimal.Decimal
  2. Impressions are whole numbers (int64)
  3. Soft invariants: mismatches between parts and whole are reported by
     Validate, never rejected
  4. Not-found is a no-op: allocator operations return false, not errors

RATES:
  RPM and DSP bid are "per mille" rates:
    clientBudget = impressions / 1000 * rpm
    dspSpend     = impressions / 1000 * dspBid

SEE ALSO:
  - derive.go: field derivation rules
  - allocator.go: line-item allocator
  - flights.go: flight generator
  - validation.go: part/whole reconciliation
*/
package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSTANTS
// =============================================================================

var (
	thousand = decimal.NewFromInt(1000)
	hundred  = decimal.NewFromInt(100)

	// Tolerance is the currency tolerance used by allocation and validation checks.
	Tolerance = decimal.New(1, -2)
)

// =============================================================================
// TACTIC - grouping tag for line items
// =============================================================================

type Tactic string

const (
	TacticConquesting    Tactic = "Conquesting"
	TacticProspecting    Tactic = "Prospecting"
	TacticRetargeting    Tactic = "Retargeting"
	TacticEventTargeting Tactic = "Event Targeting"
	TacticUncategorized  Tactic = "Uncategorized"
)

// DefaultTactic is assigned to new line items when the caller names none.
const DefaultTactic = TacticConquesting

// tacticPriority is the display order of tactic groups.
var tacticPriority = []Tactic{
	TacticConquesting,
	TacticProspecting,
	TacticRetargeting,
	TacticEventTargeting,
	TacticUncategorized,
}

// Tactics returns the built-in tactics in display order.
func Tactics() []Tactic {
	return append([]Tactic(nil), tacticPriority[:4]...)
}

// =============================================================================
// FINANCIALS - the shared numeric shape of line items and flights
// =============================================================================

// Financials holds the monetary fields that derivation rules operate on.
type Financials struct {
	Impressions  int64
	RPM          decimal.Decimal
	ClientBudget decimal.Decimal
	DSPBid       decimal.Decimal
	DSPSpend     decimal.Decimal
}

// CostFor returns impressions / 1000 * rate.
func CostFor(impressions int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(impressions).Div(thousand).Mul(rate)
}

// BlendedRate returns total / impressions * 1000, or zero when there are no
// impressions to spread the total over.
func BlendedRate(total decimal.Decimal, impressions int64) decimal.Decimal {
	if impressions <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(impressions)).Mul(thousand)
}

// =============================================================================
// LINE ITEM
// =============================================================================

type LineItem struct {
	ID              string          `json:"id"`
	Channel         string          `json:"channel,omitempty"`
	BillingCategory string          `json:"billingCategory,omitempty"`
	Tactic          Tactic          `json:"tactic,omitempty"`
	Targeting       string          `json:"targeting,omitempty"`
	ChannelPartner  string          `json:"channelPartner"`
	BrandAdvertiser string          `json:"brandAdvertiser"`
	IONumber        string          `json:"ioNumber"`
	CampaignName    string          `json:"campaignName"`
	Description     string          `json:"description,omitempty"`
	Impressions     int64           `json:"impressions"`
	RPM             decimal.Decimal `json:"rpm"`
	ClientBudget    decimal.Decimal `json:"clientBudget"`
	DSPBid          decimal.Decimal `json:"dspBid"`
	DSPSpend        decimal.Decimal `json:"dspSpend"`
	FlightStart     Date            `json:"flightStart"`
	FlightEnd       Date            `json:"flightEnd"`
	Order           int             `json:"order"`
}

func (li LineItem) Financials() Financials {
	return Financials{
		Impressions:  li.Impressions,
		RPM:          li.RPM,
		ClientBudget: li.ClientBudget,
		DSPBid:       li.DSPBid,
		DSPSpend:     li.DSPSpend,
	}
}

func (li *LineItem) setFinancials(f Financials) {
	li.Impressions = f.Impressions
	li.RPM = f.RPM
	li.ClientBudget = f.ClientBudget
	li.DSPBid = f.DSPBid
	li.DSPSpend = f.DSPSpend
}

// GroupTactic returns the tactic used for grouping; untagged items are Uncategorized.
func (li LineItem) GroupTactic() Tactic {
	if li.Tactic == "" {
		return TacticUncategorized
	}
	return li.Tactic
}

// =============================================================================
// FLIGHT - monthly breakdown of the pool
// =============================================================================

type Flight struct {
	ID                     string          `json:"id"`
	MonthYear              string          `json:"monthYear"`
	Start                  Date            `json:"start"`
	End                    Date            `json:"end"`
	ImpressionsAllocation  int64           `json:"impressionsAllocation"`
	RPMTarget              decimal.Decimal `json:"rpmTarget"`
	ClientBudgetAllocation decimal.Decimal `json:"clientBudgetAllocation"`
	DSPBidAllocation       decimal.Decimal `json:"dspBidAllocation"`
	DSPSpendAllocation     decimal.Decimal `json:"dspSpendAllocation"`
	ProfitMargin           decimal.Decimal `json:"profitMargin"` // always ClientBudgetAllocation - DSPSpendAllocation
	Order                  int             `json:"order"`
}

func (f Flight) Financials() Financials {
	return Financials{
		Impressions:  f.ImpressionsAllocation,
		RPM:          f.RPMTarget,
		ClientBudget: f.ClientBudgetAllocation,
		DSPBid:       f.DSPBidAllocation,
		DSPSpend:     f.DSPSpendAllocation,
	}
}

func (f *Flight) setFinancials(v Financials) {
	f.ImpressionsAllocation = v.Impressions
	f.RPMTarget = v.RPM
	f.ClientBudgetAllocation = v.ClientBudget
	f.DSPBidAllocation = v.DSPBid
	f.DSPSpendAllocation = v.DSPSpend
	f.ProfitMargin = v.ClientBudget.Sub(v.DSPSpend)
}

// =============================================================================
// STRATEGY - the aggregate
// =============================================================================

// Attachment is a document attached to a strategy (the signed IO PDF).
type Attachment struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type Strategy struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	AgencyName       string          `json:"agencyName,omitempty"`
	ClientName       string          `json:"clientName"`
	Channel          string          `json:"channel,omitempty"`
	BillingCategory  string          `json:"billingCategory,omitempty"`
	ClientBudget     decimal.Decimal `json:"clientBudget"`
	ImpressionGoal   int64           `json:"impressionGoal"`
	DSPSpend         decimal.Decimal `json:"dspSpend"`
	CampaignStart    Date            `json:"campaignStartDate"`
	CampaignEnd      Date            `json:"campaignEndDate"`
	Flights          []Flight        `json:"monthlyBreakdowns"`
	LineItems        []LineItem      `json:"lineItems"`
	Notes            string          `json:"notes,omitempty"`
	Attachment       *Attachment     `json:"attachment,omitempty"`
	BudgetTrackerURL string          `json:"budgetTrackerUrl,omitempty"`
	TemplateID       string          `json:"templateId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Profit is the pool's client budget minus its DSP spend.
func (s Strategy) Profit() decimal.Decimal {
	return s.ClientBudget.Sub(s.DSPSpend)
}

// BlendedRPM is the pool's client budget per thousand impressions.
func (s Strategy) BlendedRPM() decimal.Decimal {
	return BlendedRate(s.ClientBudget, s.ImpressionGoal)
}

// BlendedDSPBid is the pool's DSP spend per thousand impressions.
func (s Strategy) BlendedDSPBid() decimal.Decimal {
	return BlendedRate(s.DSPSpend, s.ImpressionGoal)
}

// Clone returns a deep copy. Line items, flights and the attachment are not
// shared with the receiver.
func (s Strategy) Clone() Strategy {
	c := s
	if s.LineItems != nil {
		c.LineItems = append([]LineItem(nil), s.LineItems...)
	}
	if s.Flights != nil {
		c.Flights = append([]Flight(nil), s.Flights...)
	}
	if s.Attachment != nil {
		a := *s.Attachment
		a.Data = append([]byte(nil), s.Attachment.Data...)
		c.Attachment = &a
	}
	return c
}

// lineItemIndex returns the index of the line item with the given id, or -1.
func (s *Strategy) lineItemIndex(id string) int {
	for i := range s.LineItems {
		if s.LineItems[i].ID == id {
			return i
		}
	}
	return -1
}

// FindLineItem returns a copy of the line item with the given id.
func (s *Strategy) FindLineItem(id string) (LineItem, bool) {
	i := s.lineItemIndex(id)
	if i < 0 {
		return LineItem{}, false
	}
	return s.LineItems[i], true
}

func (s *Strategy) flightIndex(id string) int {
	for i := range s.Flights {
		if s.Flights[i].ID == id {
			return i
		}
	}
	return -1
}
