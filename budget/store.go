package budget

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists strategies. Implementations return (nil, nil) for missing
// records; an error always means the backend failed.
type Store interface {
	List(ctx context.Context) ([]Strategy, error)
	Get(ctx context.Context, id string) (*Strategy, error)

	// Create assigns a fresh id and timestamps; any id on s is ignored.
	Create(ctx context.Context, s Strategy) (*Strategy, error)

	// Update merges the patch and refreshes UpdatedAt. Returns nil if id is unknown.
	Update(ctx context.Context, id string, patch StrategyPatch) (*Strategy, error)

	// Delete returns false if nothing was removed. Deleting the current
	// selection clears it.
	Delete(ctx context.Context, id string) (bool, error)

	// Duplicate deep-copies a strategy under a new id. An empty name becomes
	// "<name> (Copy)". Returns nil if id is unknown.
	Duplicate(ctx context.Context, id, newName string) (*Strategy, error)

	CurrentID(ctx context.Context) (string, error)
	SetCurrentID(ctx context.Context, id string) error
}

// StrategyPatch is a partial update. Nil fields are left unchanged.
type StrategyPatch struct {
	Name             *string          `json:"name,omitempty"`
	AgencyName       *string          `json:"agencyName,omitempty"`
	ClientName       *string          `json:"clientName,omitempty"`
	Channel          *string          `json:"channel,omitempty"`
	BillingCategory  *string          `json:"billingCategory,omitempty"`
	ClientBudget     *decimal.Decimal `json:"clientBudget,omitempty"`
	ImpressionGoal   *int64           `json:"impressionGoal,omitempty"`
	DSPSpend         *decimal.Decimal `json:"dspSpend,omitempty"`
	CampaignStart    *Date            `json:"campaignStartDate,omitempty"`
	CampaignEnd      *Date            `json:"campaignEndDate,omitempty"`
	Flights          *[]Flight        `json:"monthlyBreakdowns,omitempty"`
	LineItems        *[]LineItem      `json:"lineItems,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	Attachment       **Attachment     `json:"-"`
	BudgetTrackerURL *string          `json:"budgetTrackerUrl,omitempty"`
	TemplateID       *string          `json:"templateId,omitempty"`
}

// Apply merges the patch into s.
func (p StrategyPatch) Apply(s *Strategy) {
	setIf(&s.Name, p.Name)
	setIf(&s.AgencyName, p.AgencyName)
	setIf(&s.ClientName, p.ClientName)
	setIf(&s.Channel, p.Channel)
	setIf(&s.BillingCategory, p.BillingCategory)
	setIf(&s.ClientBudget, p.ClientBudget)
	setIf(&s.ImpressionGoal, p.ImpressionGoal)
	setIf(&s.DSPSpend, p.DSPSpend)
	setIf(&s.CampaignStart, p.CampaignStart)
	setIf(&s.CampaignEnd, p.CampaignEnd)
	setIf(&s.Notes, p.Notes)
	setIf(&s.BudgetTrackerURL, p.BudgetTrackerURL)
	setIf(&s.TemplateID, p.TemplateID)
	if p.Flights != nil {
		s.Flights = append([]Flight{}, (*p.Flights)...)
	}
	if p.LineItems != nil {
		s.LineItems = append([]LineItem{}, (*p.LineItems)...)
	}
	if p.Attachment != nil {
		s.Attachment = *p.Attachment
	}
}

// TouchesDates reports whether the patch changes either campaign date of s.
func (p StrategyPatch) TouchesDates(s Strategy) bool {
	return (p.CampaignStart != nil && !p.CampaignStart.Equal(s.CampaignStart)) ||
		(p.CampaignEnd != nil && !p.CampaignEnd.Equal(s.CampaignEnd))
}

// PatchFrom returns a patch that overwrites every mutable field with the
// values of s.
func PatchFrom(s Strategy) StrategyPatch {
	c := s.Clone()
	attachment := c.Attachment
	return StrategyPatch{
		Name:             &c.Name,
		AgencyName:       &c.AgencyName,
		ClientName:       &c.ClientName,
		Channel:          &c.Channel,
		BillingCategory:  &c.BillingCategory,
		ClientBudget:     &c.ClientBudget,
		ImpressionGoal:   &c.ImpressionGoal,
		DSPSpend:         &c.DSPSpend,
		CampaignStart:    &c.CampaignStart,
		CampaignEnd:      &c.CampaignEnd,
		Flights:          &c.Flights,
		LineItems:        &c.LineItems,
		Notes:            &c.Notes,
		Attachment:       &attachment,
		BudgetTrackerURL: &c.BudgetTrackerURL,
		TemplateID:       &c.TemplateID,
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
