/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication that are not domain
  types themselves. Strategies, line items, flights and validation results
  are returned as their budget package types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

VALIDATION:
  Validation is done in handlers and the domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/template.go: TemplateJSON type
*/
package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/factory"
)

// =============================================================================
// STRATEGIES
// =============================================================================

// StrategySummaryDTO is one row of the strategy list.
type StrategySummaryDTO struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ClientName     string          `json:"clientName"`
	AgencyName     string          `json:"agencyName,omitempty"`
	ClientBudget   decimal.Decimal `json:"clientBudget"`
	ImpressionGoal int64           `json:"impressionGoal"`
	CampaignStart  budget.Date     `json:"campaignStartDate"`
	CampaignEnd    budget.Date     `json:"campaignEndDate"`
	LineItemCount  int             `json:"lineItemCount"`
	FlightCount    int             `json:"flightCount"`
	Current        bool            `json:"current"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toSummaryDTO(s budget.Strategy, currentID string) StrategySummaryDTO {
	return StrategySummaryDTO{
		ID:             s.ID,
		Name:           s.Name,
		ClientName:     s.ClientName,
		AgencyName:     s.AgencyName,
		ClientBudget:   s.ClientBudget,
		ImpressionGoal: s.ImpressionGoal,
		CampaignStart:  s.CampaignStart,
		CampaignEnd:    s.CampaignEnd,
		LineItemCount:  len(s.LineItems),
		FlightCount:    len(s.Flights),
		Current:        s.ID == currentID,
		UpdatedAt:      s.UpdatedAt,
	}
}

// DuplicateRequest names the copy. Empty means "<name> (Copy)".
type DuplicateRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// SESSION
// =============================================================================

// SessionDTO is the editing session state. Strategy is null when nothing is
// loaded.
type SessionDTO struct {
	Strategy   *budget.Strategy         `json:"strategy"`
	Pending    *budget.PendingEdit      `json:"pendingEdit,omitempty"`
	Validation *budget.BudgetValidation `json:"validation,omitempty"`
	AutoSave   bool                     `json:"autoSave"`
	Dirty      bool                     `json:"dirty"`
}

type LoadSessionRequest struct {
	ID string `json:"id"`
}

type AutoSaveRequest struct {
	Enabled bool `json:"enabled"`
}

type DatesRequest struct {
	Start budget.Date `json:"campaignStartDate"`
	End   budget.Date `json:"campaignEndDate"`
}

// =============================================================================
// LINE ITEMS AND FLIGHTS
// =============================================================================

// BatchAddRequestDTO adds Count line items.
type BatchAddRequestDTO struct {
	Count       int               `json:"count"`
	Mode        string            `json:"mode"` // even (default), manual
	Percentages []decimal.Decimal `json:"percentages,omitempty"`
	Tactics     []string          `json:"tactics,omitempty"`
}

func (r BatchAddRequestDTO) toDomain() budget.BatchAddRequest {
	req := budget.BatchAddRequest{
		Count:       r.Count,
		Mode:        budget.AllocationEven,
		Percentages: r.Percentages,
	}
	if r.Mode == string(budget.AllocationManual) {
		req.Mode = budget.AllocationManual
	}
	for _, t := range r.Tactics {
		req.Tactics = append(req.Tactics, budget.Tactic(t))
	}
	return req
}

// CellEditRequest edits one field. Value may be sent as a JSON string or number.
type CellEditRequest struct {
	Field budget.Field `json:"field"`
	Value cellValue    `json:"value"`
}

// cellValue accepts both "1,000" and 1000.
type cellValue string

func (v *cellValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = cellValue(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	*v = cellValue(data)
	return nil
}

// PendingEditResponse is returned with 409 when an edit needs a
// redistribution choice.
type PendingEditResponse struct {
	Error    string             `json:"error"`
	Pending  budget.PendingEdit `json:"pendingEdit"`
	Policies []string           `json:"policies"`
}

type ResolveRequest struct {
	Policy budget.RedistributionPolicy `json:"policy"`
}

type MoveTacticRequest struct {
	Tactic budget.Tactic `json:"tactic"`
}

type RegenerateResponse struct {
	Count   int             `json:"count"`
	Flights []budget.Flight `json:"monthlyBreakdowns"`
}

// =============================================================================
// INTERCHANGE, LIBRARIES, TEMPLATES
// =============================================================================

type ImportResponse struct {
	Imported int  `json:"imported"`
	Merged   bool `json:"merged"`
}

type LibraryChangeResponse struct {
	Changed bool `json:"changed"`
}

type AgencyResponse struct {
	Advertiser string `json:"advertiser"`
	Agency     string `json:"agency"`
}

// TemplateDTO wraps a stored template.
type TemplateDTO struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Template  factory.TemplateJSON `json:"template"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// CreateTemplateRequest creates a template from JSON or, with fromSession,
// from the active strategy's line items.
type CreateTemplateRequest struct {
	factory.TemplateJSON
	FromSession bool `json:"fromSession,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
