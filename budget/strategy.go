package budget

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAttachmentSize is the largest accepted IO document (10 MB).
const MaxAttachmentSize = 10 << 20

const pdfContentType = "application/pdf"

// defaultCampaignMonths is the campaign length given to new strategies.
const defaultCampaignMonths = 3

// NewStrategyInput is what a user supplies when creating a strategy.
type NewStrategyInput struct {
	Name            string `json:"name"`
	ClientName      string `json:"clientName"`
	AgencyName      string `json:"agencyName"`
	Channel         string `json:"channel,omitempty"`
	BillingCategory string `json:"billingCategory,omitempty"`
	TemplateID      string `json:"templateId,omitempty"`
}

// ValidateNewStrategy checks the required fields: name, client and agency.
func ValidateNewStrategy(in NewStrategyInput) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return &FieldError{Field: "name", Err: ErrMissingField}
	case strings.TrimSpace(in.ClientName) == "":
		return &FieldError{Field: "clientName", Err: ErrMissingField}
	case strings.TrimSpace(in.AgencyName) == "":
		return &FieldError{Field: "agencyName", Err: ErrMissingField}
	}
	return nil
}

// Build returns an empty strategy: zero pool, no line items, and a campaign
// running three months from today with its flights already generated.
func (in NewStrategyInput) Build(now time.Time) (Strategy, error) {
	if err := ValidateNewStrategy(in); err != nil {
		return Strategy{}, err
	}
	start := DateOf(now)
	s := Strategy{
		Name:            strings.TrimSpace(in.Name),
		ClientName:      strings.TrimSpace(in.ClientName),
		AgencyName:      strings.TrimSpace(in.AgencyName),
		Channel:         in.Channel,
		BillingCategory: in.BillingCategory,
		TemplateID:      in.TemplateID,
		ClientBudget:    decimal.Zero,
		DSPSpend:        decimal.Zero,
		CampaignStart:   start,
		CampaignEnd:     start.AddMonths(defaultCampaignMonths),
		LineItems:       []LineItem{},
	}
	RegenerateFlights(&s)
	return s, nil
}

// ValidateAttachment accepts PDF documents up to MaxAttachmentSize.
func ValidateAttachment(fileName, contentType string, size int64) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != pdfContentType {
		return &AttachmentError{FileName: fileName, Reason: "please upload a PDF file"}
	}
	if size > MaxAttachmentSize {
		return AttachmentTooLarge(fileName)
	}
	return nil
}

// AttachmentTooLarge is the rejection for a document over MaxAttachmentSize.
func AttachmentTooLarge(fileName string) *AttachmentError {
	return &AttachmentError{FileName: fileName, Reason: "file size must be less than 10MB"}
}
