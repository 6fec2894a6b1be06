package library

import (
	"fmt"
	"strings"

	"github.com/warp/strategy-planner/budget"
)

const KindAudiences = "audiences"

// Audience categories
const (
	CategoryGeospatial  = "Geospatial"
	CategoryDemographic = "Demographic"
)

// AudienceTarget is one targeting option. Demographic targets carry a
// secondary target (Male, Female, All); geospatial targets don't.
type AudienceTarget struct {
	Category        string `json:"category" yaml:"category"`
	PrimaryTarget   string `json:"primaryTarget" yaml:"primary"`
	SecondaryTarget string `json:"secondaryTarget,omitempty" yaml:"secondary,omitempty"`
}

// Label is the text stored in a line item's targeting field.
func (t AudienceTarget) Label() string {
	if t.SecondaryTarget != "" {
		return fmt.Sprintf("%s: %s (%s)", t.Category, t.PrimaryTarget, t.SecondaryTarget)
	}
	return fmt.Sprintf("%s: %s", t.Category, t.PrimaryTarget)
}

// Audiences is the audience-targeting library.
type Audiences struct {
	*Library[AudienceTarget]
}

func NewAudiences(base []AudienceTarget, backend Backend) *Audiences {
	return &Audiences{newLibrary(KindAudiences, base, backend, normalizeTarget)}
}

func normalizeTarget(t AudienceTarget) (AudienceTarget, error) {
	t.Category = strings.TrimSpace(t.Category)
	t.PrimaryTarget = strings.TrimSpace(t.PrimaryTarget)
	t.SecondaryTarget = strings.TrimSpace(t.SecondaryTarget)

	switch {
	case t.Category != CategoryGeospatial && t.Category != CategoryDemographic:
		return t, &budget.FieldError{Field: "category", Err: budget.ErrMissingField}
	case t.PrimaryTarget == "":
		return t, &budget.FieldError{Field: "primaryTarget", Err: budget.ErrMissingField}
	case t.Category == CategoryDemographic && t.SecondaryTarget == "":
		return t, &budget.FieldError{Field: "secondaryTarget", Err: budget.ErrMissingField}
	case t.Category == CategoryGeospatial:
		t.SecondaryTarget = ""
	}
	return t, nil
}

// TargetsByCategory filters targets to one category.
func TargetsByCategory(targets []AudienceTarget, category string) []AudienceTarget {
	out := []AudienceTarget{}
	for _, t := range targets {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}
