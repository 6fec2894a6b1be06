package budget_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/strategy-planner/budget"
)

func TestNewStrategyInput_RequiredFields(t *testing.T) {
	cases := []struct {
		in    budget.NewStrategyInput
		field budget.Field
	}{
		{budget.NewStrategyInput{ClientName: "Acme", AgencyName: "Agency"}, "name"},
		{budget.NewStrategyInput{Name: "Q1", AgencyName: "Agency"}, "clientName"},
		{budget.NewStrategyInput{Name: "Q1", ClientName: "Acme", AgencyName: "   "}, "agencyName"},
	}
	for _, c := range cases {
		err := budget.ValidateNewStrategy(c.in)
		assert.ErrorIs(t, err, budget.ErrMissingField)
		var fe *budget.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, c.field, fe.Field)
	}
}

func TestNewStrategyInput_Build(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	s, err := budget.NewStrategyInput{Name: " Q1 Push ", ClientName: "Acme", AgencyName: "Agency"}.Build(now)
	require.NoError(t, err)

	assert.Equal(t, "Q1 Push", s.Name)
	assert.True(t, s.ClientBudget.IsZero())
	assert.Equal(t, int64(0), s.ImpressionGoal)
	assert.Empty(t, s.LineItems)
	assert.Equal(t, "2025-01-15", s.CampaignStart.String())
	assert.Equal(t, "2025-04-15", s.CampaignEnd.String())

	// Flights exist from the start, covering the default window.
	require.Len(t, s.Flights, 3)
	assert.Equal(t, "1/15/25 to 2/14/25", s.Flights[0].MonthYear)
	assert.Equal(t, "2025-04-14", s.Flights[2].End.String())
}

func TestValidateAttachment(t *testing.T) {
	assert.NoError(t, budget.ValidateAttachment("io.pdf", "application/pdf", 1024))
	assert.NoError(t, budget.ValidateAttachment("io.pdf", "application/pdf; charset=binary", budget.MaxAttachmentSize))

	err := budget.ValidateAttachment("io.docx", "application/msword", 1024)
	assert.ErrorIs(t, err, budget.ErrInvalidAttachment)

	err = budget.ValidateAttachment("big.pdf", "application/pdf", budget.MaxAttachmentSize+1)
	assert.ErrorIs(t, err, budget.ErrInvalidAttachment)
	assert.Contains(t, err.Error(), "10MB")
}

func TestStrategyPatch_Apply(t *testing.T) {
	s := pool("1000", 1000, "0")
	name := "Renamed"
	goal := int64(5000)

	budget.StrategyPatch{Name: &name, ImpressionGoal: &goal}.Apply(s)

	assert.Equal(t, "Renamed", s.Name)
	assert.Equal(t, int64(5000), s.ImpressionGoal)
	assertDecimal(t, "1000", s.ClientBudget)
}

func TestStrategyPatch_TouchesDates(t *testing.T) {
	s := pool("1000", 1000, "0")
	same := s.CampaignStart
	later := s.CampaignEnd.AddDays(10)

	assert.False(t, budget.StrategyPatch{CampaignStart: &same}.TouchesDates(*s))
	assert.True(t, budget.StrategyPatch{CampaignEnd: &later}.TouchesDates(*s))
}

func TestStrategy_CloneIsDeep(t *testing.T) {
	s := unevenStrategy()
	s.Attachment = &budget.Attachment{FileName: "io.pdf", Data: []byte("%PDF")}

	c := s.Clone()
	c.LineItems[0].CampaignName = "changed"
	c.Attachment.Data[0] = 'X'

	assert.Equal(t, "Alpha", s.LineItems[0].CampaignName)
	assert.Equal(t, byte('%'), s.Attachment.Data[0])
}

func TestStrategy_JSONDates(t *testing.T) {
	var d budget.Date
	require.NoError(t, d.UnmarshalJSON([]byte(`"2025-01-15T00:00:00.000Z"`)))
	assert.Equal(t, "2025-01-15", d.String())

	require.NoError(t, d.UnmarshalJSON([]byte(`""`)))
	assert.True(t, d.IsZero())

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
