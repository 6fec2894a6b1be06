package factory_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/factory"
)

const launchTemplate = `{
  "id": "tpl-launch",
  "name": "  Dispensary Quarter ",
  "clientBudget": "15000",
  "impressionGoal": 1500000,
  "dspSpend": "4500",
  "lineItemTemplate": [
    {"tactic": "Conquesting", "targeting": "Geospatial: Competitor Dispensaries", "rpm": "10", "dspBid": "3"},
    {"rpm": "12", "dspBid": "4"},
    {"tactic": "Retargeting", "rpm": "9", "dspBid": "2"}
  ],
  "tags": ["Cannabis", "launch", "cannabis", " "]
}`

func testFactory() *factory.TemplateFactory {
	n := 0
	return factory.NewTemplateFactoryWith(&budget.LineItemAllocator{
		NewID: func() string { n++; return fmt.Sprintf("li-%d", n) },
		Now:   time.Now,
	})
}

func input() budget.NewStrategyInput {
	return budget.NewStrategyInput{Name: "Q1 Launch", ClientName: "Bakeree", AgencyName: "Orangellow", Channel: "Display"}
}

func TestParseTemplate_Defaults(t *testing.T) {
	f := testFactory()

	tpl, err := f.ParseTemplate(launchTemplate)
	require.NoError(t, err)

	assert.Equal(t, "tpl-launch", tpl.ID)
	assert.Equal(t, "Dispensary Quarter", tpl.Name)
	assert.Equal(t, factory.DefaultDurationMonths, tpl.DurationMonths)
	assert.Equal(t, []string{"cannabis", "launch"}, tpl.Tags)
	require.Len(t, tpl.LineItems, 3)
	assert.Equal(t, string(budget.TacticConquesting), tpl.LineItems[1].Tactic, "empty tactic defaults")
}

func TestParseTemplate_Errors(t *testing.T) {
	f := testFactory()

	_, err := f.ParseTemplate(`{"name": ""}`)
	assert.ErrorIs(t, err, factory.ErrEmptyTemplateName)

	_, err = f.ParseTemplate(`{not json`)
	assert.Error(t, err)

	_, err = f.ParseTemplate(`{"name": "x", "impressionGoal": -5}`)
	assert.Error(t, err)
}

func TestInstantiate_SplitsPoolAndGeneratesFlights(t *testing.T) {
	// GIVEN: a template with a $15,000 / 1.5M pool and three line items
	f := testFactory()
	tpl, err := f.ParseTemplate(launchTemplate)
	require.NoError(t, err)

	// WHEN: instantiated on 2025-01-15
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	s, err := f.Instantiate(tpl, input(), now)
	require.NoError(t, err)

	// THEN: the campaign runs three months with the pool split evenly
	assert.Equal(t, "2025-01-15", s.CampaignStart.String())
	assert.Equal(t, "2025-04-15", s.CampaignEnd.String())
	assert.Equal(t, "tpl-launch", s.TemplateID)
	require.Len(t, s.LineItems, 3)

	for i, li := range s.LineItems {
		assert.Equal(t, fmt.Sprintf("li-%d", i+1), li.ID)
		assert.Equal(t, i, li.Order)
		assert.Equal(t, "Display", li.Channel)
		assert.True(t, li.ClientBudget.Equal(decimal.NewFromInt(5000)), li.ClientBudget.String())
		assert.Equal(t, int64(500_000), li.Impressions)
		assert.True(t, li.RPM.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, s.CampaignStart, li.FlightStart)
	}
	// dspSpend follows each item's own bid
	assert.True(t, s.LineItems[1].DSPSpend.Equal(decimal.NewFromInt(2000)))

	// AND: flights cover the campaign
	periods := budget.GenerateFlightPeriods(s.CampaignStart, s.CampaignEnd)
	require.Len(t, s.Flights, len(periods))
	assert.Equal(t, "1/15/25 to 2/14/25", s.Flights[0].MonthYear)

	validation := budget.Validate(&s)
	assert.True(t, validation.IsValid)
	assert.Empty(t, validation.Warnings)
}

func TestInstantiate_EmptyPoolKeepsTemplateRates(t *testing.T) {
	f := testFactory()
	tpl, err := f.FromJSON(factory.TemplateJSON{
		Name:            "Rates only",
		DefaultDuration: 2,
		LineItems: []factory.LineItemTemplate{
			{Tactic: "Prospecting", RPM: decimal.NewFromInt(14), DSPBid: decimal.NewFromInt(5)},
		},
	})
	require.NoError(t, err)

	s, err := f.Instantiate(tpl, input(), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "2025-05-01", s.CampaignEnd.String())
	require.Len(t, s.LineItems, 1)
	assert.True(t, s.LineItems[0].RPM.Equal(decimal.NewFromInt(14)))
	assert.Equal(t, int64(0), s.LineItems[0].Impressions)
	assert.True(t, s.LineItems[0].ClientBudget.IsZero())
	assert.NotEmpty(t, s.Flights)
}

func TestInstantiate_RequiresStrategyFields(t *testing.T) {
	f := testFactory()
	tpl, err := f.ParseTemplate(launchTemplate)
	require.NoError(t, err)

	_, err = f.Instantiate(tpl, budget.NewStrategyInput{Name: "x"}, time.Now())
	assert.ErrorIs(t, err, budget.ErrMissingField)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := testFactory()
	tpl, err := f.ParseTemplate(launchTemplate)
	require.NoError(t, err)

	again, err := f.FromJSON(f.ToJSON(tpl))
	require.NoError(t, err)
	assert.Equal(t, tpl, again)
}

func TestFromStrategy(t *testing.T) {
	f := testFactory()
	s := budget.Strategy{
		CampaignStart: budget.NewDate(2025, 1, 1),
		CampaignEnd:   budget.NewDate(2025, 7, 1),
		LineItems: []budget.LineItem{{
			ID: "li-x", Tactic: budget.TacticRetargeting, RPM: decimal.NewFromInt(8), DSPBid: decimal.NewFromInt(2),
			Impressions: 1000, ClientBudget: decimal.NewFromInt(8),
		}},
	}

	tj := f.FromStrategy(s, "Half year", "", []string{"Evergreen"})

	assert.Equal(t, 6, tj.DefaultDuration)
	assert.Equal(t, []string{"evergreen"}, tj.Tags)
	require.Len(t, tj.LineItems, 1)
	assert.Equal(t, "Retargeting", tj.LineItems[0].Tactic)
	assert.True(t, tj.LineItems[0].RPM.Equal(decimal.NewFromInt(8)))
}
