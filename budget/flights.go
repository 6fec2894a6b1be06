/*
flights.go - Flight generator

PURPOSE:
  Partitions the campaign date range into billing-cycle periods and spreads
  the pool evenly across them.

ALLOCATION (N periods):
  impressionsAllocation  = goal / N        integer division, remainder dropped
  clientBudgetAllocation = budget / N
  dspSpendAllocation     = spend / N
  rpmTarget              = blended rpm of the pool   (same for every flight)
  dspBidAllocation       = blended bid of the pool   (same for every flight)
  profitMargin           = clientBudgetAllocation - dspSpendAllocation

  Flights truncate impressions while line items round them. Do not unify
  the two; totals depend on each.

REGENERATION:
  Wholesale replacement. Hand edits since the last generation are lost.
  Flight ids are positional ("flight-0", "flight-1", ...) so regenerating
  with unchanged inputs produces an identical collection.

EDITS:
  EditFlight re-derives only the edited flight. There is no cross-flight
  redistribution.
*/
package budget

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// GenerateFlightPeriods partitions [start, end] into billing cycles.
// A zero-length or inverted range yields no periods.
func GenerateFlightPeriods(start, end Date) []Period {
	return MonthlyPeriods(start, end)
}

// AllocateFlights builds one flight per period with an even share of the pool.
func AllocateFlights(s *Strategy, periods []Period) []Flight {
	flights := make([]Flight, 0, len(periods))
	if len(periods) == 0 {
		return flights
	}

	n := decimal.NewFromInt(int64(len(periods)))
	impressions := s.ImpressionGoal / int64(len(periods))
	budget := s.ClientBudget.Div(n)
	spend := s.DSPSpend.Div(n)
	rpm := s.BlendedRPM()
	bid := s.BlendedDSPBid()

	for i, p := range periods {
		flights = append(flights, Flight{
			ID:                     flightID(i),
			MonthYear:              p.Label(),
			Start:                  p.Start,
			End:                    p.End,
			ImpressionsAllocation:  impressions,
			RPMTarget:              rpm,
			ClientBudgetAllocation: budget,
			DSPBidAllocation:       bid,
			DSPSpendAllocation:     spend,
			ProfitMargin:           budget.Sub(spend),
			Order:                  i,
		})
	}
	return flights
}

func flightID(i int) string {
	return fmt.Sprintf("flight-%d", i)
}

// RegenerateFlights discards the strategy's flights and rebuilds them from
// the campaign dates and pool totals. Returns the number of flights.
func RegenerateFlights(s *Strategy) int {
	s.Flights = AllocateFlights(s, GenerateFlightPeriods(s.CampaignStart, s.CampaignEnd))
	return len(s.Flights)
}

// EditFlight applies an edit to a single flight. monthYear is a plain label
// assignment; profitMargin is derived and rejected. Returns false if no
// flight has that id.
func EditFlight(s *Strategy, id string, field Field, raw string) (bool, error) {
	i := s.flightIndex(id)
	if i < 0 {
		return false, nil
	}
	f := &s.Flights[i]

	switch field {
	case FieldMonthYear:
		f.MonthYear = raw
		return true, nil
	case FieldProfitMargin:
		return true, &FieldError{Field: field, Err: ErrReadOnlyField}
	}

	m, ok := flightMetrics[field]
	if !ok {
		return true, &FieldError{Field: field, Err: ErrUnknownField}
	}
	d := Derive(f.Financials(), m, raw)
	f.setFinancials(d.Values)
	return true, nil
}

// DeleteFlight removes one flight. The remaining flights keep their
// allocations; nothing is redistributed.
func DeleteFlight(s *Strategy, id string) bool {
	i := s.flightIndex(id)
	if i < 0 {
		return false
	}
	s.Flights = append(s.Flights[:i:i], s.Flights[i+1:]...)
	return true
}
