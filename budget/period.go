package budget

// =============================================================================
// PERIOD - a closed range of calendar days
// =============================================================================

// Period is the closed range [Start, End].
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns the number of calendar days in the period, inclusive.
func (p Period) Days() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return int(p.End.Time.Sub(p.Start.Time).Hours()/24) + 1
}

// Label formats the period as "M/D/YY to M/D/YY".
func (p Period) Label() string {
	return p.Start.Short() + " to " + p.End.Short()
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// MONTHLY PARTITION - billing-cycle periods
// =============================================================================

// MonthlyPeriods partitions [start, end] into billing cycles. Each cycle ends
// the day before the same calendar day of the following month; the final cycle
// is clamped to end. Consecutive periods neither overlap nor leave gaps. A
// cycle that would start on end itself is not emitted.
//
// An unset, zero-length or inverted range yields no periods.
func MonthlyPeriods(start, end Date) []Period {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil
	}

	var periods []Period
	current := start
	for current.Before(end) {
		cycleEnd := current.AddMonths(1).AddDays(-1)
		if cycleEnd.After(end) {
			cycleEnd = end
		}
		periods = append(periods, Period{Start: current, End: cycleEnd})
		current = cycleEnd.AddDays(1)
	}
	return periods
}
