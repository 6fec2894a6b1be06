/*
allocator.go - Line-item allocator

PURPOSE:
  Maintains a strategy's line items against its single budget/impression
  pool: batch add, delete, duplicate, per-cell edit and redistribution.

REBALANCE POLICY:
  Delete and Duplicate end with Rebalance: EVERY surviving line item is reset
  to an even share of the pool. The deleted item's share is not handed back
  incrementally, and hand-tuned allocations on the survivors are discarded.

    before: A=$500  B=$300  C=$200   (pool $1000)
    Delete(C)
    after:  A=$500  B=$500

BATCH ADD:
  Existing items are forced onto the even share 100/(existing+count)%.
  New items get the same even share in AllocationEven mode, or their own
  percentage in AllocationManual mode (which must sum to 100 +/- 0.01).

CELL EDITS:
  Editing impressions or clientBudget while two or more items exist is not
  applied immediately. EditCell returns a PendingEdit and the caller resolves
  it with a RedistributionPolicy:
    RedistributeEvenly: apply the edit, split the pool remainder evenly
                        across every other item
    ManualAdjustment:   apply the edit only; others are untouched

ROUNDING:
  Line-item impressions round to the nearest integer (flights truncate;
  see flights.go). A zero rpm yields zero impressions instead of dividing.
*/
package budget

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TYPES
// =============================================================================

type AllocationMode string

const (
	AllocationEven   AllocationMode = "even"
	AllocationManual AllocationMode = "manual"
)

// BatchAddRequest describes an "add N line items" operation.
type BatchAddRequest struct {
	Count       int
	Mode        AllocationMode
	Percentages []decimal.Decimal // manual mode only, one per new item
	Tactics     []Tactic          // optional, one per new item
}

type RedistributionPolicy string

const (
	RedistributeEvenly RedistributionPolicy = "even"
	ManualAdjustment   RedistributionPolicy = "manual"
)

// PendingEdit is a budget or impressions edit awaiting a redistribution choice.
type PendingEdit struct {
	ItemID string `json:"itemId"`
	Field  Field  `json:"field"`
	Value  string `json:"value"`
}

// TacticGroup is a display group of line items sharing a tactic.
type TacticGroup struct {
	Tactic Tactic     `json:"tactic"`
	Items  []LineItem `json:"items"`
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// LineItemAllocator mutates a strategy's line items. It holds no state of its
// own; NewID and Now are injectable for tests.
type LineItemAllocator struct {
	NewID func() string
	Now   func() time.Time
}

func NewLineItemAllocator() *LineItemAllocator {
	return &LineItemAllocator{NewID: uuid.NewString, Now: time.Now}
}

// AddBatch appends req.Count new line items and re-percentages every item.
// Invalid requests are rejected before anything is mutated.
func (a *LineItemAllocator) AddBatch(s *Strategy, req BatchAddRequest) ([]LineItem, error) {
	if req.Count < 1 {
		return nil, ErrInvalidCount
	}
	if req.Mode == AllocationManual {
		if err := checkPercentages(req.Count, req.Percentages); err != nil {
			return nil, err
		}
	}

	existing := len(s.LineItems)
	evenShare := hundred.Div(decimal.NewFromInt(int64(existing + req.Count)))
	rpm := s.BlendedRPM()

	for i := range s.LineItems {
		a.applyShare(s, &s.LineItems[i], evenShare, rpm)
	}

	flightStart, flightEnd := s.CampaignStart, s.CampaignEnd
	if flightStart.IsZero() || flightEnd.IsZero() {
		now := DateOf(a.Now())
		flightStart, flightEnd = now, now.AddDays(90)
	}

	added := make([]LineItem, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		share := evenShare
		if req.Mode == AllocationManual {
			share = req.Percentages[i]
		}
		tactic := DefaultTactic
		if i < len(req.Tactics) && req.Tactics[i] != "" {
			tactic = req.Tactics[i]
		}

		item := LineItem{
			ID:          a.NewID(),
			Tactic:      tactic,
			FlightStart: flightStart,
			FlightEnd:   flightEnd,
			Order:       existing + i,
		}
		a.applyShare(s, &item, share, rpm)
		added = append(added, item)
	}

	s.LineItems = append(s.LineItems, added...)
	return added, nil
}

func checkPercentages(count int, percentages []decimal.Decimal) error {
	total := decimal.Zero
	for _, p := range percentages {
		total = total.Add(p)
	}
	if len(percentages) != count || total.Sub(hundred).Abs().GreaterThan(Tolerance) {
		return &AllocationError{Count: count, Percentages: len(percentages), Total: total}
	}
	return nil
}

// applyShare sets budget and impressions to pct% of the pool.
func (a *LineItemAllocator) applyShare(s *Strategy, item *LineItem, pct, rpm decimal.Decimal) {
	item.ClientBudget = s.ClientBudget.Mul(pct).Div(hundred)
	item.Impressions = roundImpressions(decimal.NewFromInt(s.ImpressionGoal).Mul(pct).Div(hundred))
	item.RPM = rpm
	item.DSPSpend = CostFor(item.Impressions, item.DSPBid)
}

// Rebalance resets every line item to an even split of the pool.
//
// Postcondition: with n items, each item's budget is pool/n, impressions are
// round(goal/n), rpm is the pool's blended rate and dspSpend is re-derived
// from the item's own dspBid. With no items it does nothing.
func (a *LineItemAllocator) Rebalance(s *Strategy) {
	n := len(s.LineItems)
	if n == 0 {
		return
	}
	count := decimal.NewFromInt(int64(n))
	budget := s.ClientBudget.Div(count)
	impressions := roundImpressions(decimal.NewFromInt(s.ImpressionGoal).Div(count))
	rpm := s.BlendedRPM()

	for i := range s.LineItems {
		item := &s.LineItems[i]
		item.ClientBudget = budget
		item.Impressions = impressions
		item.RPM = rpm
		item.DSPSpend = CostFor(impressions, item.DSPBid)
	}
}

// Delete removes the line item and rebalances the survivors.
// Returns false if no item has that id.
func (a *LineItemAllocator) Delete(s *Strategy, id string) bool {
	i := s.lineItemIndex(id)
	if i < 0 {
		return false
	}
	s.LineItems = append(s.LineItems[:i:i], s.LineItems[i+1:]...)
	a.Rebalance(s)
	return true
}

// Duplicate appends a copy of the line item, suffixing its campaign name with
// " (Copy)", then rebalances all items across the new count.
func (a *LineItemAllocator) Duplicate(s *Strategy, id string) (LineItem, bool) {
	i := s.lineItemIndex(id)
	if i < 0 {
		return LineItem{}, false
	}
	dup := s.LineItems[i]
	dup.ID = a.NewID()
	dup.CampaignName = dup.CampaignName + " (Copy)"

	s.LineItems = append(s.LineItems, dup)
	a.Rebalance(s)
	return s.LineItems[len(s.LineItems)-1], true
}

// MoveToTactic reassigns the item's tactic. Budgets are untouched.
func (a *LineItemAllocator) MoveToTactic(s *Strategy, id string, tactic Tactic) bool {
	i := s.lineItemIndex(id)
	if i < 0 {
		return false
	}
	s.LineItems[i].Tactic = tactic
	return true
}

// =============================================================================
// CELL EDITS
// =============================================================================

// NeedsRedistribution reports whether an edit to field must wait for a
// redistribution choice.
func NeedsRedistribution(s *Strategy, field Field) bool {
	return (field == FieldImpressions || field == FieldClientBudget) && len(s.LineItems) > 1
}

// EditCell applies an edit to one line item. When the edit needs a
// redistribution choice nothing is mutated and a PendingEdit is returned.
// found is false if no item has that id.
func (a *LineItemAllocator) EditCell(s *Strategy, id string, field Field, raw string) (pending *PendingEdit, found bool, err error) {
	i := s.lineItemIndex(id)
	if i < 0 {
		return nil, false, nil
	}
	if !isLineItemField(field) {
		return nil, true, &FieldError{Field: field, Err: ErrUnknownField}
	}
	if NeedsRedistribution(s, field) {
		return &PendingEdit{ItemID: id, Field: field, Value: raw}, true, nil
	}
	applyLineItemEdit(&s.LineItems[i], field, raw)
	return nil, true, nil
}

// Resolve applies a pending edit under the chosen policy. Returns false if
// the target item no longer exists.
func (a *LineItemAllocator) Resolve(s *Strategy, p PendingEdit, policy RedistributionPolicy) (bool, error) {
	if policy != RedistributeEvenly && policy != ManualAdjustment {
		return false, ErrInvalidPolicy
	}
	i := s.lineItemIndex(p.ItemID)
	if i < 0 {
		return false, nil
	}
	applyLineItemEdit(&s.LineItems[i], p.Field, p.Value)

	if policy == RedistributeEvenly {
		a.redistributeRemainder(s, p)
	}
	return true, nil
}

// redistributeRemainder splits pool minus the edited value evenly over every
// item other than the edited one.
func (a *LineItemAllocator) redistributeRemainder(s *Strategy, p PendingEdit) {
	others := len(s.LineItems) - 1
	if others < 1 {
		return
	}
	count := decimal.NewFromInt(int64(others))

	switch p.Field {
	case FieldClientBudget:
		remaining := s.ClientBudget.Sub(ParseAmount(p.Value))
		perItem := remaining.Div(count)
		for i := range s.LineItems {
			item := &s.LineItems[i]
			if item.ID == p.ItemID {
				continue
			}
			var impressions int64
			if !item.RPM.IsZero() {
				impressions = roundImpressions(perItem.Div(item.RPM).Mul(thousand))
			}
			item.ClientBudget = perItem
			item.Impressions = impressions
			item.DSPSpend = CostFor(impressions, item.DSPBid)
		}

	case FieldImpressions:
		remaining := s.ImpressionGoal - ParseImpressions(p.Value)
		perItem := roundImpressions(decimal.NewFromInt(remaining).Div(count))
		for i := range s.LineItems {
			item := &s.LineItems[i]
			if item.ID == p.ItemID {
				continue
			}
			item.Impressions = perItem
			item.ClientBudget = CostFor(perItem, item.RPM)
			item.DSPSpend = CostFor(perItem, item.DSPBid)
		}
	}
}

func isLineItemField(f Field) bool {
	if _, ok := lineItemMetrics[f]; ok {
		return true
	}
	switch f {
	case FieldChannel, FieldBillingCategory, FieldTactic, FieldTargeting,
		FieldChannelPartner, FieldBrandAdvertiser, FieldIONumber,
		FieldCampaignName, FieldDescription, FieldFlightStart, FieldFlightEnd:
		return true
	}
	return false
}

// applyLineItemEdit merges one edit into the item. Numeric fields go through
// the derivation rules; text fields are assigned; an unparseable date keeps
// the previous value.
func applyLineItemEdit(item *LineItem, field Field, raw string) {
	if m, ok := lineItemMetrics[field]; ok {
		d := Derive(item.Financials(), m, raw)
		item.setFinancials(d.Values)
		return
	}

	switch field {
	case FieldChannel:
		item.Channel = raw
	case FieldBillingCategory:
		item.BillingCategory = raw
	case FieldTactic:
		item.Tactic = Tactic(raw)
	case FieldTargeting:
		item.Targeting = raw
	case FieldChannelPartner:
		item.ChannelPartner = raw
	case FieldBrandAdvertiser:
		item.BrandAdvertiser = raw
	case FieldIONumber:
		item.IONumber = raw
	case FieldCampaignName:
		item.CampaignName = raw
	case FieldDescription:
		item.Description = raw
	case FieldFlightStart:
		if d, ok := ParseDate(raw); ok {
			item.FlightStart = d
		}
	case FieldFlightEnd:
		if d, ok := ParseDate(raw); ok {
			item.FlightEnd = d
		}
	}
}

// =============================================================================
// GROUPING
// =============================================================================

// GroupByTactic groups items by tactic for display. Groups follow the tactic
// priority (Conquesting, Prospecting, Retargeting, Event Targeting,
// Uncategorized); any other tactic comes last in first-seen order. Items
// within a group are ordered by Order.
func GroupByTactic(items []LineItem) []TacticGroup {
	sorted := append([]LineItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	var groups []TacticGroup
	index := make(map[Tactic]int)
	for _, item := range sorted {
		t := item.GroupTactic()
		gi, ok := index[t]
		if !ok {
			gi = len(groups)
			index[t] = gi
			groups = append(groups, TacticGroup{Tactic: t})
		}
		groups[gi].Items = append(groups[gi].Items, item)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return tacticRank(groups[i].Tactic) < tacticRank(groups[j].Tactic)
	})
	return groups
}

func tacticRank(t Tactic) int {
	for i, p := range tacticPriority {
		if p == t {
			return i
		}
	}
	return len(tacticPriority)
}
