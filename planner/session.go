/*
Package planner holds the editing session for the active strategy.

PURPOSE:
  A Session owns the single in-memory copy of the strategy being edited.
  Every allocator operation runs against that copy and the result is
  mirrored to the store.

PERSISTENCE:
  Auto-save on (default):
    Each mutation restarts a debounce timer. When it fires, the latest state
    is written. Edits inside the window collapse into one write.
  Auto-save off:
    Each mutation is written immediately and the store error is returned to
    the caller.

  A generation counter is bumped on every mutation. A scheduled write only
  runs if its generation is still current, so a timer that fires after the
  strategy was switched away or deleted writes nothing.

SWITCHING:
  Load and Close flush unsaved edits of the previous strategy before
  switching. Delete of the active strategy cancels the pending write
  without flushing.

ERRORS:
  Auto-save failures have no caller to return to. They are logged and passed
  to Options.OnSaveError. Nothing is retried; the next mutation schedules a
  fresh write.

USAGE:
  session := planner.NewSession(store, planner.Options{Logger: logger})
  if err := session.Restore(ctx); err != nil { ... }
  pending, err := session.EditLineItem(ctx, id, budget.FieldClientBudget, "400")
  if pending != nil {
      err = session.ResolvePending(ctx, budget.RedistributeEvenly)
  }

SEE ALSO:
  - budget/allocator.go: line item operations
  - budget/flights.go: flight generation
  - budget/store.go: Store interface
*/
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/strategy-planner/budget"
)

// DefaultDebounce is the auto-save delay.
const DefaultDebounce = time.Second

// errUnchanged tells mutate the operation left the strategy as it was.
var errUnchanged = errors.New("unchanged")

// Options configures a Session. The zero value is usable.
type Options struct {
	// DisableAutoSave writes every mutation immediately.
	DisableAutoSave bool

	Debounce  time.Duration
	Logger    *slog.Logger
	Allocator *budget.LineItemAllocator
	Now       func() time.Time

	// OnSaveError is called from the timer goroutine when a debounced write fails.
	OnSaveError func(strategyID string, err error)
}

// Session is safe for concurrent use, but it models one user: there is one
// active strategy and the last mutation wins.
type Session struct {
	store       budget.Store
	alloc       *budget.LineItemAllocator
	log         *slog.Logger
	now         func() time.Time
	debounce    time.Duration
	onSaveError func(string, error)

	// saveMu serializes writes so they land in generation order.
	saveMu sync.Mutex

	mu         sync.Mutex
	current    *budget.Strategy
	pending    *budget.PendingEdit
	autoSave   bool
	timer      *time.Timer
	generation uint64
	saved      uint64
}

func NewSession(store budget.Store, opts Options) *Session {
	s := &Session{
		store:       store,
		alloc:       opts.Allocator,
		log:         opts.Logger,
		now:         opts.Now,
		debounce:    opts.Debounce,
		onSaveError: opts.OnSaveError,
		autoSave:    !opts.DisableAutoSave,
	}
	if s.alloc == nil {
		s.alloc = budget.NewLineItemAllocator()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Restore activates the strategy recorded as the current selection. A
// selection pointing at a deleted strategy is cleared.
func (s *Session) Restore(ctx context.Context) error {
	id, err := s.store.CurrentID(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if id == "" {
		return nil
	}
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if st == nil {
		s.log.Warn("current strategy no longer exists", "id", id)
		return s.store.SetCurrentID(ctx, "")
	}
	s.activate(st)
	s.log.Info("session restored", "id", st.ID, "name", st.Name)
	return nil
}

// Create validates the input, stores a new empty strategy and activates it.
func (s *Session) Create(ctx context.Context, in budget.NewStrategyInput) (*budget.Strategy, error) {
	st, err := in.Build(s.now())
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, st)
}

// Open stores a prepared strategy (for example a template instance) and
// activates it.
func (s *Session) Open(ctx context.Context, st budget.Strategy) (*budget.Strategy, error) {
	if err := s.flushCurrent(ctx); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("create strategy: %w", err)
	}
	if err := s.store.SetCurrentID(ctx, created.ID); err != nil {
		return nil, fmt.Errorf("select strategy: %w", err)
	}
	s.activate(created)
	s.log.Info("strategy created", "id", created.ID, "name", created.Name)

	out := created.Clone()
	return &out, nil
}

// Load switches to another strategy. Unsaved edits of the previous one are
// written first.
func (s *Session) Load(ctx context.Context, id string) (*budget.Strategy, error) {
	if err := s.flushCurrent(ctx); err != nil {
		return nil, err
	}
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	if st == nil {
		return nil, budget.ErrStrategyNotFound
	}
	if err := s.store.SetCurrentID(ctx, id); err != nil {
		return nil, fmt.Errorf("select strategy: %w", err)
	}
	s.activate(st)

	out := st.Clone()
	return &out, nil
}

// Close flushes and deactivates the current strategy.
func (s *Session) Close(ctx context.Context) error {
	if err := s.flushCurrent(ctx); err != nil {
		return err
	}
	s.deactivate()
	return s.store.SetCurrentID(ctx, "")
}

// Delete removes a strategy. Deleting the active one drops any pending write.
func (s *Session) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	active := s.current != nil && s.current.ID == id
	s.mu.Unlock()
	if active {
		s.deactivate()
	}

	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete strategy: %w", err)
	}
	return ok, nil
}

// Duplicate copies a stored strategy. The active strategy is flushed first so
// the copy includes its latest edits.
func (s *Session) Duplicate(ctx context.Context, id, newName string) (*budget.Strategy, error) {
	s.mu.Lock()
	active := s.current != nil && s.current.ID == id
	s.mu.Unlock()
	if active {
		if err := s.Save(ctx); err != nil {
			return nil, err
		}
	}

	dup, err := s.store.Duplicate(ctx, id, newName)
	if err != nil {
		return nil, fmt.Errorf("duplicate strategy: %w", err)
	}
	if dup == nil {
		return nil, budget.ErrStrategyNotFound
	}
	return dup, nil
}

func (s *Session) activate(st *budget.Strategy) {
	c := st.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.current = &c
	s.pending = nil
	s.generation++
	s.saved = s.generation
}

func (s *Session) deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.current = nil
	s.pending = nil
	s.generation++
	s.saved = s.generation
}

// =============================================================================
// READS
// =============================================================================

// Current returns a copy of the active strategy.
func (s *Session) Current() (budget.Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return budget.Strategy{}, false
	}
	return s.current.Clone(), true
}

// Dirty reports whether the active strategy has unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.generation != s.saved
}

func (s *Session) read(fn func(st *budget.Strategy)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return budget.ErrNoActiveStrategy
	}
	fn(s.current)
	return nil
}

// Validation checks the active strategy's line items against its pool.
func (s *Session) Validation() (budget.BudgetValidation, error) {
	var v budget.BudgetValidation
	err := s.read(func(st *budget.Strategy) { v = budget.Validate(st) })
	return v, err
}

// Calculations returns the active strategy's totals.
func (s *Session) Calculations() (budget.Calculations, error) {
	var c budget.Calculations
	err := s.read(func(st *budget.Strategy) { c = budget.Calculate(st) })
	return c, err
}

// GroupedLineItems returns the line items grouped by tactic for display.
func (s *Session) GroupedLineItems() ([]budget.TacticGroup, error) {
	var groups []budget.TacticGroup
	err := s.read(func(st *budget.Strategy) { groups = budget.GroupByTactic(st.LineItems) })
	return groups, err
}

// PendingEdit returns the edit awaiting a redistribution choice, if any.
func (s *Session) PendingEdit() *budget.PendingEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// =============================================================================
// STRATEGY EDITS
// =============================================================================

// Update merges a patch into the active strategy. A change to either
// campaign date regenerates the flights.
func (s *Session) Update(ctx context.Context, patch budget.StrategyPatch) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		regenerate := patch.TouchesDates(*st)
		patch.Apply(st)
		if regenerate {
			budget.RegenerateFlights(st)
		}
		return nil
	})
}

// SetDates changes the campaign dates.
func (s *Session) SetDates(ctx context.Context, start, end budget.Date) error {
	return s.Update(ctx, budget.StrategyPatch{CampaignStart: &start, CampaignEnd: &end})
}

// AttachDocument attaches the signed IO document, replacing any previous one.
func (s *Session) AttachDocument(ctx context.Context, fileName, contentType string, data []byte) error {
	if err := budget.ValidateAttachment(fileName, contentType, int64(len(data))); err != nil {
		return err
	}
	att := &budget.Attachment{
		FileName:    fileName,
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return s.mutate(ctx, func(st *budget.Strategy) error {
		st.Attachment = att
		return nil
	})
}

// RemoveAttachment drops the attached document.
func (s *Session) RemoveAttachment(ctx context.Context) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		if st.Attachment == nil {
			return errUnchanged
		}
		st.Attachment = nil
		return nil
	})
}

// =============================================================================
// FLIGHTS
// =============================================================================

// RegenerateFlights rebuilds the flights and returns how many there are.
func (s *Session) RegenerateFlights(ctx context.Context) (int, error) {
	var n int
	err := s.mutate(ctx, func(st *budget.Strategy) error {
		n = budget.RegenerateFlights(st)
		return nil
	})
	return n, err
}

func (s *Session) EditFlight(ctx context.Context, id string, field budget.Field, raw string) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		found, err := budget.EditFlight(st, id, field, raw)
		if !found {
			return budget.ErrFlightNotFound
		}
		return err
	})
}

func (s *Session) DeleteFlight(ctx context.Context, id string) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		if !budget.DeleteFlight(st, id) {
			return budget.ErrFlightNotFound
		}
		return nil
	})
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (s *Session) AddLineItems(ctx context.Context, req budget.BatchAddRequest) ([]budget.LineItem, error) {
	var added []budget.LineItem
	err := s.mutate(ctx, func(st *budget.Strategy) error {
		var err error
		added, err = s.alloc.AddBatch(st, req)
		return err
	})
	return added, err
}

func (s *Session) DeleteLineItem(ctx context.Context, id string) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		if !s.alloc.Delete(st, id) {
			return budget.ErrLineItemNotFound
		}
		s.clearPendingFor(id)
		return nil
	})
}

func (s *Session) DuplicateLineItem(ctx context.Context, id string) (budget.LineItem, error) {
	var dup budget.LineItem
	err := s.mutate(ctx, func(st *budget.Strategy) error {
		var ok bool
		if dup, ok = s.alloc.Duplicate(st, id); !ok {
			return budget.ErrLineItemNotFound
		}
		return nil
	})
	return dup, err
}

func (s *Session) MoveLineItem(ctx context.Context, id string, tactic budget.Tactic) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		if !s.alloc.MoveToTactic(st, id, tactic) {
			return budget.ErrLineItemNotFound
		}
		return nil
	})
}

// Rebalance resets every line item to an even share of the pool.
func (s *Session) Rebalance(ctx context.Context) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		s.alloc.Rebalance(st)
		return nil
	})
}

// EditLineItem applies a cell edit. When the edit needs a redistribution
// choice nothing changes yet: the pending edit is returned and kept until
// ResolvePending or DiscardPending.
func (s *Session) EditLineItem(ctx context.Context, id string, field budget.Field, raw string) (*budget.PendingEdit, error) {
	var pending *budget.PendingEdit
	err := s.mutate(ctx, func(st *budget.Strategy) error {
		p, found, err := s.alloc.EditCell(st, id, field, raw)
		if !found {
			return budget.ErrLineItemNotFound
		}
		if err != nil {
			return err
		}
		if p != nil {
			s.pending = p
			pending = p
			return errUnchanged
		}
		return nil
	})
	if pending != nil {
		c := *pending
		return &c, err
	}
	return nil, err
}

// ResolvePending applies the pending edit with the chosen policy.
func (s *Session) ResolvePending(ctx context.Context, policy budget.RedistributionPolicy) error {
	return s.mutate(ctx, func(st *budget.Strategy) error {
		if s.pending == nil {
			return budget.ErrNoPendingEdit
		}
		found, err := s.alloc.Resolve(st, *s.pending, policy)
		if err != nil {
			return err
		}
		s.pending = nil
		if !found {
			return budget.ErrLineItemNotFound
		}
		return nil
	})
}

// DiscardPending drops the pending edit, leaving the line items unchanged.
func (s *Session) DiscardPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// clearPendingFor is called with mu held.
func (s *Session) clearPendingFor(itemID string) {
	if s.pending != nil && s.pending.ItemID == itemID {
		s.pending = nil
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// AutoSave reports whether debounced saving is on.
func (s *Session) AutoSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSave
}

// SetAutoSave switches between debounced and immediate saving. Turning it
// off flushes any pending write.
func (s *Session) SetAutoSave(ctx context.Context, on bool) error {
	s.mu.Lock()
	s.autoSave = on
	s.mu.Unlock()
	if on {
		return nil
	}
	return s.Save(ctx)
}

// Save writes the active strategy now, cancelling any scheduled write.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return budget.ErrNoActiveStrategy
	}
	s.stopTimerLocked()
	gen := s.generation
	s.mu.Unlock()
	return s.flush(ctx, gen)
}

// flushCurrent writes unsaved edits of the active strategy, if there is one.
func (s *Session) flushCurrent(ctx context.Context) error {
	err := s.Save(ctx)
	if errors.Is(err, budget.ErrNoActiveStrategy) {
		return nil
	}
	return err
}

// mutate runs fn against the active strategy and persists the result. fn
// must leave the strategy untouched when it returns an error.
func (s *Session) mutate(ctx context.Context, fn func(st *budget.Strategy) error) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return budget.ErrNoActiveStrategy
	}
	if err := fn(s.current); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}

	s.generation++
	gen := s.generation
	if s.autoSave {
		s.scheduleLocked(gen)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.flush(ctx, gen)
}

func (s *Session) scheduleLocked(gen uint64) {
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.flush(context.Background(), gen); err != nil {
			s.reportSaveError(err)
		}
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// flush writes the active strategy if gen is still the latest generation and
// hasn't been written yet.
func (s *Session) flush(ctx context.Context, gen uint64) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.current == nil || gen != s.generation || gen == s.saved {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.current.Clone()
	s.mu.Unlock()

	saved, err := s.store.Update(ctx, snapshot.ID, budget.PatchFrom(snapshot))
	if err != nil {
		return &SaveError{StrategyID: snapshot.ID, Err: err}
	}
	if saved == nil {
		return &SaveError{StrategyID: snapshot.ID, Err: budget.ErrStrategyNotFound}
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == saved.ID {
		s.current.UpdatedAt = saved.UpdatedAt
		if gen == s.generation {
			s.saved = gen
		}
	}
	s.mu.Unlock()

	s.log.Debug("strategy saved", "id", saved.ID, "generation", gen)
	return nil
}

func (s *Session) reportSaveError(err error) {
	var se *SaveError
	id := ""
	if errors.As(err, &se) {
		id = se.StrategyID
	}
	s.log.Error("auto-save failed", "id", id, "error", err)
	if s.onSaveError != nil {
		s.onSaveError(id, err)
	}
}

// SaveError wraps a failed write of the active strategy.
type SaveError struct {
	StrategyID string
	Err        error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save strategy %s: %v", e.StrategyID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Discard deactivates the current strategy without saving. Used when the
// store contents were replaced underneath the session.
func (s *Session) Discard() {
	s.deactivate()
}
