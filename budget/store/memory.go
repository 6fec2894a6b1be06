// Package store provides in-process budget.Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/strategy-planner/budget"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps strategies in insertion order. Every read and write copies,
// so callers never share line item or flight slices with the store.
type Memory struct {
	mu         sync.RWMutex
	strategies map[string]budget.Strategy
	order      []string
	currentID  string

	newID func() string
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		strategies: make(map[string]budget.Strategy),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) List(_ context.Context) ([]budget.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]budget.Strategy, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.strategies[id].Clone())
	}
	return result, nil
}

// Get returns nil, nil if the strategy doesn't exist.
func (m *Memory) Get(_ context.Context, id string) (*budget.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.strategies[id]
	if !ok {
		return nil, nil
	}
	c := s.Clone()
	return &c, nil
}

func (m *Memory) Create(_ context.Context, s budget.Strategy) (*budget.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(s), nil
}

func (m *Memory) createLocked(s budget.Strategy) *budget.Strategy {
	c := s.Clone()
	now := m.now()
	c.ID = m.newID()
	c.CreatedAt = now
	c.UpdatedAt = now

	m.strategies[c.ID] = c
	m.order = append(m.order, c.ID)

	out := c.Clone()
	return &out
}

func (m *Memory) Update(_ context.Context, id string, patch budget.StrategyPatch) (*budget.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.strategies[id]
	if !ok {
		return nil, nil
	}
	s = s.Clone()
	patch.Apply(&s)
	s.UpdatedAt = m.now()
	m.strategies[id] = s

	out := s.Clone()
	return &out, nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[id]; !ok {
		return false, nil
	}
	delete(m.strategies, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	if m.currentID == id {
		m.currentID = ""
	}
	return true, nil
}

func (m *Memory) Duplicate(_ context.Context, id, newName string) (*budget.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.strategies[id]
	if !ok {
		return nil, nil
	}
	if newName == "" {
		newName = s.Name + " (Copy)"
	}
	dup := s.Clone()
	dup.Name = newName
	return m.createLocked(dup), nil
}

func (m *Memory) CurrentID(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentID, nil
}

func (m *Memory) SetCurrentID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentID = id
	return nil
}

// ReplaceAll drops every strategy and stores the given ones under fresh ids.
func (m *Memory) ReplaceAll(_ context.Context, strategies []budget.Strategy) ([]budget.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strategies = make(map[string]budget.Strategy)
	m.order = nil
	m.currentID = ""

	created := make([]budget.Strategy, 0, len(strategies))
	for _, s := range strategies {
		created = append(created, *m.createLocked(s))
	}
	return created, nil
}
