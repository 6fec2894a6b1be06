/*
Package library provides the advertiser/agency and audience-targeting
reference libraries.

PURPOSE:
  Each library is a fixed built-in base set plus a user overlay. The base set
  is embedded (defaults.yaml) and never mutated or copied into storage; only
  the overlay is persisted, through a Backend.

SET SEMANTICS:
  All returns base entries first, then overlay entries, without duplicates.
  Add is a no-op when an identical entry already exists (in either set).
  Remove only affects the overlay; removing a built-in entry is a no-op.

SEE ALSO:
  - advertisers.go: advertiser/agency lookups
  - audiences.go: audience target lookups
  - store/sqlite: Backend implementation
*/
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Backend persists overlay documents by kind.
type Backend interface {
	LoadOverlay(ctx context.Context, kind string) ([]byte, error)
	SaveOverlay(ctx context.Context, kind string, doc []byte) error
}

// Library is a base set plus a persisted overlay of T.
type Library[T comparable] struct {
	mu      sync.Mutex
	kind    string
	base    []T
	backend Backend

	// normalize cleans user input (trimming) and rejects invalid entries.
	normalize func(T) (T, error)
}

func newLibrary[T comparable](kind string, base []T, backend Backend, normalize func(T) (T, error)) *Library[T] {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Library[T]{
		kind:      kind,
		base:      base,
		backend:   backend,
		normalize: normalize,
	}
}

// Kind is the overlay key this library persists under.
func (l *Library[T]) Kind() string { return l.kind }

// Base returns a copy of the built-in entries.
func (l *Library[T]) Base() []T {
	return append([]T(nil), l.base...)
}

// All returns base entries followed by overlay entries.
func (l *Library[T]) All(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	overlay, err := l.loadOverlay(ctx)
	if err != nil {
		return nil, err
	}
	return l.merge(overlay), nil
}

// Add inserts entry into the overlay. Returns false if an identical entry
// already exists.
func (l *Library[T]) Add(ctx context.Context, entry T) (bool, error) {
	entry, err := l.normalize(entry)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	overlay, err := l.loadOverlay(ctx)
	if err != nil {
		return false, err
	}
	if contains(l.base, entry) || contains(overlay, entry) {
		return false, nil
	}
	return true, l.saveOverlay(ctx, append(overlay, entry))
}

// Remove deletes entry from the overlay. Built-in entries cannot be removed;
// Remove returns false for them and for unknown entries.
func (l *Library[T]) Remove(ctx context.Context, entry T) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	overlay, err := l.loadOverlay(ctx)
	if err != nil {
		return false, err
	}

	kept := overlay[:0:0]
	for _, e := range overlay {
		if e != entry {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(overlay) {
		return false, nil
	}
	return true, l.saveOverlay(ctx, kept)
}

func (l *Library[T]) loadOverlay(ctx context.Context) ([]T, error) {
	doc, err := l.backend.LoadOverlay(ctx, l.kind)
	if err != nil {
		return nil, err
	}
	var overlay []T
	if len(doc) == 0 {
		return overlay, nil
	}
	if err := json.Unmarshal(doc, &overlay); err != nil {
		return nil, fmt.Errorf("failed to decode %s overlay: %w", l.kind, err)
	}
	return overlay, nil
}

// saveOverlay never writes base entries, even if an older overlay held some.
func (l *Library[T]) saveOverlay(ctx context.Context, overlay []T) error {
	custom := make([]T, 0, len(overlay))
	for _, e := range overlay {
		if !contains(l.base, e) {
			custom = append(custom, e)
		}
	}
	doc, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("failed to encode %s overlay: %w", l.kind, err)
	}
	return l.backend.SaveOverlay(ctx, l.kind, doc)
}

func (l *Library[T]) merge(overlay []T) []T {
	merged := append([]T(nil), l.base...)
	for _, e := range overlay {
		if !contains(merged, e) {
			merged = append(merged, e)
		}
	}
	return merged
}

func contains[T comparable](list []T, v T) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryBackend keeps overlays in process (for testing/dev).
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) LoadOverlay(_ context.Context, kind string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.docs[kind]...), nil
}

func (m *MemoryBackend) SaveOverlay(_ context.Context, kind string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[kind] = append([]byte(nil), doc...)
	return nil
}
