/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists strategies, templates, the current selection and the user's
  library overlays in one SQLite file.

INTERFACES IMPLEMENTED:
  budget.Store:        Strategy persistence and current selection
  library.Backend:     Advertiser / audience overlay documents
  Templates:           Template records (config parsed by factory)

DOCUMENT STORAGE:
  A strategy is stored as one JSON document (doc_json) with a few columns
  pulled out for listing. Line items and flights are never queried on their
  own; they are always loaded and saved with their strategy. Updates are a
  read-merge-write inside one SQL transaction.

KEY TABLES:
  strategies:       id, name, client/agency, doc_json, timestamps
  templates:        id, name, config_json, timestamps
  settings:         key/value (current_strategy_id)
  library_overlays: kind -> entries_json

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened in WAL mode.

USAGE:
  store, err := sqlite.New("./data/planner.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  session := planner.NewSession(store, planner.Options{})

SEE ALSO:
  - budget/store.go: Store interface
  - budget/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/strategy-planner/budget"
)

const settingCurrentStrategy = "current_strategy_id"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	newID func() string
	now   func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:    db,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		agency_name TEXT NOT NULL DEFAULT '',
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS library_overlays (
		kind TEXT PRIMARY KEY,
		entries_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STRATEGY STORE - budget.Store
// =============================================================================

func (s *Store) List(ctx context.Context) ([]budget.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json, created_at, updated_at FROM strategies ORDER BY rowid ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	strategies := []budget.Strategy{}
	for rows.Next() {
		var doc, createdAt, updatedAt string
		if err := rows.Scan(&doc, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		st, err := decodeStrategy(doc, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}
	return strategies, rows.Err()
}

// Get retrieves a strategy by ID. Returns nil, nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, id string) (*budget.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStrategy(ctx, s.db, id)
}

func (s *Store) getStrategy(ctx context.Context, q querier, id string) (*budget.Strategy, error) {
	var doc, createdAt, updatedAt string
	err := q.QueryRowContext(ctx,
		"SELECT doc_json, created_at, updated_at FROM strategies WHERE id = ?", id,
	).Scan(&doc, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy %s: %w", id, err)
	}

	st, err := decodeStrategy(doc, createdAt, updatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) Create(ctx context.Context, st budget.Strategy) (*budget.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createStrategy(ctx, s.db, st)
}

func (s *Store) createStrategy(ctx context.Context, q querier, st budget.Strategy) (*budget.Strategy, error) {
	c := st.Clone()
	now := s.now()
	c.ID = s.newID()
	c.CreatedAt = now
	c.UpdatedAt = now

	doc, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode strategy: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO strategies (id, name, client_name, agency_name, doc_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.ClientName, c.AgencyName, string(doc),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}
	return &c, nil
}

// Update merges the patch into the stored strategy. Returns nil, nil if the
// strategy doesn't exist.
func (s *Store) Update(ctx context.Context, id string, patch budget.StrategyPatch) (*budget.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	st, err := s.getStrategy(ctx, tx, id)
	if err != nil || st == nil {
		return nil, err
	}

	patch.Apply(st)
	st.UpdatedAt = s.now()

	doc, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode strategy: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE strategies
		SET name = ?, client_name = ?, agency_name = ?, doc_json = ?, updated_at = ?
		WHERE id = ?`,
		st.Name, st.ClientName, st.AgencyName, string(doc), formatTime(st.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update strategy %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

// Delete removes a strategy and clears the current selection if it pointed
// at it.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete strategy %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM settings WHERE key = ? AND value = ?", settingCurrentStrategy, id,
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Duplicate deep-copies a strategy under a new id. Returns nil, nil if the
// source doesn't exist.
func (s *Store) Duplicate(ctx context.Context, id, newName string) (*budget.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.getStrategy(ctx, s.db, id)
	if err != nil || src == nil {
		return nil, err
	}
	if newName == "" {
		newName = src.Name + " (Copy)"
	}
	src.Name = newName
	return s.createStrategy(ctx, s.db, *src)
}

// ReplaceAll drops every strategy and stores the given ones under fresh ids,
// atomically.
func (s *Store) ReplaceAll(ctx context.Context, strategies []budget.Strategy) ([]budget.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM strategies"); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", settingCurrentStrategy); err != nil {
		return nil, err
	}

	created := make([]budget.Strategy, 0, len(strategies))
	for _, st := range strategies {
		c, err := s.createStrategy(ctx, tx, st)
		if err != nil {
			return nil, err
		}
		created = append(created, *c)
	}
	return created, tx.Commit()
}

// =============================================================================
// CURRENT SELECTION
// =============================================================================

// CurrentID returns the selected strategy id, or "" if none.
func (s *Store) CurrentID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", settingCurrentStrategy,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// SetCurrentID records the selected strategy; "" clears the selection.
func (s *Store) SetCurrentID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", settingCurrentStrategy)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingCurrentStrategy, id,
	)
	return err
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

// TemplateRecord is a stored template with its JSON config.
type TemplateRecord struct {
	ID         string
	Name       string
	ConfigJSON string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveTemplate inserts or replaces a template. An empty ID is assigned.
func (s *Store) SaveTemplate(ctx context.Context, t TemplateRecord) (TemplateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.newID()
	}
	now := s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.ConfigJSON, formatTime(now), formatTime(now),
	)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("failed to save template: %w", err)
	}

	saved, err := s.getTemplate(ctx, t.ID)
	if err != nil || saved == nil {
		return TemplateRecord{}, err
	}
	return *saved, nil
}

// GetTemplate retrieves a template by ID. Returns nil, nil if it doesn't exist.
func (s *Store) GetTemplate(ctx context.Context, id string) (*TemplateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTemplate(ctx, id)
}

func (s *Store) getTemplate(ctx context.Context, id string) (*TemplateRecord, error) {
	var t TemplateRecord
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, config_json, created_at, updated_at FROM templates WHERE id = ?",
		id,
	).Scan(&t.ID, &t.Name, &t.ConfigJSON, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]TemplateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, config_json, created_at, updated_at FROM templates ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []TemplateRecord{}
	for rows.Next() {
		var t TemplateRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.ConfigJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template. Returns false if it didn't exist.
func (s *Store) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// LIBRARY OVERLAYS
// =============================================================================

// LoadOverlay returns the stored overlay document for kind, or nil if none.
func (s *Store) LoadOverlay(ctx context.Context, kind string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT entries_json FROM library_overlays WHERE kind = ?", kind,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s overlay: %w", kind, err)
	}
	return []byte(doc), nil
}

// SaveOverlay replaces the overlay document for kind.
func (s *Store) SaveOverlay(ctx context.Context, kind string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_overlays (kind, entries_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			entries_json = excluded.entries_json,
			updated_at = excluded.updated_at`,
		kind, string(doc), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s overlay: %w", kind, err)
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"strategies", "templates", "settings", "library_overlays"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func decodeStrategy(doc, createdAt, updatedAt string) (budget.Strategy, error) {
	var st budget.Strategy
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return budget.Strategy{}, fmt.Errorf("failed to decode strategy: %w", err)
	}
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
