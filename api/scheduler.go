/*
scheduler.go - Periodic strategy backups

PURPOSE:
  Writes a full JSON export of every strategy to a backup directory on a
  cron schedule, so a corrupted or wiped database can be restored with
  POST /api/import.

DESIGN:
  - robfig/cron with a seconds field ("0 0 * * * *" = hourly)
  - The active session is saved before each snapshot
  - Snapshots are named strategies-YYYYMMDDTHHMMSSZ.json; the newest Keep
    files are retained, older ones deleted
  - Failures are logged; the next tick tries again

USAGE:
  backups := NewBackupScheduler(store, session, dir, logger)
  if err := backups.Register("0 0 * * * *"); err != nil { ... }
  backups.Start()
  defer backups.Stop()

SEE ALSO:
  - interchange/interchange.go: ExportAll
  - handlers.go: Import endpoint
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/interchange"
	"github.com/warp/strategy-planner/planner"
)

const (
	backupPrefix     = "strategies-"
	backupSuffix     = ".json"
	backupTimeLayout = "20060102T150405Z"
)

// BackupScheduler periodically exports all strategies to disk.
type BackupScheduler struct {
	Cron    *cron.Cron
	Store   budget.Store
	Session *planner.Session // optional; flushed before each snapshot
	Dir     string
	Keep    int // 0 keeps every snapshot
	Now     func() time.Time

	log *slog.Logger
}

// NewBackupScheduler creates a scheduler writing into dir.
func NewBackupScheduler(store budget.Store, session *planner.Session, dir string, logger *slog.Logger) *BackupScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupScheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Store:   store,
		Session: session,
		Dir:     dir,
		Now:     time.Now,
		log:     logger.With("component", "backup"),
	}
}

// Register adds the backup job on the given six-field cron schedule.
func (b *BackupScheduler) Register(schedule string) error {
	_, err := b.Cron.AddFunc(schedule, func() {
		if _, err := b.RunNow(context.Background()); err != nil {
			b.log.Error("backup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register backup task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (b *BackupScheduler) Start() {
	b.Cron.Start()
	b.log.Info("backup scheduler started", "dir", b.Dir)
}

// Stop stops the scheduler and waits for a running backup to finish.
func (b *BackupScheduler) Stop() {
	<-b.Cron.Stop().Done()
	b.log.Info("backup scheduler stopped")
}

// RunNow writes one snapshot and prunes old ones. Returns the snapshot path.
func (b *BackupScheduler) RunNow(ctx context.Context) (string, error) {
	if b.Session != nil {
		if err := b.Session.Save(ctx); err != nil && !errors.Is(err, budget.ErrNoActiveStrategy) {
			b.log.Warn("could not save active strategy before backup", "error", err)
		}
	}

	data, err := interchange.ExportAll(ctx, b.Store)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := backupPrefix + b.Now().UTC().Format(backupTimeLayout) + backupSuffix
	path := filepath.Join(b.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	pruned, err := b.prune()
	if err != nil {
		b.log.Warn("could not prune old backups", "error", err)
	}
	b.log.Info("backup written", "path", path, "bytes", len(data), "pruned", pruned)
	return path, nil
}

// Snapshots lists backup files, oldest first.
func (b *BackupScheduler) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) || !strings.HasSuffix(e.Name(), backupSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	// The timestamp layout sorts lexically.
	sort.Strings(names)
	return names, nil
}

func (b *BackupScheduler) prune() (int, error) {
	if b.Keep <= 0 {
		return 0, nil
	}
	names, err := b.Snapshots()
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(names)-removed > b.Keep {
		if err := os.Remove(filepath.Join(b.Dir, names[removed])); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
