package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schaermu/speckit-sync/internal/backup"
	"github.com/schaermu/speckit-sync/internal/config"
	"github.com/schaermu/speckit-sync/internal/fsutil"
)

// Executor applies a plan to the working tree
type Executor struct {
	backups *backup.Store // nil when backups are disabled
	logger  *slog.Logger
	dryRun  bool
}

// NewExecutor creates an executor for the working tree at workRoot.
func NewExecutor(cfg config.SyncConfig, workRoot string, logger *slog.Logger, dryRun bool) *Executor {
	x := &Executor{logger: logger, dryRun: dryRun}
	if cfg.Backup.Enabled {
		dir := cfg.Backup.Dir()
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workRoot, dir)
		}
		x.backups = backup.NewStore(dir)
	}
	return x
}

// Apply executes every planned file in order. A failure is recorded against
// its file and never stops the batch. In dry-run mode nothing is written and
// the counters describe what would have happened.
func (x *Executor) Apply(plan *Plan) Result {
	b := newResultBuilder(plan, x.dryRun)

	for _, f := range plan.Files {
		if x.dryRun {
			x.logger.Info("[dry-run] would "+string(f.Action), "path", f.RelPath)
			b.applied(f, 0)
			continue
		}

		var err error
		switch f.Action {
		case ActionCreate, ActionUpdate:
			err = x.write(f, b)
		case ActionDelete:
			err = x.remove(f, b)
		default:
			err = fmt.Errorf("unknown action %q", f.Action)
		}
		if err != nil {
			x.logger.Error("sync failed for file", "path", f.RelPath, "action", f.Action, "error", err)
			b.failed(f.RelPath, err)
		}
	}

	return b.build()
}

// write copies the template file over the destination, backing up any
// existing destination first.
func (x *Executor) write(f FileToSync, b *resultBuilder) error {
	if err := x.preserve(f, b); err != nil {
		return err
	}

	n, err := fsutil.CopyFile(f.SourcePath, f.DestPath)
	if err != nil {
		return fmt.Errorf("failed to %s file: %w", f.Action, err)
	}

	x.logger.Info(string(f.Action)+"d file", "path", f.RelPath)
	b.applied(f, n)
	return nil
}

// remove deletes the destination after backing it up. A destination that
// is already gone counts as skipped.
func (x *Executor) remove(f FileToSync, b *resultBuilder) error {
	exists, err := fsutil.Exists(f.DestPath)
	if err != nil {
		return err
	}
	if !exists {
		x.logger.Warn("file already absent, skipping", "path", f.RelPath)
		b.skipped(f, ReasonAlreadyAbsent)
		return nil
	}

	if err := x.preserve(f, b); err != nil {
		return err
	}

	if err := os.Remove(f.DestPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	x.logger.Info("deleted file", "path", f.RelPath)
	b.applied(f, 0)
	return nil
}

// preserve backs up the current destination, if any. A failed backup
// aborts the mutation for this file.
func (x *Executor) preserve(f FileToSync, b *resultBuilder) error {
	if x.backups == nil {
		return nil
	}
	exists, err := fsutil.Exists(f.DestPath)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	path, err := x.backups.Save(f.RelPath, f.DestPath)
	if err != nil {
		return err
	}
	x.logger.Debug("backed up file", "path", f.RelPath, "backup", path)
	b.backedUp()
	return nil
}
