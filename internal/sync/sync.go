// Package sync decides and applies the file-level changes that bring a
// working tree in line with the SpecKit template.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/schaermu/speckit-sync/internal/config"
	"github.com/schaermu/speckit-sync/internal/git"
)

var (
	// ErrInputUnavailable means the template or working tree cannot be used.
	ErrInputUnavailable = errors.New("input tree unavailable")
	// ErrWorkTreeLocked means another live run holds the working tree.
	ErrWorkTreeLocked = errors.New("working tree is locked by another sync")
)

const checkoutLockRetry = 200 * time.Millisecond

// Options tunes a single run
type Options struct {
	DryRun bool
}

// Outcome describes a completed run
type Outcome struct {
	WorkRoot     string
	TemplateRoot string
	Commit       string
	Config       config.SyncConfig
	ConfigSource config.Source
	ConfigPath   string
	ConfigErr    error
	Result       Result
}

// Engine orchestrates the sync process
type Engine struct {
	settings *config.Settings
	git      git.Client
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates a new sync engine
func NewEngine(settings *config.Settings, gitClient git.Client, logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		settings: settings,
		git:      gitClient,
		logger:   logger,
		opts:     opts,
	}
}

// Run executes the complete sync process. Only an unusable input tree or a
// held lock fails the run; per-file problems are reported in the result.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	workRoot, err := e.ResolveWorkRoot(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("starting sync",
		"work_root", workRoot,
		"dry_run", e.opts.DryRun)

	loaded := e.LoadConfig(workRoot)

	if !e.opts.DryRun {
		unlock, err := e.lock(workRoot)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	// The checkout is shared by every run using the same template URL and
	// must not change while this run reads from it.
	if e.settings.UsesGit() {
		unlock, err := e.lockCheckout(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	templateRoot, commit, err := e.resolveTemplateRoot(ctx)
	if err != nil {
		return nil, err
	}

	plan := Discover(loaded.Config, templateRoot, workRoot, e.logger)
	e.logger.Info("sync plan",
		"create", plan.Count(ActionCreate),
		"update", plan.Count(ActionUpdate),
		"delete", plan.Count(ActionDelete),
		"excluded", len(plan.Exclusions))

	result := NewExecutor(loaded.Config, workRoot, e.logger, e.opts.DryRun).Apply(plan)

	if e.opts.DryRun {
		e.logger.Info("dry-run complete, no changes applied")
	} else {
		e.logger.Info("sync completed", "errors", result.Errors)
	}

	return &Outcome{
		WorkRoot:     workRoot,
		TemplateRoot: templateRoot,
		Commit:       commit,
		Config:       loaded.Config,
		ConfigSource: loaded.Source,
		ConfigPath:   loaded.Path,
		ConfigErr:    loaded.Err,
		Result:       result,
	}, nil
}

// ResolveWorkRoot returns the absolute working tree root: the configured
// work dir, or the top level of the git repository around the current
// directory.
func (e *Engine) ResolveWorkRoot(ctx context.Context) (string, error) {
	root := e.settings.Paths.WorkDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInputUnavailable, err)
		}
		root, err = e.git.TopLevel(ctx, cwd)
		if err != nil {
			return "", fmt.Errorf("%w: cannot determine repository root: %v", ErrInputUnavailable, err)
		}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	if err := requireDir(abs); err != nil {
		return "", fmt.Errorf("%w: working tree: %v", ErrInputUnavailable, err)
	}
	return abs, nil
}

// LoadConfig resolves the sync config for workRoot and logs where it came
// from.
func (e *Engine) LoadConfig(workRoot string) config.Loaded {
	loaded := config.LoadSyncConfig(workRoot, e.settings.ConfigDirFor(workRoot))
	if loaded.Err != nil {
		e.logger.Warn("sync config could not be used", "path", loaded.Path, "error", loaded.Err)
	}
	for _, p := range loaded.Config.Rejected {
		e.logger.Warn("ignoring config path outside the tree", "path", p)
	}
	if loaded.Source == config.SourceMigrated && loaded.Err == nil {
		e.logger.Warn("legacy v1 whitelist migrated; consider adding " + config.ProjectConfigFile)
	}
	e.logger.Info("sync config loaded",
		"source", loaded.Source,
		"path", loaded.Path,
		"version", loaded.Config.Version,
		"sync_directories", len(loaded.Config.SyncDirectories),
		"delete_list", len(loaded.Config.DeleteList))
	return loaded
}

// resolveTemplateRoot returns the template tree, fetching it with git
// unless a local template directory is configured.
func (e *Engine) resolveTemplateRoot(ctx context.Context) (string, string, error) {
	if !e.settings.UsesGit() {
		root, err := filepath.Abs(e.settings.TemplateRoot(""))
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrInputUnavailable, err)
		}
		if err := requireDir(root); err != nil {
			return "", "", fmt.Errorf("%w: template tree: %v", ErrInputUnavailable, err)
		}
		return root, "", nil
	}

	checkout := e.settings.CheckoutDir()
	e.logger.Info("fetching template repository",
		"url", e.settings.Template.URL,
		"ref", e.settings.Template.Ref,
		"dest", checkout)
	commit, err := e.git.EnsureCheckout(ctx, e.settings.Template.URL, e.settings.Template.Ref, checkout)
	if err != nil {
		return "", "", fmt.Errorf("%w: failed to checkout template: %v", ErrInputUnavailable, err)
	}
	e.logger.Info("template checked out", "commit", commit)

	root := e.settings.TemplateRoot(checkout)
	if err := requireDir(root); err != nil {
		return "", "", fmt.Errorf("%w: template tree: %v", ErrInputUnavailable, err)
	}
	return root, commit, nil
}

// lock takes the per-working-tree run lock without blocking.
func (e *Engine) lock(workRoot string) (func(), error) {
	path := e.settings.LockPath(workRoot)
	fl, err := newLock(path)
	if err != nil {
		return nil, err
	}

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock working tree: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrWorkTreeLocked, workRoot)
	}
	return e.unlocker(fl), nil
}

// lockCheckout waits for exclusive use of the template checkout.
func (e *Engine) lockCheckout(ctx context.Context) (func(), error) {
	path := e.settings.CheckoutLockPath()
	fl, err := newLock(path)
	if err != nil {
		return nil, err
	}

	locked, err := fl.TryLockContext(ctx, checkoutLockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock template checkout: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock template checkout: %s", path)
	}
	return e.unlocker(fl), nil
}

func newLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return flock.New(path), nil
}

func (e *Engine) unlocker(fl *flock.Flock) func() {
	return func() {
		if err := fl.Unlock(); err != nil {
			e.logger.Warn("failed to release lock", "path", fl.Path(), "error", err)
		}
	}
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
