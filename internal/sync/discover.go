package sync

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/schaermu/speckit-sync/internal/compare"
	"github.com/schaermu/speckit-sync/internal/config"
	"github.com/schaermu/speckit-sync/internal/fsutil"
	"github.com/schaermu/speckit-sync/internal/match"
)

// discoverer walks both trees and classifies every candidate. It never
// modifies either tree.
type discoverer struct {
	cfg          config.SyncConfig
	templateRoot string
	workRoot     string
	logger       *slog.Logger
	syncPaths    []string
	excludePaths []string
	plan         *Plan
}

// Discover computes the plan for syncing templateRoot into workRoot under
// cfg. Create and update actions come first in lexicographic order,
// followed by deletions in lexicographic order.
func Discover(cfg config.SyncConfig, templateRoot, workRoot string, logger *slog.Logger) *Plan {
	d := &discoverer{
		cfg:          cfg,
		templateRoot: templateRoot,
		workRoot:     workRoot,
		logger:       logger,
		syncPaths:    cfg.SyncPaths(),
		excludePaths: cfg.ExcludePaths(),
		plan: &Plan{
			Files:      []FileToSync{},
			Exclusions: []Exclusion{},
			Failures:   []Failure{},
		},
	}

	templateFiles := d.scan(templateRoot)
	d.logger.Debug("discovered template files", "count", len(templateFiles))
	d.classify(templateFiles)

	if len(cfg.DeleteList) > 0 {
		d.logger.Debug("checking delete list", "patterns", len(cfg.DeleteList))
		d.sweepDeletions()
	}

	return d.plan
}

// scan collects the files under every sync directory of root, as sorted
// slash-separated relative paths. Symlinks are reported, never followed.
func (d *discoverer) scan(root string) []string {
	files := mapset.NewThreadUnsafeSet[string]()

	for _, dir := range d.syncPaths {
		if !match.Contained(dir) {
			d.logger.Warn("sync directory outside the tree, skipping", "dir", dir)
			continue
		}
		scanPath := filepath.Join(root, filepath.FromSlash(dir))
		info, err := os.Lstat(scanPath)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			files.Add(dir)
			continue
		}

		err = filepath.WalkDir(scanPath, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				d.logger.Warn("cannot read path, skipping", "path", p, "error", err)
				if entry != nil && entry.IsDir() && p != scanPath {
					return filepath.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil
			}
			files.Add(match.Normalize(rel))
			return nil
		})
		if err != nil {
			d.logger.Warn("walk aborted", "dir", scanPath, "error", err)
		}
	}

	out := files.ToSlice()
	sort.Strings(out)
	return out
}

// classify runs each template file through the rules and decides its action.
func (d *discoverer) classify(templateFiles []string) {
	rules := d.rules()

	for _, rel := range templateFiles {
		c := candidate{
			rel: rel,
			src: filepath.Join(d.templateRoot, filepath.FromSlash(rel)),
			dst: filepath.Join(d.workRoot, filepath.FromSlash(rel)),
		}

		if reason, excluded := exclusionFor(rules, c); excluded {
			d.exclude(rel, reason)
			continue
		}

		exists, err := fsutil.Exists(c.dst)
		if err != nil {
			d.fail(rel, err)
			continue
		}

		switch {
		case !exists && d.cfg.NewFilePolicy.Enabled:
			d.add(FileToSync{RelPath: rel, Action: ActionCreate, SourcePath: c.src, DestPath: c.dst, Reason: "new upstream file"})
		case !exists:
			d.exclude(rel, ReasonNewFileDisabled)
		case compare.Differs(c.src, c.dst):
			d.add(FileToSync{RelPath: rel, Action: ActionUpdate, SourcePath: c.src, DestPath: c.dst, Reason: "content differs"})
		default:
			d.exclude(rel, ReasonNoDifference)
		}
	}
}

// sweepDeletions marks local files matching the delete list that the
// template no longer ships. Exact (wildcard-free) patterns are resolved
// directly and may lie outside the sync directories; this widening applies
// to deletion only.
func (d *discoverer) sweepDeletions() {
	local := mapset.NewThreadUnsafeSet[string](d.scan(d.workRoot)...)

	for _, pattern := range d.cfg.DeleteList {
		if match.HasWildcard(pattern) {
			continue
		}
		if !match.Contained(pattern) {
			d.logger.Warn("delete path outside the tree, skipping", "path", pattern)
			continue
		}
		rel := match.Normalize(pattern)
		if fsutil.IsRegular(filepath.Join(d.workRoot, filepath.FromSlash(rel))) {
			d.logger.Debug("delete candidate by exact path", "path", rel)
			local.Add(rel)
		}
	}

	candidates := local.ToSlice()
	sort.Strings(candidates)

	for _, rel := range candidates {
		if !match.MatchesAny(d.cfg.DeleteList, rel) {
			continue
		}

		upstream, err := fsutil.Exists(filepath.Join(d.templateRoot, filepath.FromSlash(rel)))
		if err != nil {
			d.fail(rel, err)
			continue
		}
		if upstream {
			d.logger.Debug("delete candidate still shipped upstream", "path", rel)
			continue
		}

		dst := filepath.Join(d.workRoot, filepath.FromSlash(rel))
		if fsutil.IsSymlink(dst) {
			d.exclude(rel, ReasonSymlink)
			continue
		}
		if isLocallyOverridden(dst, d.cfg.LocalOverrides) {
			d.exclude(rel, ReasonOverrideNoDelete)
			continue
		}

		d.add(FileToSync{RelPath: rel, Action: ActionDelete, DestPath: dst, Reason: "removed upstream"})
	}
}

func (d *discoverer) add(f FileToSync) {
	d.logger.Debug("planned", "action", f.Action, "path", f.RelPath)
	d.plan.Files = append(d.plan.Files, f)
}

func (d *discoverer) exclude(rel string, reason Reason) {
	d.logger.Debug("excluded", "path", rel, "reason", reason)
	d.plan.Exclusions = append(d.plan.Exclusions, Exclusion{Path: rel, Reason: reason})
}

func (d *discoverer) fail(rel string, err error) {
	d.logger.Error("cannot inspect file", "path", rel, "error", err)
	d.plan.Failures = append(d.plan.Failures, Failure{Path: rel, Err: err.Error()})
}
