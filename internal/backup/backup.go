// Package backup preserves working-tree files before the sync engine
// overwrites or removes them.
package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schaermu/speckit-sync/internal/fsutil"
	"github.com/schaermu/speckit-sync/internal/match"
)

// Store writes pre-images under a single directory, mirroring each file's
// path relative to the working tree: a/b/c.md is kept at <dir>/a/b/c.md.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the backup root.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the pre-image of relPath is kept. A relPath that would
// land outside the backup directory is refused.
func (s *Store) Path(relPath string) (string, error) {
	if !match.Contained(relPath) {
		return "", fmt.Errorf("backup path for %q escapes %s", relPath, s.dir)
	}
	return filepath.Join(s.dir, filepath.FromSlash(match.Normalize(relPath))), nil
}

// Save copies the file at absPath verbatim to the backup location of
// relPath, replacing any earlier backup of the same path.
func (s *Store) Save(relPath, absPath string) (string, error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", absPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("refusing to back up non-regular file %s", absPath)
	}

	dst, err := s.Path(relPath)
	if err != nil {
		return "", err
	}
	if _, err := fsutil.CopyFile(absPath, dst); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", relPath, err)
	}
	return dst, nil
}
