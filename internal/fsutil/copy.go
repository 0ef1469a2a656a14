// Package fsutil holds the small filesystem primitives shared by the
// executor and the backup store.
package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst with an atomic write. Parent directories of dst
// are created as needed; the permission bits and modification time of src
// are carried over. It returns the number of bytes written.
func CopyFile(src, dst string) (int64, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	// Open source
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return 0, err
	}

	// Create temp file in destination directory
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".speckit-sync-tmp-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	n, err := io.Copy(tmpFile, srcFile)
	if err != nil {
		_ = tmpFile.Close()
		return 0, err
	}

	if err := tmpFile.Chmod(srcInfo.Mode().Perm()); err != nil {
		_ = tmpFile.Close()
		return 0, err
	}

	if err := tmpFile.Close(); err != nil {
		return 0, err
	}

	if err := os.Chtimes(tmpPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return 0, err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}

	return n, nil
}

// Exists reports whether path exists without following a final symlink.
// Errors other than "not exist" are returned to the caller.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// IsSymlink reports whether path is a symbolic link.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// IsRegular reports whether path is a regular file, not following symlinks.
func IsRegular(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}
