// Package compare decides whether two files carry different content.
package compare

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Differs reports whether the files at a and b have different content.
//
// A missing file yields false: existence is the caller's concern. Sizes are
// compared first and only equal-sized files are hashed. If either hash
// cannot be computed the files are reported as identical, so a read failure
// never leads to an overwrite.
func Differs(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}

	if infoA.Size() != infoB.Size() {
		return true
	}

	hashA, err := FileHash(a)
	if err != nil {
		return false
	}
	hashB, err := FileHash(b)
	if err != nil {
		return false
	}

	return hashA != hashB
}

// FileHash computes the SHA256 hash of a file
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
