// Package match implements the path pattern rules used to select files for
// synchronization. All functions are pure: they never touch the filesystem.
package match

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

const cacheSize = 512

// compiled holds a compiled glob, or nil when the pattern failed to compile.
type compiled struct {
	g glob.Glob
}

var globs *lru.Cache[string, compiled]

func init() {
	// lru.New only fails for a non-positive size
	globs, _ = lru.New[string, compiled](cacheSize)
}

// Normalize converts a platform path into canonical forward-slash form.
func Normalize(path string) string {
	return filepath.ToSlash(path)
}

// HasWildcard reports whether pattern contains any glob metacharacter.
func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Contained reports whether the relative path p stays inside the root it is
// resolved against: it is not absolute and no ".." segment survives
// cleaning.
func Contained(p string) bool {
	p = Normalize(strings.TrimSpace(p))
	if p == "" || strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// Matches reports whether path matches pattern. Patterns without wildcards
// match by exact equality. Otherwise glob semantics apply, with "*" also
// matching "/". A pattern that does not compile matches nothing.
func Matches(pattern, path string) bool {
	pattern = Normalize(pattern)
	path = Normalize(path)

	if !HasWildcard(pattern) {
		return path == pattern
	}

	c := compile(pattern)
	if c.g == nil {
		return false
	}
	return c.g.Match(path)
}

// MatchesAny reports whether path matches at least one of patterns.
func MatchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Matches(p, path) {
			return true
		}
	}
	return false
}

// Under reports whether path is dir itself or lies beneath it.
func Under(path, dir string) bool {
	path = Normalize(path)
	dir = strings.TrimSuffix(Normalize(dir), "/")
	if dir == "" {
		return false
	}
	return path == dir || strings.HasPrefix(path, dir+"/")
}

// UnderAny reports whether path is at or under any of dirs.
func UnderAny(dirs []string, path string) bool {
	for _, d := range dirs {
		if Under(path, d) {
			return true
		}
	}
	return false
}

func compile(pattern string) compiled {
	if c, ok := globs.Get(pattern); ok {
		return c
	}

	// No separators: "*" crosses directory boundaries on the flattened path.
	g, err := glob.Compile(escapeLiterals(pattern))
	c := compiled{}
	if err == nil {
		c.g = g
	}
	globs.Add(pattern, c)
	return c
}

// escapeLiterals quotes the characters glob treats as syntax beyond "*",
// "?" and "[...]", so braces, commas and backslashes outside a character
// class match themselves.
func escapeLiterals(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	inClass := false
	for _, r := range pattern {
		switch {
		case inClass:
			inClass = r != ']'
		case r == '[':
			inClass = true
		case r == '{', r == '}', r == ',', r == '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
