package sync

import (
	"path"
	"strings"

	"github.com/schaermu/speckit-sync/internal/fsutil"
	"github.com/schaermu/speckit-sync/internal/match"
)

// candidate is a template file under consideration for create or update
type candidate struct {
	rel string // slash-separated, relative to both roots
	src string
	dst string
}

// rule excludes a candidate when match returns true
type rule struct {
	reason Reason
	match  func(c candidate) bool
}

// rules returns the exclusion filters in priority order. The first matching
// rule decides the exclusion reason.
func (d *discoverer) rules() []rule {
	return []rule{
		{reason: ReasonSymlink, match: d.isSymlink},
		{reason: ReasonNotInWhitelist, match: d.notWhitelisted},
		{reason: ReasonInExcludeDir, match: d.inExcludedDir},
		{reason: ReasonInDeleteList, match: d.inDeleteList},
		{reason: ReasonInBlacklist, match: d.blacklisted},
		{reason: ReasonLocalOverride, match: d.overridden},
	}
}

// exclusionFor returns the reason the first matching rule gives, if any.
func exclusionFor(rules []rule, c candidate) (Reason, bool) {
	for _, r := range rules {
		if r.match(c) {
			return r.reason, true
		}
	}
	return "", false
}

func (d *discoverer) isSymlink(c candidate) bool {
	return fsutil.IsSymlink(c.src)
}

func (d *discoverer) notWhitelisted(c candidate) bool {
	return !match.UnderAny(d.syncPaths, c.rel)
}

func (d *discoverer) inExcludedDir(c candidate) bool {
	return match.UnderAny(d.excludePaths, c.rel)
}

func (d *discoverer) inDeleteList(c candidate) bool {
	return match.MatchesAny(d.cfg.DeleteList, c.rel)
}

func (d *discoverer) blacklisted(c candidate) bool {
	return isBlacklisted(d.cfg.FileBlacklist, c.rel)
}

func (d *discoverer) overridden(c candidate) bool {
	return isLocallyOverridden(c.dst, d.cfg.LocalOverrides)
}

// isBlacklisted matches the full relative path against every pattern, and
// the base name against patterns that start with "*".
func isBlacklisted(patterns []string, rel string) bool {
	if match.MatchesAny(patterns, rel) {
		return true
	}
	base := path.Base(match.Normalize(rel))
	for _, p := range patterns {
		if strings.HasPrefix(p, "*") && match.Matches(p, base) {
			return true
		}
	}
	return false
}
