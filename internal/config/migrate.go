package config

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
)

// legacyConfig is the v1 schema: whitelist patterns grouped by category.
type legacyConfig struct {
	Whitelist map[string]json.RawMessage `json:"whitelist"`
}

// MigrateLegacy converts a v1 whitelist document into a v2 SyncConfig. Only
// the sync directories are derived; every other field takes its v2 default.
func MigrateLegacy(data []byte) (SyncConfig, error) {
	var legacy legacyConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		return SyncConfig{}, fmt.Errorf("failed to parse legacy whitelist: %w", err)
	}

	var patterns []string
	for _, raw := range legacy.Whitelist {
		patterns = append(patterns, stringList(raw)...)
	}

	cfg := emptySyncConfig()
	for _, dir := range LegacyDirectories(patterns) {
		if !cfg.contained(dir) {
			continue
		}
		cfg.SyncDirectories = append(cfg.SyncDirectories, SyncDirectory{
			Path:        dir,
			Mode:        ModeAuto,
			Description: "migrated from v1: " + dir,
		})
	}
	return cfg, nil
}

// LegacyDirectories mines the leading directory of each whitelist pattern.
// Patterns without a "/" carry no directory and are ignored. When the
// leading segment holds a wildcard only the part before it is kept, minus
// trailing dots. The result is deduplicated and sorted.
func LegacyDirectories(patterns []string) []string {
	dirs := mapset.NewThreadUnsafeSet[string]()
	for _, p := range patterns {
		head, _, found := strings.Cut(p, "/")
		if !found {
			continue
		}
		if strings.Contains(head, "*") {
			head, _, _ = strings.Cut(head, "*")
			head = strings.TrimRight(head, ".")
		}
		if head != "" {
			dirs.Add(head)
		}
	}

	out := dirs.ToSlice()
	sort.Strings(out)
	return out
}
