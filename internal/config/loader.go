package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Source identifies where the effective sync config came from.
type Source string

const (
	SourceProject  Source = "project"
	SourceL0       Source = "l0-v2"
	SourceMigrated Source = "migrated"
	SourceDefault  Source = "default"
)

// Well-known config file names.
const (
	ProjectConfigFile = ".speckit-config.json"
	L0ConfigFile      = "update-config-v2.json"
	LegacyConfigFile  = "update-whitelist.json"
)

// Loaded is the outcome of resolving the sync config. Err carries a
// non-fatal problem with the selected file; Config is then the built-in
// default.
type Loaded struct {
	Config SyncConfig
	Source Source
	Path   string
	Err    error
}

type candidate struct {
	source Source
	path   string
	parse  func([]byte) (SyncConfig, error)
}

// LoadSyncConfig resolves the sync config for a working tree. Candidates
// are tried in priority order and the first existing file wins; a file that
// exists but cannot be read or parsed does not fall through to the next
// candidate, it degrades to the built-in default.
func LoadSyncConfig(workRoot, configDir string) Loaded {
	candidates := []candidate{
		{source: SourceProject, path: filepath.Join(workRoot, ProjectConfigFile), parse: ParseSyncConfig},
		{source: SourceL0, path: filepath.Join(configDir, L0ConfigFile), parse: ParseSyncConfig},
		{source: SourceMigrated, path: filepath.Join(configDir, LegacyConfigFile), parse: MigrateLegacy},
	}

	for _, c := range candidates {
		info, err := os.Stat(c.path)
		if err != nil || info.IsDir() {
			continue
		}

		data, err := os.ReadFile(c.path)
		if err == nil {
			var cfg SyncConfig
			cfg, err = c.parse(data)
			if err == nil {
				return Loaded{Config: cfg, Source: c.source, Path: c.path}
			}
		}

		return Loaded{
			Config: DefaultSyncConfig(),
			Source: c.source,
			Path:   c.path,
			Err:    fmt.Errorf("config %s unusable, falling back to built-in defaults: %w", c.path, err),
		}
	}

	return Loaded{Config: DefaultSyncConfig(), Source: SourceDefault}
}
