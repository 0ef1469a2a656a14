// Package config loads the speckit-sync tool settings and resolves the sync
// rule set that drives a run.
package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/schaermu/speckit-sync/internal/match"
)

const (
	// CurrentVersion is the sync config schema version produced by this tool.
	CurrentVersion = "2.0.0"
	// DefaultMarkerFile opts every file in its directory out of syncing.
	DefaultMarkerFile = ".speckit-local"
	// DefaultBackupDir is relative to the working root.
	DefaultBackupDir = ".speckit-backup"
	// DefaultConfigDirName is the shipped config directory inside a project.
	DefaultConfigDirName = "speckit-config"
	// ModeAuto is the only sync mode currently understood.
	ModeAuto = "auto"
)

// SyncConfig is the resolved rule set for one run. It is never mutated after
// loading.
type SyncConfig struct {
	Version            string             `json:"_version"`
	SyncDirectories    []SyncDirectory    `json:"sync_directories"`
	ExcludeDirectories []ExcludeDirectory `json:"exclude_directories"`
	DeleteList         []string           `json:"delete_list"`
	FileBlacklist      []string           `json:"file_blacklist"`
	NewFilePolicy      NewFilePolicy      `json:"new_file_policy"`
	LocalOverrides     LocalOverrides     `json:"local_overrides"`
	Backup             BackupConfig       `json:"backup"`

	// Rejected lists configured paths dropped because they would resolve
	// outside the tree roots.
	Rejected []string `json:"-"`
}

// SyncDirectory is one whitelisted directory, relative to both tree roots.
type SyncDirectory struct {
	Path        string `json:"path"`
	Mode        string `json:"mode,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExcludeDirectory carves a sub-tree out of the whitelist.
type ExcludeDirectory struct {
	Path   string `json:"path"`
	Reason string `json:"reason,omitempty"`
}

// NewFilePolicy controls whether template-only files are created locally.
type NewFilePolicy struct {
	Enabled bool `json:"enabled"`
}

// LocalOverrides lets a local file opt out of being overwritten or deleted.
type LocalOverrides struct {
	Enabled       bool     `json:"enabled"`
	MarkerFile    string   `json:"marker_file,omitempty"`
	HeaderMarkers []string `json:"header_markers,omitempty"`
}

// Marker returns the marker file name, falling back to DefaultMarkerFile.
func (l LocalOverrides) Marker() string {
	if l.MarkerFile == "" {
		return DefaultMarkerFile
	}
	return l.MarkerFile
}

// BackupConfig controls pre-image backups.
type BackupConfig struct {
	Enabled   bool   `json:"enabled"`
	BackupDir string `json:"backup_dir,omitempty"`
}

// Dir returns the backup directory, falling back to DefaultBackupDir.
func (b BackupConfig) Dir() string {
	if b.BackupDir == "" {
		return DefaultBackupDir
	}
	return b.BackupDir
}

// SyncPaths returns the whitelisted directory paths in configured order.
func (c SyncConfig) SyncPaths() []string {
	paths := make([]string, 0, len(c.SyncDirectories))
	for _, d := range c.SyncDirectories {
		paths = append(paths, d.Path)
	}
	return paths
}

// ExcludePaths returns the excluded directory paths.
func (c SyncConfig) ExcludePaths() []string {
	paths := make([]string, 0, len(c.ExcludeDirectories))
	for _, d := range c.ExcludeDirectories {
		paths = append(paths, d.Path)
	}
	return paths
}

// DefaultSyncConfig returns the built-in rule set used when no config file
// is found or the selected one cannot be parsed.
func DefaultSyncConfig() SyncConfig {
	dirs := []string{
		".claude/agents",
		".claude/commands",
		".claude/hooks",
		".claude/skills",
		".specify/scripts",
		".specify/templates",
	}
	cfg := SyncConfig{
		Version: CurrentVersion,
		ExcludeDirectories: []ExcludeDirectory{
			{Path: ".claude/commands/simplesdd", Reason: "SimpleSDD uses a different update strategy"},
		},
		DeleteList: []string{},
		FileBlacklist: []string{
			"*.local.md",
			"*.backup.*",
			".DS_Store",
			"Thumbs.db",
			"*.swp",
		},
		NewFilePolicy:  NewFilePolicy{Enabled: false},
		LocalOverrides: LocalOverrides{Enabled: true},
		Backup:         BackupConfig{Enabled: true},
	}
	for _, d := range dirs {
		cfg.SyncDirectories = append(cfg.SyncDirectories, SyncDirectory{Path: d, Mode: ModeAuto})
	}
	return cfg
}

// emptySyncConfig is the v2 baseline before any field of a document applies.
func emptySyncConfig() SyncConfig {
	return SyncConfig{
		Version:            CurrentVersion,
		SyncDirectories:    []SyncDirectory{},
		ExcludeDirectories: []ExcludeDirectory{},
		DeleteList:         []string{},
		FileBlacklist:      []string{},
		NewFilePolicy:      NewFilePolicy{Enabled: false},
		LocalOverrides:     LocalOverrides{Enabled: true},
		Backup:             BackupConfig{Enabled: true},
	}
}

// ParseSyncConfig parses a v2 sync config document. Fields of the wrong
// shape are coerced to their nearest valid form rather than rejected; only
// a document that is not a JSON object is an error.
func ParseSyncConfig(data []byte) (SyncConfig, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return SyncConfig{}, fmt.Errorf("failed to parse sync config: %w", err)
	}
	if doc == nil {
		return SyncConfig{}, fmt.Errorf("failed to parse sync config: document is not an object")
	}

	cfg := emptySyncConfig()

	var version string
	if raw, ok := doc["_version"]; ok && json.Unmarshal(raw, &version) == nil && version != "" {
		cfg.Version = version
	}

	for _, item := range rawList(doc["sync_directories"]) {
		if d, ok := parseSyncDirectory(item); ok && cfg.contained(d.Path) {
			cfg.SyncDirectories = append(cfg.SyncDirectories, d)
		}
	}
	for _, item := range rawList(doc["exclude_directories"]) {
		if d, ok := parseExcludeDirectory(item); ok && cfg.contained(d.Path) {
			cfg.ExcludeDirectories = append(cfg.ExcludeDirectories, d)
		}
	}

	for _, p := range stringList(doc["delete_list"]) {
		if cfg.contained(p) {
			cfg.DeleteList = append(cfg.DeleteList, p)
		}
	}
	cfg.FileBlacklist = stringList(doc["file_blacklist"])

	if raw, ok := doc["new_file_policy"]; ok {
		cfg.NewFilePolicy.Enabled = enabledFlag(raw, false)
	}

	if raw, ok := doc["local_overrides"]; ok {
		cfg.LocalOverrides.Enabled = enabledFlag(raw, true)
		obj := rawObject(raw)
		cfg.LocalOverrides.MarkerFile = stringField(obj, "marker_file")
		cfg.LocalOverrides.HeaderMarkers = stringList(obj["header_markers"])
	}

	if raw, ok := doc["backup"]; ok {
		cfg.Backup.Enabled = enabledFlag(raw, true)
		cfg.Backup.BackupDir = stringField(rawObject(raw), "backup_dir")
	}

	return cfg, nil
}

// contained reports whether p stays inside the tree roots, recording it as
// rejected otherwise.
func (c *SyncConfig) contained(p string) bool {
	if match.Contained(p) {
		return true
	}
	c.Rejected = append(c.Rejected, p)
	return false
}

// MarshalIndent renders cfg in the v2 document format.
func (c SyncConfig) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func parseSyncDirectory(raw json.RawMessage) (SyncDirectory, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		p := cleanDir(s)
		return SyncDirectory{Path: p, Mode: ModeAuto}, p != ""
	}

	obj := rawObject(raw)
	if obj == nil {
		return SyncDirectory{}, false
	}
	d := SyncDirectory{
		Path:        cleanDir(stringField(obj, "path")),
		Mode:        stringField(obj, "mode"),
		Description: stringField(obj, "description"),
	}
	if d.Mode == "" {
		d.Mode = ModeAuto
	}
	return d, d.Path != ""
}

func parseExcludeDirectory(raw json.RawMessage) (ExcludeDirectory, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		p := cleanDir(s)
		return ExcludeDirectory{Path: p}, p != ""
	}

	obj := rawObject(raw)
	if obj == nil {
		return ExcludeDirectory{}, false
	}
	d := ExcludeDirectory{
		Path:   cleanDir(stringField(obj, "path")),
		Reason: stringField(obj, "reason"),
	}
	return d, d.Path != ""
}

// rawList returns the elements of a JSON array. A scalar or object is
// treated as a one-element list; null or absent yields nothing.
func rawList(raw json.RawMessage) []json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	return []json.RawMessage{raw}
}

func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// stringList keeps the string elements of raw and drops everything else.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	for _, item := range rawList(raw) {
		var s string
		if json.Unmarshal(item, &s) == nil && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// enabledFlag reads either a bare boolean or an object's "enabled" member.
func enabledFlag(raw json.RawMessage, def bool) bool {
	if isNull(raw) {
		return def
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	obj := rawObject(raw)
	if obj == nil {
		return def
	}
	v, ok := obj["enabled"]
	if !ok || json.Unmarshal(v, &b) != nil {
		return def
	}
	return b
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func cleanDir(p string) string {
	return strings.TrimRight(match.Normalize(strings.TrimSpace(p)), "/")
}
