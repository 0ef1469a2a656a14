package config

import (
	"reflect"
	"slices"
	"testing"
)

func TestParseSyncConfig_FullDocument(t *testing.T) {
	doc := `{
  "_version": "2.1.0",
  "sync_directories": [
    ".specify/scripts",
    {"path": ".claude/commands/", "mode": "auto", "description": "slash commands"}
  ],
  "exclude_directories": [
    {"path": ".claude/commands/simplesdd", "reason": "own cadence"},
    ".specify/scripts/legacy"
  ],
  "delete_list": ["scripts/old.py", ".specify/scripts/*.bak"],
  "file_blacklist": ["*.local.md"],
  "new_file_policy": {"enabled": true},
  "local_overrides": {"enabled": true, "marker_file": ".keep-local", "header_markers": ["<!-- local -->"]},
  "backup": {"enabled": false, "backup_dir": "backups"}
}`

	cfg, err := ParseSyncConfig([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSyncConfig failed: %v", err)
	}

	if cfg.Version != "2.1.0" {
		t.Errorf("version = %s, want 2.1.0", cfg.Version)
	}
	wantDirs := []SyncDirectory{
		{Path: ".specify/scripts", Mode: ModeAuto},
		{Path: ".claude/commands", Mode: "auto", Description: "slash commands"},
	}
	if !reflect.DeepEqual(cfg.SyncDirectories, wantDirs) {
		t.Errorf("sync directories = %+v, want %+v", cfg.SyncDirectories, wantDirs)
	}
	wantExcludes := []ExcludeDirectory{
		{Path: ".claude/commands/simplesdd", Reason: "own cadence"},
		{Path: ".specify/scripts/legacy"},
	}
	if !reflect.DeepEqual(cfg.ExcludeDirectories, wantExcludes) {
		t.Errorf("exclude directories = %+v, want %+v", cfg.ExcludeDirectories, wantExcludes)
	}
	if want := []string{"scripts/old.py", ".specify/scripts/*.bak"}; !reflect.DeepEqual(cfg.DeleteList, want) {
		t.Errorf("delete list = %v, want %v", cfg.DeleteList, want)
	}
	if want := []string{"*.local.md"}; !reflect.DeepEqual(cfg.FileBlacklist, want) {
		t.Errorf("file blacklist = %v, want %v", cfg.FileBlacklist, want)
	}
	if !cfg.NewFilePolicy.Enabled {
		t.Error("new file policy should be enabled")
	}
	if !cfg.LocalOverrides.Enabled {
		t.Error("local overrides should be enabled")
	}
	if got := cfg.LocalOverrides.Marker(); got != ".keep-local" {
		t.Errorf("marker = %s, want .keep-local", got)
	}
	if want := []string{"<!-- local -->"}; !reflect.DeepEqual(cfg.LocalOverrides.HeaderMarkers, want) {
		t.Errorf("header markers = %v, want %v", cfg.LocalOverrides.HeaderMarkers, want)
	}
	if cfg.Backup.Enabled {
		t.Error("backup should be disabled")
	}
	if got := cfg.Backup.Dir(); got != "backups" {
		t.Errorf("backup dir = %s, want backups", got)
	}
	if len(cfg.Rejected) != 0 {
		t.Errorf("unexpected rejected paths: %v", cfg.Rejected)
	}
}

func TestParseSyncConfig_Defaults(t *testing.T) {
	cfg, err := ParseSyncConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseSyncConfig failed: %v", err)
	}

	if cfg.Version != CurrentVersion {
		t.Errorf("version = %s, want %s", cfg.Version, CurrentVersion)
	}
	if len(cfg.SyncDirectories) != 0 || len(cfg.DeleteList) != 0 {
		t.Errorf("expected empty lists, got %+v", cfg)
	}
	if cfg.NewFilePolicy.Enabled {
		t.Error("new files are opt-in")
	}
	if !cfg.LocalOverrides.Enabled {
		t.Error("local overrides are on unless disabled")
	}
	if got := cfg.LocalOverrides.Marker(); got != DefaultMarkerFile {
		t.Errorf("marker = %s, want %s", got, DefaultMarkerFile)
	}
	if !cfg.Backup.Enabled {
		t.Error("backups are on unless disabled")
	}
	if got := cfg.Backup.Dir(); got != DefaultBackupDir {
		t.Errorf("backup dir = %s, want %s", got, DefaultBackupDir)
	}
}

func TestParseSyncConfig_Coercion(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		check func(t *testing.T, cfg SyncConfig)
	}{
		{
			name: "boolean new_file_policy",
			doc:  `{"new_file_policy": true}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if !cfg.NewFilePolicy.Enabled {
					t.Error("new file policy should be enabled")
				}
			},
		},
		{
			name: "boolean backup",
			doc:  `{"backup": false}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if cfg.Backup.Enabled {
					t.Error("backup should be disabled")
				}
				if got := cfg.Backup.Dir(); got != DefaultBackupDir {
					t.Errorf("backup dir = %s", got)
				}
			},
		},
		{
			name: "object without enabled keeps default",
			doc:  `{"local_overrides": {"header_markers": ["LOCAL"]}, "backup": {"backup_dir": "bk"}}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if !cfg.LocalOverrides.Enabled || !cfg.Backup.Enabled {
					t.Errorf("defaults lost: %+v", cfg)
				}
				if !reflect.DeepEqual(cfg.LocalOverrides.HeaderMarkers, []string{"LOCAL"}) {
					t.Errorf("header markers = %v", cfg.LocalOverrides.HeaderMarkers)
				}
				if got := cfg.Backup.Dir(); got != "bk" {
					t.Errorf("backup dir = %s", got)
				}
			},
		},
		{
			name: "null policy keeps default",
			doc:  `{"new_file_policy": null, "backup": null}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if cfg.NewFilePolicy.Enabled || !cfg.Backup.Enabled {
					t.Errorf("defaults lost: %+v", cfg)
				}
			},
		},
		{
			name: "single string instead of list",
			doc:  `{"delete_list": "scripts/old.py", "sync_directories": ".specify"}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if !reflect.DeepEqual(cfg.DeleteList, []string{"scripts/old.py"}) {
					t.Errorf("delete list = %v", cfg.DeleteList)
				}
				want := []SyncDirectory{{Path: ".specify", Mode: ModeAuto}}
				if !reflect.DeepEqual(cfg.SyncDirectories, want) {
					t.Errorf("sync directories = %+v", cfg.SyncDirectories)
				}
			},
		},
		{
			name: "non-string list items dropped",
			doc:  `{"file_blacklist": ["*.swp", 3, null, {"x": 1}, ""]}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if !reflect.DeepEqual(cfg.FileBlacklist, []string{"*.swp"}) {
					t.Errorf("file blacklist = %v", cfg.FileBlacklist)
				}
			},
		},
		{
			name: "directories without a path dropped",
			doc:  `{"sync_directories": [{"mode": "auto"}, "", 42, "scripts"]}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if got := cfg.SyncPaths(); !reflect.DeepEqual(got, []string{"scripts"}) {
					t.Errorf("sync paths = %v", got)
				}
			},
		},
		{
			name: "wrong version type ignored",
			doc:  `{"_version": 2}`,
			check: func(t *testing.T, cfg SyncConfig) {
				if cfg.Version != CurrentVersion {
					t.Errorf("version = %s", cfg.Version)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseSyncConfig([]byte(tt.doc))
			if err != nil {
				t.Fatalf("ParseSyncConfig failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParseSyncConfig_RejectsPathsOutsideTree(t *testing.T) {
	doc := `{
  "sync_directories": ["scripts", "../outside", {"path": "/etc"}],
  "exclude_directories": ["scripts/../../x", "scripts/vendor"],
  "delete_list": ["../victim.txt", "scripts/old.py", "/tmp/abs", "a/../b.py"]
}`

	cfg, err := ParseSyncConfig([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSyncConfig failed: %v", err)
	}

	if got := cfg.SyncPaths(); !reflect.DeepEqual(got, []string{"scripts"}) {
		t.Errorf("sync paths = %v, want [scripts]", got)
	}
	if got := cfg.ExcludePaths(); !reflect.DeepEqual(got, []string{"scripts/vendor"}) {
		t.Errorf("exclude paths = %v, want [scripts/vendor]", got)
	}
	if want := []string{"scripts/old.py", "a/../b.py"}; !reflect.DeepEqual(cfg.DeleteList, want) {
		t.Errorf("delete list = %v, want %v", cfg.DeleteList, want)
	}
	for _, p := range []string{"../outside", "/etc", "scripts/../../x", "../victim.txt", "/tmp/abs"} {
		if !slices.Contains(cfg.Rejected, p) {
			t.Errorf("%s not reported as rejected (got %v)", p, cfg.Rejected)
		}
	}
}

func TestParseSyncConfig_Invalid(t *testing.T) {
	for _, doc := range []string{`{not json`, `[1, 2]`, `null`, `"text"`} {
		if _, err := ParseSyncConfig([]byte(doc)); err == nil {
			t.Errorf("expected error for document %s", doc)
		}
	}
}

func TestDefaultSyncConfig(t *testing.T) {
	cfg := DefaultSyncConfig()

	wantDirs := []string{
		".claude/agents",
		".claude/commands",
		".claude/hooks",
		".claude/skills",
		".specify/scripts",
		".specify/templates",
	}
	if got := cfg.SyncPaths(); !reflect.DeepEqual(got, wantDirs) {
		t.Errorf("sync paths = %v, want %v", got, wantDirs)
	}
	if got := cfg.ExcludePaths(); !reflect.DeepEqual(got, []string{".claude/commands/simplesdd"}) {
		t.Errorf("exclude paths = %v", got)
	}
	if !slices.Contains(cfg.FileBlacklist, "*.local.md") {
		t.Errorf("file blacklist = %v, missing *.local.md", cfg.FileBlacklist)
	}
	if cfg.NewFilePolicy.Enabled || !cfg.LocalOverrides.Enabled || !cfg.Backup.Enabled {
		t.Errorf("unexpected policy defaults: %+v", cfg)
	}
}

func TestSyncConfig_MarshalRoundTrip(t *testing.T) {
	cfg := DefaultSyncConfig()
	data, err := cfg.MarshalIndent()
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}

	back, err := ParseSyncConfig(data)
	if err != nil {
		t.Fatalf("ParseSyncConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.SyncPaths(), back.SyncPaths()) {
		t.Errorf("sync paths = %v, want %v", back.SyncPaths(), cfg.SyncPaths())
	}
	if !reflect.DeepEqual(cfg.FileBlacklist, back.FileBlacklist) {
		t.Errorf("file blacklist = %v, want %v", back.FileBlacklist, cfg.FileBlacklist)
	}
	if cfg.Backup != back.Backup {
		t.Errorf("backup = %+v, want %+v", back.Backup, cfg.Backup)
	}
}
