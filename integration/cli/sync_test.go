//go:build integration

package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

const projectConfig = `{
  "_version": "2.0.0",
  "sync_directories": [".claude/commands", ".specify/templates"],
  "exclude_directories": [{"path": ".claude/commands/simplesdd", "reason": "managed separately"}],
  "delete_list": [".claude/commands/retired.md"],
  "file_blacklist": ["*.local.md"],
  "new_file_policy": {"enabled": true},
  "local_overrides": {"enabled": true, "header_markers": ["speckit:local"]},
  "backup": {"enabled": true}
}`

type report struct {
	Commit       string `json:"commit"`
	ConfigSource string `json:"config_source"`
	Result       struct {
		DryRun  bool `json:"dry_run"`
		Created int  `json:"created"`
		Updated int  `json:"updated"`
		Deleted int  `json:"deleted"`
		Errors  int  `json:"errors"`
	} `json:"result"`
}

func TestCLISync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	if err := h.BuildBinary(ctx); err != nil {
		t.Fatalf("build binary: %v", err)
	}

	root := t.TempDir()
	templateRepo := filepath.Join(root, "template")
	project := filepath.Join(root, "project")

	h.InitRepo(ctx, templateRepo)
	h.Commit(ctx, templateRepo, "Initial template", map[string]string{
		".claude/commands/plan.md":          "# Plan v1\n",
		".claude/commands/tasks.md":         "# Tasks v1\n",
		".claude/commands/simplesdd/sdd.md": "# SDD\n",
		".specify/templates/spec.md":        "# Spec v1\n",
		".specify/templates/notes.local.md": "upstream notes\n",
	})

	h.InitRepo(ctx, project)
	h.Commit(ctx, project, "Initial project", map[string]string{
		".speckit-config.json":        projectConfig,
		".claude/commands/plan.md":    "# Plan v0\n",
		".claude/commands/custom.md":  "<!-- speckit:local -->\n# Mine\n",
		".claude/commands/retired.md": "# Retired\n",
	})

	templateURL := templateRepo

	t.Run("A_DryRunChangesNothing", func(t *testing.T) {
		out := h.MustRun(ctx, project, "sync", "--dry-run", "--output", "json", "--template-url", templateURL)
		r := decode(t, out)
		if !r.Result.DryRun || r.Result.Created != 2 || r.Result.Updated != 1 || r.Result.Deleted != 1 {
			t.Errorf("unexpected preview: %+v", r.Result)
		}
		if got, _ := h.ReadFile(project, ".claude/commands/plan.md"); got != "# Plan v0\n" {
			t.Errorf("dry run modified plan.md: %q", got)
		}
	})

	t.Run("B_InitialSync", func(t *testing.T) {
		out := h.MustRun(ctx, filepath.Join(project, ".claude"), "sync", "--output", "json", "--template-url", templateURL)
		r := decode(t, out)
		if r.ConfigSource != "project" || r.Commit == "" {
			t.Errorf("unexpected report: %+v", r)
		}
		if r.Result.Created != 2 || r.Result.Updated != 1 || r.Result.Deleted != 1 || r.Result.Errors != 0 {
			t.Errorf("unexpected result: %+v", r.Result)
		}

		if got, _ := h.ReadFile(project, ".claude/commands/plan.md"); got != "# Plan v1\n" {
			t.Errorf("plan.md = %q", got)
		}
		if got, _ := h.ReadFile(project, ".speckit-backup/.claude/commands/plan.md"); got != "# Plan v0\n" {
			t.Errorf("backup of plan.md = %q", got)
		}
		if h.FileExists(project, ".claude/commands/retired.md") {
			t.Error("retired.md should be deleted")
		}
		if h.FileExists(project, ".claude/commands/simplesdd/sdd.md") {
			t.Error("excluded directory must not be synced")
		}
		if h.FileExists(project, ".specify/templates/notes.local.md") {
			t.Error("blacklisted file must not be synced")
		}
		if got, _ := h.ReadFile(project, ".claude/commands/custom.md"); !strings.Contains(got, "speckit:local") {
			t.Error("locally overridden file changed")
		}
	})

	t.Run("C_NoOpSync", func(t *testing.T) {
		out := h.MustRun(ctx, project, "sync", "--output", "json", "--template-url", templateURL)
		r := decode(t, out)
		if r.Result.Created+r.Result.Updated+r.Result.Deleted != 0 {
			t.Errorf("second sync should be a no-op: %+v", r.Result)
		}
	})

	t.Run("D_UpstreamUpdate", func(t *testing.T) {
		h.Commit(ctx, templateRepo, "Update tasks", map[string]string{
			".claude/commands/tasks.md": "# Tasks v2\n",
		})

		out := h.MustRun(ctx, project, "sync", "--no-color", "--show-excluded", "--template-url", templateURL)
		if !strings.Contains(out, "[UPDATE] .claude/commands/tasks.md") {
			t.Errorf("expected tasks.md update in report:\n%s", out)
		}
		if !strings.Contains(out, "in exclude list") {
			t.Errorf("expected exclusion audit in report:\n%s", out)
		}
		if got, _ := h.ReadFile(project, ".claude/commands/tasks.md"); got != "# Tasks v2\n" {
			t.Errorf("tasks.md = %q", got)
		}
	})

	t.Run("E_MissingTemplateFails", func(t *testing.T) {
		_, stderr, exitCode, err := h.Run(ctx, project, "sync", "--template-dir", filepath.Join(root, "missing"))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if exitCode != 1 {
			t.Errorf("exit code = %d, want 1\nstderr: %s", exitCode, stderr)
		}
	})

	t.Run("F_ConfigCommand", func(t *testing.T) {
		out := h.MustRun(ctx, project, "config")
		if !strings.Contains(out, `"source": "project"`) {
			t.Errorf("unexpected config output:\n%s", out)
		}
	})
}

func decode(t *testing.T, out string) report {
	t.Helper()
	var r report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out)
	}
	return r
}
