//go:build integration

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the speckit-sync binary once and runs it against
// throwaway git repositories.
type Harness struct {
	t        *testing.T
	binary   string
	home     string
	keepDirs bool
}

// NewHarness creates a new test harness with an isolated HOME.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{
		t:        t,
		home:     t.TempDir(),
		keepDirs: os.Getenv("INTEGRATION_KEEP_DIRS") == "1",
	}
}

// BuildBinary compiles cmd/speckit-sync into a temporary directory.
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.binary = filepath.Join(h.t.TempDir(), "speckit-sync")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/speckit-sync")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}

	h.t.Logf("Binary built at %s", h.binary)
	return nil
}

// Run executes the binary in dir and returns stdout, stderr and the exit code.
func (h *Harness) Run(ctx context.Context, dir string, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.binary == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"HOME="+h.home,
		"XDG_CACHE_HOME="+filepath.Join(h.home, ".cache"),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun executes the binary and fails the test if it returns non-zero.
func (h *Harness) MustRun(ctx context.Context, dir string, args ...string) string {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, dir, args...)
	if err != nil {
		h.t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout
}

// Git runs a git command in dir and fails the test on error.
func (h *Harness) Git(ctx context.Context, dir string, args ...string) string {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		h.t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// InitRepo creates a git repository with an identity configured.
func (h *Harness) InitRepo(ctx context.Context, dir string) {
	h.t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatal(err)
	}
	h.Git(ctx, dir, "init", "-b", "main")
	h.Git(ctx, dir, "config", "user.email", "test@test.com")
	h.Git(ctx, dir, "config", "user.name", "Test")
}

// Commit writes files into the repository and commits all changes.
func (h *Harness) Commit(ctx context.Context, dir, msg string, files map[string]string) {
	h.t.Helper()
	for rel, content := range files {
		h.WriteFile(dir, rel, content)
	}
	h.Git(ctx, dir, "add", "-A")
	h.Git(ctx, dir, "commit", "--allow-empty", "-m", msg)
}

// WriteFile writes a file under root, creating parent directories.
func (h *Harness) WriteFile(root, rel, content string) {
	h.t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatal(err)
	}
}

// ReadFile reads a file under root.
func (h *Harness) ReadFile(root, rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	return string(data), err
}

// FileExists checks if a file exists under root.
func (h *Harness) FileExists(root, rel string) bool {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

// findProjectRoot walks up the directory tree from the current file to find go.mod
func findProjectRoot() (string, error) {
	// Get the directory of this source file
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)

	// Walk up the directory tree looking for go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root without finding go.mod
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
