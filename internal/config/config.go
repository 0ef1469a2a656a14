package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateURL is the upstream SpecKit template repository.
const DefaultTemplateURL = "git@github.com:WeTechHK/AI-SDD-template.git"

// DefaultTemplateRef is the branch checked out when none is configured.
const DefaultTemplateRef = "main"

// Settings represents the speckit-sync tool settings: where the template
// comes from and which local paths the engine works with.
type Settings struct {
	Template TemplateSettings `yaml:"template"`
	Paths    PathsSettings    `yaml:"paths"`
	Auth     AuthSettings     `yaml:"auth"`
}

// TemplateSettings configures the template source
type TemplateSettings struct {
	URL    string `yaml:"url"`
	Ref    string `yaml:"ref"`
	Subdir string `yaml:"subdir"`
	// Dir points at an already materialized template tree. When set, no git
	// operation is performed.
	Dir string `yaml:"dir"`
}

// PathsSettings configures local filesystem paths
type PathsSettings struct {
	WorkDir   string `yaml:"work_dir"`
	ConfigDir string `yaml:"config_dir"`
	StateDir  string `yaml:"state_dir"`
}

// AuthSettings configures Git authentication
type AuthSettings struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// DefaultSettings returns settings with every default applied.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.ApplyDefaults()
	return s
}

// LoadSettings reads and parses the settings file
func LoadSettings(path string) (*Settings, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	s.expandEnv()
	s.ApplyDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &s, nil
}

// expandEnv expands environment variables in all string fields
func (s *Settings) expandEnv() {
	s.Template.URL = os.ExpandEnv(s.Template.URL)
	s.Template.Ref = os.ExpandEnv(s.Template.Ref)
	s.Template.Subdir = os.ExpandEnv(s.Template.Subdir)
	s.Template.Dir = os.ExpandEnv(s.Template.Dir)
	s.Paths.WorkDir = os.ExpandEnv(s.Paths.WorkDir)
	s.Paths.ConfigDir = os.ExpandEnv(s.Paths.ConfigDir)
	s.Paths.StateDir = os.ExpandEnv(s.Paths.StateDir)
	s.Auth.SSHKeyFile = os.ExpandEnv(s.Auth.SSHKeyFile)
	s.Auth.HTTPSTokenFile = os.ExpandEnv(s.Auth.HTTPSTokenFile)
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (s *Settings) ApplyDefaults() {
	if s.Template.URL == "" && s.Template.Dir == "" {
		s.Template.URL = DefaultTemplateURL
	}
	if s.Template.Ref == "" {
		s.Template.Ref = DefaultTemplateRef
	}
	if s.Paths.StateDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		s.Paths.StateDir = filepath.Join(base, "speckit-sync")
	}
}

// Validate checks the settings for errors
func (s *Settings) Validate() error {
	if s.Template.URL == "" && s.Template.Dir == "" {
		return fmt.Errorf("template.url or template.dir is required")
	}
	if s.Template.Dir == "" && s.Template.Ref == "" {
		return fmt.Errorf("template.ref is required")
	}

	if s.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir is required")
	}
	if !filepath.IsAbs(s.Paths.StateDir) {
		return fmt.Errorf("paths.state_dir must be an absolute path: %s", s.Paths.StateDir)
	}

	// Validate auth: only one auth method may be configured
	if s.Auth.SSHKeyFile != "" && s.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}

	// Auth only matters when the template is fetched with git
	if s.Template.Dir == "" {
		if s.Auth.SSHKeyFile != "" && !s.IsSSH() {
			return fmt.Errorf("auth.ssh_key_file is set but template.url does not use an SSH scheme (git@ or ssh://)")
		}
		if s.Auth.HTTPSTokenFile != "" && !s.IsHTTPS() {
			return fmt.Errorf("auth.https_token_file is set but template.url does not use HTTPS scheme")
		}
	}

	return nil
}

// UsesGit reports whether the template tree has to be fetched with git.
func (s *Settings) UsesGit() bool {
	return s.Template.Dir == ""
}

// CheckoutDir returns where the template repository is checked out. Each
// template URL gets its own checkout.
func (s *Settings) CheckoutDir() string {
	return filepath.Join(s.Paths.StateDir, "templates", shortHash(s.Template.URL))
}

// CheckoutLockPath returns the lock file guarding CheckoutDir.
func (s *Settings) CheckoutLockPath() string {
	return filepath.Join(s.Paths.StateDir, "locks", "template-"+shortHash(s.Template.URL)+".lock")
}

// TemplateRoot returns the root of the template tree inside checkoutDir,
// or the configured local template directory.
func (s *Settings) TemplateRoot(checkoutDir string) string {
	if s.Template.Dir != "" {
		return s.Template.Dir
	}
	if s.Template.Subdir == "" {
		return checkoutDir
	}
	return filepath.Join(checkoutDir, s.Template.Subdir)
}

// ConfigDirFor returns the directory holding the shipped (L0) sync configs
// for the given working root.
func (s *Settings) ConfigDirFor(workRoot string) string {
	if s.Paths.ConfigDir == "" {
		return filepath.Join(workRoot, DefaultConfigDirName)
	}
	if filepath.IsAbs(s.Paths.ConfigDir) {
		return s.Paths.ConfigDir
	}
	return filepath.Join(workRoot, s.Paths.ConfigDir)
}

// LockPath returns the run lock file guarding workRoot.
func (s *Settings) LockPath(workRoot string) string {
	return filepath.Join(s.Paths.StateDir, "locks", shortHash(workRoot)+".lock")
}

func shortHash(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}

// AuthMethod returns a description of the configured auth method
func (s *Settings) AuthMethod() string {
	if s.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if s.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the template URL uses HTTPS
func (s *Settings) IsHTTPS() bool {
	return strings.HasPrefix(s.Template.URL, "https://")
}

// IsSSH returns true if the template URL uses SSH
func (s *Settings) IsSSH() bool {
	return strings.HasPrefix(s.Template.URL, "git@") || strings.HasPrefix(s.Template.URL, "ssh://")
}
