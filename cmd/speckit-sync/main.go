package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/schaermu/speckit-sync/internal/config"
	"github.com/schaermu/speckit-sync/internal/git"
	"github.com/schaermu/speckit-sync/internal/report"
	"github.com/schaermu/speckit-sync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	settingsFile string
	logLevel     string
	logFormat    string
	noColor      bool

	// Sync and config command flags
	dryRun       bool
	verbose      bool
	showExcluded bool
	outputFormat string
	templateDir  string
	templateURL  string
	templateRef  string
	workDir      string
	configDir    string
	showDefaults bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "speckit-sync",
	Short: "Selectively synchronize SpecKit template files into a project",
	Long: `speckit-sync brings a project's SpecKit files (agent commands, hooks, skills,
scripts and document templates) in line with the upstream template repository.

Only whitelisted directories are touched. Local customizations are protected by
marker files and header markers, and every overwritten or deleted file is backed
up first.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize template files into the working tree",
	Long: `Sync fetches the template, resolves the project's sync config, decides per file
whether to create, update, delete or leave it alone, and applies the result.

Per-file errors are reported in the summary and do not change the exit status.
The command fails only when the template or the working tree cannot be used.`,
	RunE: runSync,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective sync config and where it came from",
	RunE:  runConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "speckit-sync %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default is $HOME/.config/speckit-sync/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Flags shared by sync and config
	for _, cmd := range []*cobra.Command{syncCmd, configCmd} {
		cmd.Flags().StringVar(&templateDir, "template-dir", "", "use an existing template tree instead of fetching it")
		cmd.Flags().StringVar(&templateURL, "template-url", "", "template repository URL")
		cmd.Flags().StringVar(&templateRef, "ref", "", "template branch, tag or commit")
		cmd.Flags().StringVar(&workDir, "work-dir", "", "working tree root (default is the enclosing git repository)")
		cmd.Flags().StringVar(&configDir, "config-dir", "", "directory holding shipped sync configs (default is <work-dir>/speckit-config)")
	}

	// Sync command flags
	syncCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "show what would be done without making changes")
	syncCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every per-file decision")
	syncCmd.Flags().BoolVar(&showExcluded, "show-excluded", false, "list excluded files grouped by reason")
	syncCmd.Flags().StringVar(&outputFormat, "output", "text", "report format (text, json)")

	configCmd.Flags().BoolVar(&showDefaults, "defaults", false, "print the built-in default config instead")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if outputFormat != "text" && outputFormat != "json" {
		return fmt.Errorf("unsupported output format %q (use text or json)", outputFormat)
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger(os.Stderr)

	// Load settings
	settings, err := loadSettings(logger)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Create dependencies
	gitClient := git.NewShellClient(settings.Auth.SSHKeyFile, settings.Auth.HTTPSTokenFile)

	// Create sync engine
	engine := sync.NewEngine(settings, gitClient, logger, sync.Options{DryRun: dryRun})

	// Run sync
	out, err := engine.Run(ctx)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	return writeReport(cmd.OutOrStdout(), out)
}

func writeReport(w io.Writer, out *sync.Outcome) error {
	if outputFormat == "json" {
		return report.JSON(w, report.NewDocument(out))
	}

	report.Actions(w, out.Result)
	if showExcluded {
		report.Excluded(w, out.Result.Exclusions, report.DefaultPreviewLimit)
	}
	report.Summary(w, out.Result)
	return nil
}

// configView is what the config command prints.
type configView struct {
	Source config.Source     `json:"source"`
	Path   string            `json:"path,omitempty"`
	Error  string            `json:"error,omitempty"`
	Config config.SyncConfig `json:"config"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if showDefaults {
		return writeJSON(w, configView{Source: config.SourceDefault, Config: config.DefaultSyncConfig()})
	}

	logger := setupLogger(os.Stderr)
	settings, err := loadSettings(logger)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	gitClient := git.NewShellClient(settings.Auth.SSHKeyFile, settings.Auth.HTTPSTokenFile)
	engine := sync.NewEngine(settings, gitClient, logger, sync.Options{DryRun: true})

	workRoot, err := engine.ResolveWorkRoot(cmd.Context())
	if err != nil {
		return err
	}

	loaded := engine.LoadConfig(workRoot)
	view := configView{Source: loaded.Source, Path: loaded.Path, Config: loaded.Config}
	if loaded.Err != nil {
		view.Error = loaded.Err.Error()
	}
	return writeJSON(w, view)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func setupLogger(w io.Writer) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	// Create handler based on format
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    noColor || !isTerminal(w),
		})
	}

	return slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func loadSettings(logger *slog.Logger) (*config.Settings, error) {
	// Determine settings file path
	path := settingsFile
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "speckit-sync", "settings.yaml")
	}

	var settings *config.Settings
	if _, err := os.Stat(path); err == nil || explicit {
		logger.Debug("loading settings", "path", path)
		settings, err = config.LoadSettings(path)
		if err != nil {
			return nil, err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no settings file, using defaults", "path", path)
		settings = config.DefaultSettings()
	} else {
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}

	applyFlagOverrides(settings)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	logger.Debug("settings loaded",
		"template_url", settings.Template.URL,
		"template_ref", settings.Template.Ref,
		"template_dir", settings.Template.Dir,
		"work_dir", settings.Paths.WorkDir,
		"state_dir", settings.Paths.StateDir,
		"auth", settings.AuthMethod())

	return settings, nil
}

// applyFlagOverrides lets command-line flags win over the settings file.
func applyFlagOverrides(s *config.Settings) {
	if templateDir != "" {
		s.Template.Dir = templateDir
	}
	if templateURL != "" {
		s.Template.URL = templateURL
		s.Template.Dir = ""
	}
	if templateRef != "" {
		s.Template.Ref = templateRef
	}
	if workDir != "" {
		s.Paths.WorkDir = workDir
	}
	if configDir != "" {
		s.Paths.ConfigDir = configDir
	}
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
