package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/fastgit/fgit/internal/config"
	"github.com/fastgit/fgit/internal/engine"
	"github.com/fastgit/fgit/internal/gitexec"
	"github.com/fastgit/fgit/internal/mirror"
	"github.com/fastgit/fgit/internal/store"
)

var (
	// Global flags
	cfgPath   string
	logFormat string
	verbose   bool
	useProxy  string

	globalCfg *config.Store
	logger    = slog.Default()

	// exitCode is set by commands that report git's status.
	exitCode int
)

// historyPath is where attempt history is kept.
const historyPath = "fgit/history.db"

// NewRootCmd creates and returns the root command. Unknown subcommands are
// git subcommands: flag parsing is disabled so their flags reach git
// untouched and fgit's own flags are extracted by splitArgs.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fgit <git-command> [args...]",
		Short: "Run git through the fastest GitHub mirror or an HTTP proxy",
		Long: `fgit wraps git. clone, pull, push and fetch are retried through a ranked
list of GitHub mirrors (and an optional HTTP proxy) until one succeeds; every
other git command is passed through unchanged.

Mirror latency is measured on demand and cached in ~/.fgit.conf for an hour.`,
		Example: `  fgit clone octocat/Hello-World
  fgit clone git@github.com:octocat/Hello-World.git --depth 1
  fgit pull --use-proxy http://127.0.0.1:7890
  fgit download octocat/Hello-World --branch master
  fgit mirrors --refresh
  fgit history --limit 20`,
		Version:            "1.0.0",
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The root command parses its own flags in gitRun.
			if cmd == cmd.Root() {
				return nil
			}
			return setup()
		},
		RunE: gitRun,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to settings file (default ~/.fgit.conf)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show debug output and probe details")
	cmd.PersistentFlags().StringVar(&useProxy, "use-proxy", "", "HTTP proxy, e.g. http://[user:pass@]host:port")

	cmd.AddCommand(
		newDownloadCmd(),
		newMirrorsCmd(),
		newHistoryCmd(),
		newSettingsCmd(),
	)

	return cmd
}

// setup configures logging and loads the settings file.
func setup() error {
	setupLogging()

	path := cfgPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return fmt.Errorf("locating settings file: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	globalCfg = cfg
	logger.Debug("settings loaded", "path", cfg.Path())
	return nil
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// openHistory opens the attempt history. Failure disables history.
func openHistory() *store.Store {
	path, err := xdg.DataFile(historyPath)
	if err != nil {
		logger.Warn("history disabled", "error", err)
		return nil
	}
	st, err := store.New(path, logger)
	if err != nil {
		logger.Warn("history disabled", "error", err)
		return nil
	}
	return st
}

// newSelector builds the cached mirror selector. Probe tables go to report
// when it is non-nil.
func newSelector(report io.Writer) *mirror.Selector {
	return mirror.NewSelector(globalCfg, mirror.NewProber(logger, report), logger)
}

// execute runs the CLI and maps the outcome to a process exit code.
func execute(ctx context.Context, args []string) int {
	exitCode = 0
	root := NewRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitCode
	case errors.Is(err, context.Canceled):
		logger.Warn("operation cancelled")
		return 0
	case errors.Is(err, engine.ErrMissingArgument):
		logger.Error("missing required argument", "args", strings.Join(args, " "))
		logger.Info("usage: fgit -h")
		return 1
	case errors.Is(err, gitexec.ErrGitNotFound):
		logger.Error("git is required but was not found on PATH")
		return 1
	default:
		logger.Error("fgit failed", "error", err)
		return 1
	}
}
