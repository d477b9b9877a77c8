package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastgit/fgit/internal/download"
	"github.com/fastgit/fgit/internal/engine"
	"github.com/fastgit/fgit/internal/gitexec"
	"github.com/fastgit/fgit/internal/gitrepo"
	"github.com/fastgit/fgit/internal/prompt"
	"github.com/fastgit/fgit/internal/proxy"
	"github.com/fastgit/fgit/internal/repoinfo"
)

// rootFlags are fgit's own flags found among git's arguments.
type rootFlags struct {
	config    string
	logFormat string
	useProxy  string
	verbose   bool
	help      bool
	version   bool
}

// valueFlags take a value either as "--flag value" or "--flag=value".
var valueFlags = map[string]func(*rootFlags, string){
	"--config":     func(f *rootFlags, v string) { f.config = v },
	"--log-format": func(f *rootFlags, v string) { f.logFormat = v },
	"--use-proxy":  func(f *rootFlags, v string) { f.useProxy = v },
}

// splitArgs removes fgit's flags from args. The first remaining token is the
// git command; help and version are only recognised before it.
func splitArgs(args []string) (rootFlags, string, []string, error) {
	var flags rootFlags
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			rest = append(rest, args[i:]...)
			break
		}
		if arg == "--verbose" {
			flags.verbose = true
			continue
		}
		if len(rest) == 0 {
			switch arg {
			case "-h", "--help":
				flags.help = true
				continue
			case "--version":
				flags.version = true
				continue
			}
		}
		name, value, hasValue := strings.Cut(arg, "=")
		set, ok := valueFlags[name]
		if !ok {
			rest = append(rest, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return flags, "", nil, fmt.Errorf("flag %s needs a value", name)
			}
			i++
			value = args[i]
		}
		set(&flags, value)
	}

	if len(rest) == 0 {
		return flags, "", nil, nil
	}
	return flags, rest[0], rest[1:], nil
}

func gitRun(cmd *cobra.Command, args []string) error {
	flags, command, rest, err := splitArgs(args)
	if err != nil {
		return err
	}
	cfgPath, verbose = flags.config, flags.verbose
	if flags.logFormat != "" {
		logFormat = flags.logFormat
	}
	if flags.useProxy != "" {
		useProxy = flags.useProxy
	}

	switch {
	case flags.version:
		fmt.Fprintln(cmd.OutOrStdout(), "fgit version "+cmd.Root().Version)
		return nil
	case flags.help || command == "":
		return cmd.Help()
	}

	if err := setup(); err != nil {
		return err
	}
	logger.Debug("command arguments", "command", command, "args", strings.Join(rest, " "))

	o, cleanup, err := newOrchestrator(cmd.Context(), engine.Options{}, true)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := o.Run(cmd.Context(), command, rest)
	if err != nil {
		return err
	}
	exitCode = resultCode(res)
	return nil
}

// resultCode maps an operation result to the process exit code.
func resultCode(res engine.Result) int {
	switch res.Outcome {
	case engine.PassedThrough:
		return res.ExitCode
	case engine.Failed:
		return 1
	default:
		return 0
	}
}

// newOrchestrator wires every collaborator for one invocation. The proxy
// liveness check runs here so the metadata and archive clients can use a
// live proxy.
func newOrchestrator(ctx context.Context, opts engine.Options, requireGit bool) (*engine.Orchestrator, func(), error) {
	var runner gitexec.Runner
	execRunner, err := gitexec.NewExecRunner(logger)
	switch {
	case err == nil:
		runner = execRunner
	case requireGit:
		return nil, nil, err
	default:
		logger.Debug("git not found", "error", err)
	}

	ctl := proxy.NewController(useProxy, globalCfg.Proxy(), proxy.NewHTTPChecker(), logger)
	ctl.Environment(ctx)
	var proxyURL *url.URL
	if ctl.Live() {
		proxyURL, _ = url.Parse(ctl.URL())
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("reading working directory: %w", err)
	}
	opts.WorkDir = wd

	var report io.Writer
	if verbose {
		report = os.Stderr
	}

	deps := engine.Deps{
		Runner:    runner,
		Mirrors:   newSelector(report),
		Proxy:     ctl,
		Inspector: gitrepo.NewInspector(logger),
		Checker:   repoinfo.NewChecker(repoinfo.NewHTTPClient(proxyURL), logger),
		Confirmer: prompt.NewConfirmer(os.Stdin, os.Stderr, logger),
		Fetcher:   download.NewClient(logger, proxyURL),
	}

	cleanup := func() {}
	if hist := openHistory(); hist != nil {
		deps.Recorder = hist
		cleanup = func() {
			if err := hist.Close(); err != nil {
				logger.Warn("failed to close history", "error", err)
			}
		}
	}

	return engine.NewOrchestrator(deps, opts, logger), cleanup, nil
}
