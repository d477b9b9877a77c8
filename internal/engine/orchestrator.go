package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastgit/fgit/internal/download"
	"github.com/fastgit/fgit/internal/gitexec"
	"github.com/fastgit/fgit/internal/repoinfo"
	"github.com/fastgit/fgit/internal/store"
)

// ErrMissingArgument is returned when an operation needs a repository
// reference and none was given.
var ErrMissingArgument = errors.New("missing required argument")

// DownloadCommand is the fgit-specific archive operation.
const DownloadCommand = "download"

// mirrored lists the git subcommands that go through mirror failover.
var mirrored = map[string]bool{
	"clone": true,
	"pull":  true,
	"push":  true,
	"fetch": true,
}

// NeedsMirror reports whether command is served with mirror failover rather
// than passed straight to git.
func NeedsMirror(command string) bool {
	return mirrored[command] || command == DownloadCommand
}

// MirrorSource yields the ranked mirror ids for this invocation.
type MirrorSource interface {
	Select(ctx context.Context) ([]string, error)
}

// ProxyEnv supplies the child-process environment.
type ProxyEnv interface {
	Environment(ctx context.Context) []string
	Live() bool
	URL() string
	Teardown()
}

// RepoInspector reads and edits local repositories.
type RepoInspector interface {
	IsRepository(dir string) bool
	RemoteURL(dir, remote string) (string, error)
	SetRemoteURL(dir, remote, url string) error
}

// ExistenceChecker asks the hosting service whether a repository exists.
type ExistenceChecker interface {
	Check(ctx context.Context, canonical string) repoinfo.Status
}

// Confirmer asks the user to override a failed existence check.
type Confirmer interface {
	Confirm(ctx context.Context, msg string) bool
}

// Fetcher downloads and verifies one archive.
type Fetcher interface {
	Fetch(ctx context.Context, opts download.FetchOptions) (*download.Result, error)
}

// Recorder stores attempt history.
type Recorder interface {
	RecordAttempt(a *store.Attempt) error
}

// Outcome is the final state of an operation.
type Outcome int

const (
	// Succeeded means a candidate completed the operation.
	Succeeded Outcome = iota
	// Skipped means the destination already existed.
	Skipped
	// Failed covers exhaustion, an empty ranking, a missing repository and
	// a declined existence override.
	Failed
	// PassedThrough means git ran once directly; see Result.ExitCode.
	PassedThrough
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case PassedThrough:
		return "passed-through"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes how an operation ended.
type Result struct {
	Outcome Outcome
	// ExitCode is git's exit code for pass-through operations.
	ExitCode int
	// Route is the mirror id, store.RouteProxy or store.RouteDirect that
	// succeeded.
	Route string
}

// Deps are the collaborators of an Orchestrator. Checker, Confirmer,
// Fetcher and Recorder may be nil.
type Deps struct {
	Runner    gitexec.Runner
	Mirrors   MirrorSource
	Proxy     ProxyEnv
	Inspector RepoInspector
	Checker   ExistenceChecker
	Confirmer Confirmer
	Fetcher   Fetcher
	Recorder  Recorder
}

// Options carry the per-run settings.
type Options struct {
	// WorkDir is where git runs and destinations are resolved.
	WorkDir string
	// Branch is the archive branch for the download operation.
	Branch string
	// ChunkSize and MinFileSize are passed to the Fetcher.
	ChunkSize   int
	MinFileSize int64
	// OnProgress receives archive download progress.
	OnProgress download.ProgressFunc
}

// Orchestrator runs one fgit command against its candidates in order.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes command with args, which exclude fgit's own flags.
func (o *Orchestrator) Run(ctx context.Context, command string, args []string) (Result, error) {
	env := o.deps.Proxy.Environment(ctx)
	defer o.deps.Proxy.Teardown()
	if o.deps.Proxy.Live() {
		o.logger.Debug("running in proxy mode")
	} else {
		o.logger.Debug("running in mirror mode")
	}

	switch {
	case command == DownloadCommand:
		return o.downloadArchive(ctx, args)
	case !mirrored[command]:
		return o.passThrough(ctx, env, command, args)
	}

	if command == "clone" {
		return o.clone(ctx, env, args)
	}
	return o.remoteOp(ctx, env, command, args)
}

func (o *Orchestrator) passThrough(ctx context.Context, env []string, command string, args []string) (Result, error) {
	code, err := o.deps.Runner.Run(ctx, gitexec.Command{
		Dir:  o.opts.WorkDir,
		Env:  env,
		Args: append([]string{command}, args...),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: PassedThrough, ExitCode: code}, nil
}

// confirmExists runs the existence check and reports whether the operation
// may continue.
func (o *Orchestrator) confirmExists(ctx context.Context, canonical, action string) bool {
	if o.deps.Checker == nil {
		return true
	}
	switch o.deps.Checker.Check(ctx, canonical) {
	case repoinfo.Exists:
		return true
	case repoinfo.Missing:
		o.logger.Warn("repository may not exist or is private", "repo", canonical)
		if o.deps.Confirmer == nil {
			return false
		}
		if o.deps.Confirmer.Confirm(ctx, "Repository may not exist.") {
			o.logger.Info("existence check overridden by user")
			return true
		}
		o.logger.Info("no override received, aborting", "repo", canonical)
		return false
	default:
		o.logger.Warn("could not fetch repository info, "+action+" anyway", "repo", canonical)
		return true
	}
}

// ranking returns the ranked mirrors, or nil after logging when none are
// reachable.
func (o *Orchestrator) ranking(ctx context.Context) ([]string, error) {
	ids, err := o.deps.Mirrors.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting mirrors: %w", err)
	}
	if len(ids) == 0 {
		o.logger.Error("no reachable mirrors")
	}
	return ids, nil
}

// attempt is one external invocation for the history store.
type attempt struct {
	operation string
	reference string
	route     string
	target    string
	start     time.Time
}

func (o *Orchestrator) begin(operation, reference, route, target string) attempt {
	return attempt{operation: operation, reference: reference, route: route, target: target, start: o.now()}
}

// finish records a. Recording failures are logged only.
func (o *Orchestrator) finish(a attempt, success bool, exitCode int) {
	if o.deps.Recorder == nil {
		return
	}
	rec := &store.Attempt{
		Operation:  a.operation,
		Reference:  a.reference,
		MirrorID:   a.route,
		TargetURL:  a.target,
		Success:    success,
		ExitCode:   exitCode,
		StartTime:  a.start,
		DurationMS: o.now().Sub(a.start).Milliseconds(),
	}
	if err := o.deps.Recorder.RecordAttempt(rec); err != nil {
		o.logger.Warn("failed to record attempt", "error", err)
	}
}

// directRoute names a non-mirror attempt for the history store.
func (o *Orchestrator) directRoute() string {
	if o.deps.Proxy.Live() {
		return store.RouteProxy
	}
	return store.RouteDirect
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("operation cancelled: %w", err)
	}
	return nil
}
