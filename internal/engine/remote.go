package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastgit/fgit/internal/gitexec"
	"github.com/fastgit/fgit/internal/mirror"
	"github.com/fastgit/fgit/internal/repourl"
)

// errAttemptFailed marks a git exit code other than zero inside a rewrite
// rule scope.
var errAttemptFailed = errors.New("attempt failed")

// remoteOp serves pull, push and fetch: one direct attempt, then each
// ranked mirror with a transient rewrite rule installed in the repository.
func (o *Orchestrator) remoteOp(ctx context.Context, env []string, command string, args []string) (Result, error) {
	dir := o.resolve(".")
	if !o.deps.Inspector.IsRepository(dir) {
		o.logger.Warn("current directory is not a git repository", "dir", dir)
		return Result{Outcome: Failed}, nil
	}

	gitArgs := append([]string{command}, args...)
	reference := dir
	if u, err := o.deps.Inspector.RemoteURL(dir, defaultRemote); err == nil {
		reference = repourl.Normalize(u)
	}

	a := o.begin(command, reference, o.directRoute(), reference)
	code, err := o.deps.Runner.Run(ctx, gitexec.Command{Dir: o.opts.WorkDir, Env: env, Args: gitArgs})
	if err != nil {
		return Result{}, err
	}
	o.finish(a, code == 0, code)
	if code == 0 {
		return Result{Outcome: Succeeded, Route: a.route}, nil
	}
	if o.deps.Proxy.Live() {
		o.logger.Error("command failed in proxy mode, trying mirrors", "command", command, "exit_code", code)
	}

	ids, err := o.ranking(ctx)
	if err != nil {
		return Result{}, err
	}
	for i, id := range ids {
		m, ok := mirror.Lookup(id)
		if !ok {
			o.logger.Warn("skipping unknown mirror", "mirror", id)
			continue
		}
		o.logger.Info("trying mirror", "mirror", id, "attempt", fmt.Sprintf("%d/%d", i+1, len(ids)))

		done, err := o.mirrorAttempt(ctx, env, command, reference, m, gitArgs)
		if err != nil {
			return Result{}, err
		}
		if done {
			return Result{Outcome: Succeeded, Route: id}, nil
		}
	}

	o.logger.Error("all mirrors failed")
	return Result{Outcome: Failed}, nil
}

// mirrorAttempt runs git once with m's rewrite rule in place. The canonical
// mirror needs no rule.
func (o *Orchestrator) mirrorAttempt(ctx context.Context, env []string, command, reference string, m mirror.Mirror, gitArgs []string) (bool, error) {
	a := o.begin(command, reference, m.ID, m.BaseURL)
	run := func(ctx context.Context) error {
		code, err := o.deps.Runner.Run(ctx, gitexec.Command{Dir: o.opts.WorkDir, Env: env, Args: gitArgs})
		if err != nil {
			return err
		}
		o.finish(a, code == 0, code)
		if code != 0 {
			return fmt.Errorf("%w: git exited with %d", errAttemptFailed, code)
		}
		return nil
	}

	var err error
	if m.ID == mirror.CanonicalID {
		err = run(ctx)
	} else {
		err = gitexec.WithRewriteRule(ctx, o.deps.Runner, o.logger, o.opts.WorkDir, gitexec.MirrorRule(m), run)
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gitexec.ErrRuleNotRemoved):
		return false, err
	case errors.Is(err, gitexec.ErrRuleNotInstalled) && ctx.Err() == nil:
		o.logger.Warn("could not install rewrite rule, skipping mirror", "mirror", m.ID, "error", err)
		return false, nil
	case errors.Is(err, errAttemptFailed):
		return false, nil
	default:
		return false, err
	}
}
