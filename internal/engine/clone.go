package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/fastgit/fgit/internal/gitexec"
	"github.com/fastgit/fgit/internal/repourl"
	"github.com/fastgit/fgit/internal/store"
)

// clone tries a proxied clone first when the proxy is live, then every
// ranked mirror. After a mirror clone the remote is pointed back at the
// canonical URL.
func (o *Orchestrator) clone(ctx context.Context, env []string, args []string) (Result, error) {
	if len(args) < 1 {
		return Result{}, fmt.Errorf("clone: %w: repository", ErrMissingArgument)
	}
	canonical := repourl.Normalize(args[0])
	rest := args[1:]
	remote := remoteName(rest)
	dest := cloneDestination(args, canonical)
	destPath := o.resolve(dest)

	if _, err := os.Stat(destPath); err == nil {
		o.logger.Warn("repository already exists", "path", dest)
		return Result{Outcome: Skipped}, nil
	}

	if !o.confirmExists(ctx, canonical, "cloning") {
		return Result{Outcome: Failed}, nil
	}
	if err := cancelled(ctx); err != nil {
		return Result{}, err
	}

	if o.deps.Proxy.Live() {
		code, err := o.cloneOnce(ctx, env, canonical, store.RouteProxy, canonical, rest)
		if err != nil {
			return Result{}, err
		}
		if code == 0 {
			return Result{Outcome: Succeeded, Route: store.RouteProxy}, nil
		}
		o.logger.Error("clone through proxy failed, trying mirrors", "exit_code", code)
	}

	ids, err := o.ranking(ctx)
	if err != nil {
		return Result{}, err
	}
	for i, id := range ids {
		target, err := repourl.Rewrite(canonical, id)
		if err != nil {
			o.logger.Warn("skipping mirror", "mirror", id, "error", err)
			continue
		}
		o.logger.Info("trying mirror", "mirror", id, "attempt", fmt.Sprintf("%d/%d", i+1, len(ids)), "url", target)

		code, err := o.cloneOnce(ctx, env, canonical, id, target, rest)
		if err != nil {
			return Result{}, err
		}
		if code != 0 {
			continue
		}

		if err := o.deps.Inspector.SetRemoteURL(destPath, remote, canonical); err != nil {
			return Result{}, fmt.Errorf("restoring %s url after clone from %s: %w", remote, id, err)
		}
		o.logger.Debug("restored remote url", "remote", remote, "url", canonical)
		return Result{Outcome: Succeeded, Route: id}, nil
	}

	o.logger.Error("all mirrors failed")
	return Result{Outcome: Failed}, nil
}

func (o *Orchestrator) cloneOnce(ctx context.Context, env []string, canonical, route, target string, rest []string) (int, error) {
	a := o.begin("clone", canonical, route, target)
	code, err := o.deps.Runner.Run(ctx, gitexec.Command{
		Dir:  o.opts.WorkDir,
		Env:  env,
		Args: append([]string{"clone", target}, rest...),
	})
	if err != nil {
		return code, err
	}
	o.finish(a, code == 0, code)
	return code, nil
}
