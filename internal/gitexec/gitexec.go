// Package gitexec runs the git executable and manages transient URL rewrite
// rules around individual git invocations.
package gitexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrGitNotFound is returned when no git executable is on PATH.
var ErrGitNotFound = errors.New("git executable not found")

// Command is one git invocation. Args exclude the executable name. A nil Env
// inherits the current process environment. A non-nil Stdout replaces the
// runner's standard output for this invocation.
type Command struct {
	Dir    string
	Env    []string
	Args   []string
	Stdout io.Writer
}

func (c Command) String() string {
	return "git " + strings.Join(c.Args, " ")
}

// Runner executes git. The exit code is the only outcome signal; err is
// non-nil only when git could not be run at all or ctx was cancelled.
type Runner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, err error)
}

// ExecRunner runs the git binary with inherited stdio.
type ExecRunner struct {
	binary string
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewExecRunner locates git on PATH.
func NewExecRunner(logger *slog.Logger) (*ExecRunner, error) {
	path, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGitNotFound, err)
	}
	return &ExecRunner{
		binary: path,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}, nil
}

// Binary returns the resolved git path.
func (r *ExecRunner) Binary() string {
	return r.binary
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	r.logger.Debug("executing", "cmd", c.String(), "dir", c.Dir)

	cmd := exec.CommandContext(ctx, r.binary, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	cmd.Stderr = r.stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("%s: %w", c, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Debug("git exited with failure", "cmd", c.String(), "code", exitErr.ExitCode())
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("running %s: %w", c, err)
}
