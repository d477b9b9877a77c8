package gitexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fastgit/fgit/internal/mirror"
)

var (
	// ErrRuleNotInstalled is returned when git refused to store the rule.
	ErrRuleNotInstalled = errors.New("rewrite rule not installed")
	// ErrRuleNotRemoved is returned when a rule may still be present after
	// the attempt finished.
	ErrRuleNotRemoved = errors.New("rewrite rule not removed")
)

// RewriteRule is a git "url.<Base>.insteadOf <InsteadOf>" directive: URLs
// beginning with InsteadOf are fetched from Base instead.
type RewriteRule struct {
	Base      string
	InsteadOf string
}

// Key is the git config key holding the rule.
func (r RewriteRule) Key() string {
	return "url." + r.Base + ".insteadOf"
}

// MirrorRule routes every canonical hosting-service URL through m.
func MirrorRule(m mirror.Mirror) RewriteRule {
	return RewriteRule{
		Base:      strings.TrimRight(m.BaseURL, "/") + "/",
		InsteadOf: mirror.CanonicalBaseURL + "/",
	}
}

// valuePattern matches exactly the rule's value so that other values stored
// under the same key are left alone.
func (r RewriteRule) valuePattern() string {
	return "^" + regexp.QuoteMeta(r.InsteadOf) + "$"
}

// WithRewriteRule installs rule in the repository at dir, runs fn, and
// removes the rule again on every exit path, including cancellation of ctx
// and panics in fn. fn does not run if the rule cannot be installed. A rule
// the repository already carries is used as is and left in place; values the
// user stored under the same key are never touched.
func WithRewriteRule(ctx context.Context, runner Runner, logger *slog.Logger, dir string, rule RewriteRule, fn func(ctx context.Context) error) (err error) {
	present, err := hasRule(ctx, runner, dir, rule)
	if err != nil {
		return err
	}
	if present {
		logger.Debug("rewrite rule already configured", "key", rule.Key(), "instead_of", rule.InsteadOf)
		return fn(ctx)
	}

	install := Command{Dir: dir, Args: []string{"config", "--local", "--add", rule.Key(), rule.InsteadOf}}
	code, runErr := runner.Run(ctx, install)
	if runErr != nil {
		return fmt.Errorf("installing rewrite rule: %w", errors.Join(ErrRuleNotInstalled, runErr))
	}
	if code != 0 {
		return fmt.Errorf("installing rewrite rule %s: %w: git exited with %d", rule.Key(), ErrRuleNotInstalled, code)
	}
	logger.Debug("installed rewrite rule", "key", rule.Key(), "instead_of", rule.InsteadOf)

	defer func() {
		if rmErr := removeRule(context.WithoutCancel(ctx), runner, dir, rule); rmErr != nil {
			logger.Error("failed to remove rewrite rule", "key", rule.Key(), "error", rmErr)
			err = errors.Join(err, rmErr)
			return
		}
		logger.Debug("removed rewrite rule", "key", rule.Key())
	}()

	return fn(ctx)
}

// hasRule reports whether the repository config already maps rule.Key() to
// rule.InsteadOf.
func hasRule(ctx context.Context, runner Runner, dir string, rule RewriteRule) (bool, error) {
	lookup := Command{
		Dir:    dir,
		Args:   []string{"config", "--local", "--get-all", rule.Key(), rule.valuePattern()},
		Stdout: io.Discard,
	}
	code, err := runner.Run(ctx, lookup)
	if err != nil {
		return false, fmt.Errorf("reading rewrite rule: %w", errors.Join(ErrRuleNotInstalled, err))
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("reading rewrite rule %s: %w: git exited with %d", rule.Key(), ErrRuleNotInstalled, code)
	}
}

func removeRule(ctx context.Context, runner Runner, dir string, rule RewriteRule) error {
	remove := Command{Dir: dir, Args: []string{"config", "--local", "--unset-all", rule.Key(), rule.valuePattern()}}
	code, err := runner.Run(ctx, remove)
	if err != nil {
		return fmt.Errorf("removing rewrite rule: %w", errors.Join(ErrRuleNotRemoved, err))
	}
	// Exit code 5 means the value was already absent.
	if code != 0 && code != 5 {
		return fmt.Errorf("removing rewrite rule %s: %w: git exited with %d", rule.Key(), ErrRuleNotRemoved, code)
	}
	return nil
}
