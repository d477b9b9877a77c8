// Package gitrepo inspects local repository state with go-git.
package gitrepo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
)

// ErrRemoteNotFound is returned when the named remote does not exist.
var ErrRemoteNotFound = errors.New("remote not found")

// Inspector answers questions about repositories on the local filesystem.
type Inspector struct {
	logger *slog.Logger
}

// NewInspector creates an Inspector.
func NewInspector(logger *slog.Logger) *Inspector {
	return &Inspector{logger: logger}
}

// IsRepository reports whether dir, or one of its parents, holds repository
// state. Errors other than "no repository" are logged and reported as false.
func (i *Inspector) IsRepository(dir string) bool {
	_, err := open(dir)
	if err == nil {
		return true
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		i.logger.Warn("could not open repository", "dir", dir, "error", err)
	}
	return false
}

// SetRemoteURL replaces every URL of the named remote with url.
func (i *Inspector) SetRemoteURL(dir, remote, url string) error {
	repo, err := open(dir)
	if err != nil {
		return fmt.Errorf("opening repository %s: %w", dir, err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("reading repository config: %w", err)
	}
	rc, ok := cfg.Remotes[remote]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, remote)
	}
	rc.URLs = []string{url}

	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("writing repository config: %w", err)
	}
	i.logger.Debug("set remote url", "dir", dir, "remote", remote, "url", url)
	return nil
}

// RemoteURL returns the first URL of the named remote.
func (i *Inspector) RemoteURL(dir, remote string) (string, error) {
	repo, err := open(dir)
	if err != nil {
		return "", fmt.Errorf("opening repository %s: %w", dir, err)
	}
	r, err := repo.Remote(remote)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", fmt.Errorf("%w: %s", ErrRemoteNotFound, remote)
		}
		return "", fmt.Errorf("reading remote %s: %w", remote, err)
	}
	urls := r.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: %s has no url", ErrRemoteNotFound, remote)
	}
	return urls[0], nil
}

func open(dir string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
}
