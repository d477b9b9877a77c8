// Package repoinfo asks the hosting service whether a repository exists.
package repoinfo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/fastgit/fgit/internal/repourl"
	"github.com/fastgit/fgit/internal/safety"
)

const (
	// UserAgent is sent with every metadata request.
	UserAgent = "fgit/1.0"

	requestTimeout = 10 * time.Second
)

// Status is the outcome of an existence check.
type Status int

const (
	// Unknown means the check was inconclusive.
	Unknown Status = iota
	// Exists means the service confirmed the repository.
	Exists
	// Missing means the service answered 404.
	Missing
)

func (s Status) String() string {
	switch s {
	case Exists:
		return "exists"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Checker queries the repository metadata endpoint.
type Checker struct {
	client *gh.Client
	logger *slog.Logger
}

// NewHTTPClient returns a client for the metadata endpoint with a bounded
// timeout. It goes through proxy when non-nil and through the environment's
// proxy otherwise.
func NewHTTPClient(proxy *url.URL) *http.Client {
	return safety.NewProxiedHTTPClient(requestTimeout, proxy)
}

// NewChecker creates a Checker. A nil httpClient uses NewHTTPClient(nil).
func NewChecker(httpClient *http.Client, logger *slog.Logger) *Checker {
	if httpClient == nil {
		httpClient = NewHTTPClient(nil)
	}
	client := gh.NewClient(httpClient)
	client.UserAgent = UserAgent
	return &Checker{client: client, logger: logger}
}

// WithBaseURL points the checker at another API root. It is used by tests
// and for API-compatible enterprise hosts.
func (c *Checker) WithBaseURL(base string) (*Checker, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	c.client.BaseURL = u
	return c, nil
}

// Check looks up the repository named by a canonical URL. Transport errors
// and unexpected statuses are reported as Unknown and never returned.
func (c *Checker) Check(ctx context.Context, canonical string) Status {
	if !repourl.IsCanonicalHost(canonical) {
		c.logger.Debug("skipping existence check for foreign host", "url", canonical)
		return Unknown
	}
	owner, name, err := repourl.OwnerRepo(canonical)
	if err != nil {
		c.logger.Debug("skipping existence check", "url", canonical, "error", err)
		return Unknown
	}

	req, err := c.client.NewRequest(http.MethodGet, fmt.Sprintf("repos/%s/%s", url.PathEscape(owner), url.PathEscape(name)), nil)
	if err != nil {
		c.logger.Warn("cannot build metadata request", "error", err)
		return Unknown
	}
	req.Header.Set("Accept", "application/json")

	repo := new(gh.Repository)
	resp, err := c.client.Do(ctx, req, repo)
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusOK:
			if err == nil {
				c.logger.Info("repository found", "name", repo.GetFullName(), "id", repo.GetID())
				return Exists
			}
		case http.StatusNotFound:
			return Missing
		}
	}
	if err != nil {
		c.logger.Warn("repository check inconclusive", "repo", owner+"/"+name, "error", err)
		return Unknown
	}
	c.logger.Warn("repository check inconclusive", "repo", owner+"/"+name, "status", resp.StatusCode)
	return Unknown
}
