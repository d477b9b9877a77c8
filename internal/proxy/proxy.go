// Package proxy resolves the effective HTTP proxy for a run and produces the
// environment handed to git subprocesses.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fastgit/fgit/internal/safety"
)

const livenessTimeout = 2 * time.Second

// Checker reports whether a proxy URL answers.
type Checker interface {
	Check(ctx context.Context, u *url.URL) error
}

// HTTPChecker issues a direct GET to the proxy's own URL. Any HTTP response
// counts as alive.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker creates a checker bounded by a 2 second timeout.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{client: safety.NewHTTPClient(livenessTimeout)}
}

func (c *HTTPChecker) Check(ctx context.Context, u *url.URL) error {
	probe := *u
	probe.User = nil
	if probe.Scheme != "http" && probe.Scheme != "https" {
		probe.Scheme = "http"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.String(), nil)
	if err != nil {
		return fmt.Errorf("creating proxy probe: %w", err)
	}
	req.Header.Set("User-Agent", "fgit/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy probe: %w", err)
	}
	return resp.Body.Close()
}

// Controller holds the proxy decision for one invocation. Once the proxy is
// found unreachable it stays unusable for the rest of the run.
type Controller struct {
	candidate string
	checker   Checker
	logger    *slog.Logger
	baseEnv   func() []string

	resolved bool
	live     bool
}

// NewController picks the candidate proxy: the explicit flag wins over the
// persisted proxy.url setting.
func NewController(flagURL string, persisted map[string]string, checker Checker, logger *slog.Logger) *Controller {
	candidate := strings.TrimSpace(flagURL)
	if candidate == "" {
		candidate = strings.TrimSpace(persisted["url"])
	}
	return &Controller{
		candidate: candidate,
		checker:   checker,
		logger:    logger,
		baseEnv:   os.Environ,
	}
}

// Candidate returns the configured proxy URL before any liveness check.
func (c *Controller) Candidate() string {
	return c.candidate
}

// Live reports whether the proxy passed its liveness check. It is false
// until Environment has been called.
func (c *Controller) Live() bool {
	return c.live
}

// URL returns the proxy in use, or "" when running without one.
func (c *Controller) URL() string {
	if !c.live {
		return ""
	}
	return c.candidate
}

// Environment returns the child-process environment: the current process
// environment plus HTTP_PROXY and HTTPS_PROXY when the proxy is usable. The
// liveness check runs at most once per Controller.
func (c *Controller) Environment(ctx context.Context) []string {
	env := c.baseEnv()
	if c.candidate == "" {
		return env
	}

	if !c.resolved {
		c.resolved = true
		c.live = c.probe(ctx)
	}
	if !c.live {
		return env
	}

	c.logger.Debug("using proxy", "proxy", redact(c.candidate))
	return Overlay(env, c.candidate)
}

func (c *Controller) probe(ctx context.Context) bool {
	u, err := safety.ValidateProxyURL(c.candidate)
	if err != nil {
		c.logger.Warn("invalid proxy, proxy mode unavailable", "proxy", c.candidate, "error", err)
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()

	if err := c.checker.Check(probeCtx, u); err != nil {
		c.logger.Warn("cannot reach proxy, proxy mode unavailable", "proxy", safety.Redact(u), "error", err)
		return false
	}
	return true
}

// Teardown logs the end of proxy use. The controller never changes the
// process environment so there is nothing to restore.
func (c *Controller) Teardown() {
	if c.live {
		c.logger.Debug("released proxy settings", "proxy", redact(c.candidate))
	}
}

// Overlay returns a copy of env with HTTP_PROXY and HTTPS_PROXY set to
// proxyURL, replacing existing entries of either case.
func Overlay(env []string, proxyURL string) []string {
	out := make([]string, 0, len(env)+2)
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		switch strings.ToUpper(name) {
		case "HTTP_PROXY", "HTTPS_PROXY":
			continue
		}
		out = append(out, kv)
	}
	return append(out, "HTTP_PROXY="+proxyURL, "HTTPS_PROXY="+proxyURL)
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return safety.Redact(u)
}
