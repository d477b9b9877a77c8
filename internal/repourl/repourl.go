// Package repourl turns user-supplied repository references into canonical
// HTTPS URLs and routes canonical URLs through registered mirrors.
package repourl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fastgit/fgit/internal/mirror"
)

const (
	schemeSep = "://"
	gitSuffix = ".git"
)

// Normalize converts a shorthand ("owner/name"), SSH-style
// ("user@host:owner/name") or full URL reference into canonical form: a
// scheme-qualified URL without a trailing ".git". Unrecognized shapes are
// returned unchanged. Normalize is idempotent.
func Normalize(raw string) string {
	ref := strings.TrimSpace(raw)

	switch {
	case strings.Contains(ref, schemeSep):
		return trimGitSuffix(ref)
	case strings.Contains(ref, "@"):
		hostPath := ref[strings.Index(ref, "@")+1:]
		return "https://" + trimGitSuffix(strings.Replace(hostPath, ":", "/", 1))
	case strings.Contains(ref, "/"):
		return mirror.CanonicalBaseURL + "/" + trimGitSuffix(strings.TrimPrefix(ref, "/"))
	default:
		return ref
	}
}

func trimGitSuffix(s string) string {
	for strings.HasSuffix(s, gitSuffix) {
		s = strings.TrimSuffix(s, gitSuffix)
	}
	return s
}

// Rewrite routes a canonical URL through the mirror registered as mirrorID
// by replacing the leading canonical base URL with the mirror's base URL.
// URLs that do not start with the canonical base are returned unchanged.
func Rewrite(canonical, mirrorID string) (string, error) {
	if mirrorID == mirror.CanonicalID {
		return canonical, nil
	}
	m, ok := mirror.Lookup(mirrorID)
	if !ok {
		return "", fmt.Errorf("unknown mirror %q", mirrorID)
	}
	return replacePrefix(canonical, mirror.CanonicalBaseURL, m.BaseURL), nil
}

// RewriteRaw is Rewrite for raw file content URLs.
func RewriteRaw(rawURL, mirrorID string) (string, error) {
	if mirrorID == mirror.CanonicalID {
		return rawURL, nil
	}
	m, ok := mirror.LookupRaw(mirrorID)
	if !ok {
		return "", fmt.Errorf("no raw-content mirror %q", mirrorID)
	}
	return replacePrefix(rawURL, mirror.CanonicalRawBaseURL, m.BaseURL), nil
}

// replacePrefix only touches a leading occurrence of prefix, and only at a
// path boundary, so "https://github.com.evil" is left alone.
func replacePrefix(s, prefix, replacement string) string {
	if !strings.HasPrefix(s, prefix) {
		return s
	}
	rest := s[len(prefix):]
	if rest != "" && !strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, "?") {
		return s
	}
	return replacement + rest
}

// Name returns the last path segment of a canonical URL, which is used as
// the default clone directory and archive name.
func Name(canonical string) string {
	trimmed := strings.TrimRight(trimGitSuffix(canonical), "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// OwnerRepo splits a canonical hosting-service URL into owner and name.
func OwnerRepo(canonical string) (owner, name string, err error) {
	u, err := url.Parse(canonical)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", canonical, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("%q does not name an owner and repository", canonical)
	}
	return parts[len(parts)-2], trimGitSuffix(parts[len(parts)-1]), nil
}

// IsCanonicalHost reports whether the URL points at the hosting service.
func IsCanonicalHost(canonical string) bool {
	return replacePrefix(canonical, mirror.CanonicalBaseURL, "") != canonical
}

// ArchiveURL returns the zip archive URL of branch for a (possibly
// mirrored) repository URL.
func ArchiveURL(repoURL, branch string) string {
	return strings.TrimRight(repoURL, "/") + "/archive/refs/heads/" + branch + ".zip"
}
