package safety

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient creates an HTTP client with bounded dial and header timeouts.
// The client never routes through HTTP_PROXY/HTTPS_PROXY so that mirror and
// proxy probes measure the endpoint itself.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: newTransport()}
}

// NewProxiedHTTPClient is NewHTTPClient for traffic that should reach
// GitHub the way git does: through proxy when it is non-nil, otherwise
// through the proxy named by the environment, if any. A zero timeout
// leaves the client unbounded so long downloads rely on their context.
func NewProxiedHTTPClient(timeout time.Duration, proxy *url.URL) *http.Client {
	return &http.Client{Timeout: timeout, Transport: ProxyTransport(proxy)}
}

// ProxyTransport returns the hardened transport routed through proxy, or
// through http.ProxyFromEnvironment when proxy is nil.
func ProxyTransport(proxy *url.URL) *http.Transport {
	t := newTransport()
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	} else {
		t.Proxy = http.ProxyFromEnvironment
	}
	return t
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}
}

// ValidateHTTPURL ensures the URL parses as HTTP(S) and contains no userinfo.
func ValidateHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL host is required")
	}
	if u.User != nil {
		return nil, fmt.Errorf("URL userinfo is not allowed")
	}
	return u, nil
}

// ValidateProxyURL accepts http, https and socks5 proxy URLs. Unlike
// ValidateHTTPURL, credentials in the userinfo part are allowed.
func ValidateProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy host is required")
	}
	return u, nil
}

// Redact returns u as a string with any password replaced, for logging.
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
