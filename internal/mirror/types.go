package mirror

import (
	"net/url"
	"time"
)

// Mirror is an alternate endpoint serving the hosting service's content.
type Mirror struct {
	ID      string `json:"id" yaml:"id"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// Host returns the host part of the mirror's base URL, or "" if the base
// URL does not parse.
func (m Mirror) Host() string {
	u, err := url.Parse(m.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ProbeURL is the URL contacted to measure the mirror's latency: the root of
// its host, so that proxy-style mirrors are not asked to fetch upstream.
func (m Mirror) ProbeURL() string {
	u, err := url.Parse(m.BaseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// LatencySample is the outcome of probing one mirror.
type LatencySample struct {
	MirrorID string
	Latency  time.Duration
	Err      error
}

// Reachable reports whether the sample carries a usable latency.
func (s LatencySample) Reachable() bool {
	return s.Err == nil && s.Latency > 0
}

// Millis returns the latency in fractional milliseconds.
func (s LatencySample) Millis() float64 {
	return float64(s.Latency) / float64(time.Millisecond)
}
