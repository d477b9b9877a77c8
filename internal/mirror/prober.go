package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fastgit/fgit/internal/safety"
)

const probeTimeout = 2 * time.Second

var errDegenerateLatency = errors.New("degenerate latency")

// Prober measures the latency of every registered mirror concurrently.
type Prober struct {
	client  *http.Client
	logger  *slog.Logger
	mirrors []Mirror
	timeout time.Duration
	report  io.Writer
}

// NewProber creates a Prober over the full registry. When report is non-nil
// a summary table is written to it after each probe round.
func NewProber(logger *slog.Logger, report io.Writer) *Prober {
	return &Prober{
		client:  safety.NewHTTPClient(probeTimeout),
		logger:  logger,
		mirrors: All(),
		timeout: probeTimeout,
		report:  report,
	}
}

// Probe measures all mirrors and returns the reachable ones ordered by
// ascending latency. It returns only after every probe finished or timed out.
func (p *Prober) Probe(ctx context.Context) []string {
	p.logger.Debug("probing mirror latency", "mirrors", len(p.mirrors))

	samples := p.Measure(ctx)
	if p.report != nil {
		writeTable(p.report, samples)
	}

	ranked := Rank(samples)
	p.logger.Debug("mirror probe finished", "reachable", len(ranked), "total", len(samples))
	return ranked
}

// Measure probes every mirror in parallel with one goroutine per mirror.
// The returned samples are in registry order.
func (p *Prober) Measure(ctx context.Context) []LatencySample {
	samples := make([]LatencySample, len(p.mirrors))
	var wg sync.WaitGroup

	for i, m := range p.mirrors {
		wg.Add(1)
		go func(idx int, m Mirror) {
			defer wg.Done()
			samples[idx] = p.measureOne(ctx, m)
		}(i, m)
	}

	wg.Wait()
	return samples
}

func (p *Prober) measureOne(ctx context.Context, m Mirror) LatencySample {
	sample := LatencySample{MirrorID: m.ID}

	target := m.ProbeURL()
	if _, err := safety.ValidateHTTPURL(target); err != nil {
		sample.Err = fmt.Errorf("mirror %s: %w", m.ID, err)
		return sample
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, target, nil)
	if err != nil {
		sample.Err = err
		return sample
	}
	req.Header.Set("User-Agent", "fgit/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Debug("mirror unreachable", "mirror", m.ID, "error", err)
		sample.Err = err
		return sample
	}
	_ = resp.Body.Close()

	if elapsed <= 0 {
		sample.Err = errDegenerateLatency
		return sample
	}
	sample.Latency = elapsed
	return sample
}

// Rank drops unreachable samples and orders the rest by ascending latency.
// Ties keep registry order.
func Rank(samples []LatencySample) []string {
	reachable := make([]LatencySample, 0, len(samples))
	for _, s := range samples {
		if s.Reachable() {
			reachable = append(reachable, s)
		}
	}

	sort.SliceStable(reachable, func(i, j int) bool {
		return reachable[i].Latency < reachable[j].Latency
	})

	ids := make([]string, len(reachable))
	for i, s := range reachable {
		ids[i] = s.MirrorID
	}
	return ids
}

func writeTable(w io.Writer, samples []LatencySample) {
	fmt.Fprintf(w, "%-18s %-12s\n", "Mirror", "Latency")
	fmt.Fprintln(w, strings.Repeat("-", 31))
	for _, s := range samples {
		latency := "timeout"
		if s.Reachable() {
			latency = fmt.Sprintf("%.1fms", s.Millis())
		}
		fmt.Fprintf(w, "%-18s %-12s\n", s.MirrorID, latency)
	}
	fmt.Fprintln(w)
}
