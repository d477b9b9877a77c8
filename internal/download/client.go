// Package download fetches repository archives and verifies them before they
// are moved into place.
package download

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fastgit/fgit/internal/safety"
)

const (
	// DefaultChunkSize is the copy buffer size when none is configured.
	DefaultChunkSize = 1024
	// DefaultMinSize rejects archives smaller than this many bytes.
	DefaultMinSize = 100

	partSuffix = ".part"
)

var (
	// ErrTooSmall is returned when the advertised or received size is below
	// the configured minimum.
	ErrTooSmall = errors.New("archive too small")
	// ErrCorrupt is returned when the received file is not a readable zip.
	ErrCorrupt = errors.New("archive corrupt")
)

// ProgressFunc is called periodically to report download progress.
// totalBytes is 0 when the server did not send a length.
type ProgressFunc func(bytesDownloaded, totalBytes int64)

// FetchOptions describes one archive download.
type FetchOptions struct {
	URL        string
	DestPath   string
	ChunkSize  int   // 0 uses DefaultChunkSize
	MinSize    int64 // 0 uses DefaultMinSize
	OnProgress ProgressFunc
}

// Result describes a verified archive.
type Result struct {
	Path     string
	Size     int64
	SHA256   string
	Entries  int
	Duration time.Duration
}

// Client downloads and verifies archives. Each call is a single attempt;
// failover between sources is the caller's job.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a download client. A non-nil proxy routes every request
// through it; otherwise the environment's proxy settings apply.
func NewClient(logger *slog.Logger, proxy *url.URL) *Client {
	return &Client{
		// No overall Timeout: body reads can take as long as needed and
		// context cancellation still applies.
		httpClient: safety.NewProxiedHTTPClient(0, proxy),
		logger:     logger,
		userAgent:  "fgit/1.0",
	}
}

// Fetch downloads opts.URL into opts.DestPath. The body is written to a
// sibling ".part" file which is removed on any failure and renamed into
// place only after the size and zip checks pass.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) (*Result, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	start := time.Now()

	if dir := filepath.Dir(opts.DestPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	totalSize := resp.ContentLength
	if totalSize >= 0 && totalSize < opts.MinSize {
		return nil, fmt.Errorf("%w: server reports %d bytes, minimum is %d", ErrTooSmall, totalSize, opts.MinSize)
	}
	if totalSize < 0 {
		totalSize = 0
	}

	partPath := opts.DestPath + partSuffix
	size, err := c.writePart(resp.Body, partPath, opts, totalSize)
	if err != nil {
		_ = os.Remove(partPath)
		return nil, err
	}
	if size < opts.MinSize {
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("%w: received %d bytes, minimum is %d", ErrTooSmall, size, opts.MinSize)
	}

	entries, err := verifyZip(partPath)
	if err != nil {
		_ = os.Remove(partPath)
		return nil, err
	}

	sha256Hex, err := hashFile(partPath)
	if err != nil {
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	if err := os.Rename(partPath, opts.DestPath); err != nil {
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	result := &Result{
		Path:     opts.DestPath,
		Size:     size,
		SHA256:   sha256Hex,
		Entries:  entries,
		Duration: time.Since(start),
	}
	c.logger.Info("archive downloaded",
		"path", result.Path,
		"size", humanize.Bytes(uint64(result.Size)),
		"entries", result.Entries,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

func (c *Client) writePart(body io.Reader, partPath string, opts FetchOptions, totalSize int64) (int64, error) {
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}

	reader := body
	if opts.OnProgress != nil {
		reader = &progressReader{
			reader:   body,
			callback: opts.OnProgress,
			total:    totalSize,
		}
	}

	// Hide ReadFrom/WriteTo so the configured chunk size is honoured.
	n, err := io.CopyBuffer(struct{ io.Writer }{file}, struct{ io.Reader }{reader}, make([]byte, opts.ChunkSize))
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write to file: %w", err)
	}
	return n, nil
}

// verifyZip opens path as a zip archive and reads every entry so the
// per-entry checksums are checked. It returns the entry count.
func verifyZip(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := readEntry(f); err != nil {
			return 0, fmt.Errorf("%w: entry %s: %v", ErrCorrupt, f.Name, err)
		}
	}
	return len(r.File), nil
}

func readEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// hashFile computes the SHA256 hex digest of an entire file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// progressReader wraps a reader and calls a progress callback as data is read.
type progressReader struct {
	reader   io.Reader
	callback ProgressFunc
	current  int64
	total    int64
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		if pr.callback != nil {
			pr.callback(pr.current, pr.total)
		}
	}
	return n, err
}
