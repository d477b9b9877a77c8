package download

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeZip builds an in-memory zip with the given files.
func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertNoFiles(t *testing.T, dest string) {
	t.Helper()
	for _, p := range []string{dest, dest + partSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be absent, stat err = %v", p, err)
		}
	}
}

func TestFetchValidArchive(t *testing.T) {
	archive := makeZip(t, map[string]string{
		"proj-main/README.md": strings.Repeat("hello fgit\n", 50),
		"proj-main/main.go":   "package main\n",
	})
	srv := serve(t, archive)
	dest := filepath.Join(t.TempDir(), "proj-main.zip")

	var lastProgress, lastTotal int64
	result, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{
		URL:       srv.URL + "/alice/proj/archive/refs/heads/main.zip",
		DestPath:  dest,
		ChunkSize: 64,
		OnProgress: func(done, total int64) {
			lastProgress, lastTotal = done, total
		},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if result.Path != dest {
		t.Errorf("Path = %s, want %s", result.Path, dest)
	}
	if result.Size != int64(len(archive)) {
		t.Errorf("Size = %d, want %d", result.Size, len(archive))
	}
	if result.Entries != 2 {
		t.Errorf("Entries = %d, want 2", result.Entries)
	}
	sum := sha256.Sum256(archive)
	if result.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("SHA256 = %s", result.SHA256)
	}
	if lastProgress != int64(len(archive)) || lastTotal != int64(len(archive)) {
		t.Errorf("progress = %d/%d, want %d/%d", lastProgress, lastTotal, len(archive), len(archive))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if !bytes.Equal(got, archive) {
		t.Error("downloaded bytes differ from served archive")
	}
	if _, err := os.Stat(dest + partSuffix); !os.IsNotExist(err) {
		t.Error("expected part file to be gone")
	}
}

func TestFetchCreatesParentDirectory(t *testing.T) {
	archive := makeZip(t, map[string]string{"a.txt": strings.Repeat("x", 500)})
	srv := serve(t, archive)
	dest := filepath.Join(t.TempDir(), "nested", "dir", "a.zip")

	if _, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{URL: srv.URL, DestPath: dest}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected %s to exist: %v", dest, err)
	}
}

func TestFetchTooSmall(t *testing.T) {
	srv := serve(t, []byte("tiny"))
	dest := filepath.Join(t.TempDir(), "tiny.zip")

	_, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{URL: srv.URL, DestPath: dest})

	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
	assertNoFiles(t, dest)
}

func TestFetchTooSmallWithoutContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("tiny"))
	}))
	defer srv.Close()
	dest := filepath.Join(t.TempDir(), "tiny.zip")

	_, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{URL: srv.URL, DestPath: dest})

	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
	assertNoFiles(t, dest)
}

func TestFetchCustomMinSize(t *testing.T) {
	archive := makeZip(t, map[string]string{"a.txt": "a"})
	srv := serve(t, archive)
	dest := filepath.Join(t.TempDir(), "a.zip")

	_, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{
		URL:      srv.URL,
		DestPath: dest,
		MinSize:  int64(len(archive)) + 1,
	})

	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
}

func TestFetchCorrupt(t *testing.T) {
	srv := serve(t, []byte(strings.Repeat("<html>not a zip</html>", 20)))
	dest := filepath.Join(t.TempDir(), "bad.zip")

	_, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{URL: srv.URL, DestPath: dest})

	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	assertNoFiles(t, dest)
}

func TestFetchCorruptEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "a.txt", Method: zip.Store})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	_, _ = io.WriteString(w, strings.Repeat("payload ", 40))
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	archive := buf.Bytes()
	// Flip a byte of the stored data so the entry CRC no longer matches.
	idx := bytes.Index(archive, []byte("payload"))
	if idx < 0 {
		t.Fatal("stored payload not found")
	}
	archive[idx] ^= 0xff
	srv := serve(t, archive)
	dest := filepath.Join(t.TempDir(), "bad.zip")

	_, err = NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{URL: srv.URL, DestPath: dest})

	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	assertNoFiles(t, dest)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such branch", http.StatusNotFound)
	}))
	defer srv.Close()
	dest := filepath.Join(t.TempDir(), "x.zip")

	_, err := NewClient(testLogger(), nil).Fetch(context.Background(), FetchOptions{URL: srv.URL, DestPath: dest})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", httpErr.StatusCode)
	}
	if !strings.Contains(httpErr.Body, "no such branch") {
		t.Errorf("Body = %q", httpErr.Body)
	}
	assertNoFiles(t, dest)
}

func TestFetchCancelled(t *testing.T) {
	srv := serve(t, makeZip(t, map[string]string{"a.txt": strings.Repeat("x", 500)}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "x.zip")

	_, err := NewClient(testLogger(), nil).Fetch(ctx, FetchOptions{URL: srv.URL, DestPath: dest})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertNoFiles(t, dest)
}

func TestFetchThroughProxy(t *testing.T) {
	archive := makeZip(t, map[string]string{"a.txt": strings.Repeat("x", 500)})
	var proxied bool
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A forward proxy receives the absolute target URL.
		proxied = r.URL.Host == "archive.example"
		_, _ = w.Write(archive)
	}))
	defer proxySrv.Close()
	proxyURL, _ := url.Parse(proxySrv.URL)
	dest := filepath.Join(t.TempDir(), "a.zip")

	_, err := NewClient(testLogger(), proxyURL).Fetch(context.Background(), FetchOptions{
		URL:      "http://archive.example/a.zip",
		DestPath: dest,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !proxied {
		t.Error("expected request to go through the proxy")
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}
	if got := err.Error(); got != "http error 502: 502 Bad Gateway" {
		t.Errorf("Error() = %q", got)
	}
}

func TestProgressReader(t *testing.T) {
	var calls int
	var last int64
	pr := &progressReader{
		reader: strings.NewReader("0123456789"),
		callback: func(done, total int64) {
			calls++
			last = done
		},
		total: 10,
	}
	buf := make([]byte, 3)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if last != 10 {
		t.Errorf("last progress = %d, want 10", last)
	}
	if calls != 4 {
		t.Errorf("callback calls = %d, want 4", calls)
	}
}
