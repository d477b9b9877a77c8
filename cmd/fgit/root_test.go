package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"

	"github.com/fastgit/fgit/internal/config"
	"github.com/fastgit/fgit/internal/engine"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		flags   rootFlags
		command string
		rest    []string
	}{
		{
			name:    "plain git command",
			args:    []string{"clone", "octocat/Hello-World", "--depth", "1"},
			command: "clone",
			rest:    []string{"octocat/Hello-World", "--depth", "1"},
		},
		{
			name:    "fgit flags anywhere",
			args:    []string{"--verbose", "clone", "--use-proxy", "http://127.0.0.1:7890", "a/b"},
			flags:   rootFlags{verbose: true, useProxy: "http://127.0.0.1:7890"},
			command: "clone",
			rest:    []string{"a/b"},
		},
		{
			name:    "equals form",
			args:    []string{"pull", "--config=/tmp/f.conf", "--log-format=json"},
			flags:   rootFlags{config: "/tmp/f.conf", logFormat: "json"},
			command: "pull",
		},
		{
			name:    "git help flag passes through",
			args:    []string{"clone", "-h"},
			command: "clone",
			rest:    []string{"-h"},
		},
		{
			name:  "fgit help",
			args:  []string{"--help"},
			flags: rootFlags{help: true},
		},
		{
			name:    "branch belongs to git",
			args:    []string{"clone", "a/b", "--branch", "dev"},
			command: "clone",
			rest:    []string{"a/b", "--branch", "dev"},
		},
		{
			name:    "double dash stops extraction",
			args:    []string{"log", "--", "--verbose"},
			command: "log",
			rest:    []string{"--", "--verbose"},
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, command, rest, err := splitArgs(tt.args)
			if err != nil {
				t.Fatalf("splitArgs() error = %v", err)
			}
			if flags != tt.flags {
				t.Errorf("flags = %+v, want %+v", flags, tt.flags)
			}
			if command != tt.command {
				t.Errorf("command = %q, want %q", command, tt.command)
			}
			if len(rest) != 0 || len(tt.rest) != 0 {
				if !reflect.DeepEqual(rest, tt.rest) {
					t.Errorf("rest = %v, want %v", rest, tt.rest)
				}
			}
		})
	}
}

func TestSplitArgsMissingValue(t *testing.T) {
	if _, _, _, err := splitArgs([]string{"clone", "a/b", "--use-proxy"}); err == nil {
		t.Fatal("expected error for --use-proxy without value")
	}
}

func TestResultCode(t *testing.T) {
	tests := []struct {
		res  engine.Result
		want int
	}{
		{engine.Result{Outcome: engine.Succeeded}, 0},
		{engine.Result{Outcome: engine.Skipped}, 0},
		{engine.Result{Outcome: engine.Failed}, 1},
		{engine.Result{Outcome: engine.PassedThrough, ExitCode: 129}, 129},
	}
	for _, tt := range tests {
		if got := resultCode(tt.res); got != tt.want {
			t.Errorf("resultCode(%v) = %d, want %d", tt.res.Outcome, got, tt.want)
		}
	}
}

func TestExecuteMissingArgument(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	xdg.Reload()
	cfg := filepath.Join(t.TempDir(), "fgit.conf")

	code := execute(context.Background(), []string{"download", "--config", cfg})

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fgit.conf")

	if code := execute(context.Background(), []string{"settings", "set", "proxy.url", "http://127.0.0.1:7890", "--config", cfg}); code != 0 {
		t.Fatalf("settings set exit code = %d", code)
	}

	st, err := config.Load(cfg)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if got := st.ProxyURL(); got != "http://127.0.0.1:7890" {
		t.Errorf("proxy url = %q", got)
	}

	out := captureStdout(t, func() {
		if code := execute(context.Background(), []string{"settings", "show", "--config", cfg}); code != 0 {
			t.Errorf("settings show exit code = %d", code)
		}
	})
	if !strings.Contains(out, "proxy:") || !strings.Contains(out, "http://127.0.0.1:7890") {
		t.Errorf("unexpected settings output: %s", out)
	}
}

func TestSettingsSetRejectsBadProxy(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fgit.conf")

	code := execute(context.Background(), []string{"settings", "set", "proxy.url", "ftp://x", "--config", cfg})

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestHistoryEmpty(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	xdg.Reload()
	cfg := filepath.Join(t.TempDir(), "fgit.conf")

	out := captureStdout(t, func() {
		if code := execute(context.Background(), []string{"history", "--config", cfg}); code != 0 {
			t.Errorf("exit code = %d", code)
		}
	})

	if !strings.Contains(out, "No attempts recorded.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestProgressPrinter(t *testing.T) {
	var sb strings.Builder
	p := newProgressPrinter(&sb, time.Hour)

	p(1000, 3000)
	p(2000, 3000) // throttled
	p(3000, 3000)

	out := sb.String()
	if strings.Contains(out, "2.0 kB") {
		t.Errorf("expected intermediate update to be throttled: %q", out)
	}
	if !strings.Contains(out, "3.0 kB / 3.0 kB\n") {
		t.Errorf("expected final line, got %q", out)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	_ = r.Close()
	return string(data)
}

func TestSettingsShowEmpty(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fgit.conf")

	out := captureStdout(t, func() {
		if code := execute(context.Background(), []string{"settings", "show", "--config", cfg}); code != 0 {
			t.Errorf("settings show exit code = %d", code)
		}
	})
	if !strings.Contains(out, "No settings saved.") {
		t.Errorf("unexpected settings output: %s", out)
	}
}

func TestExecuteCancelled(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fgit.conf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var code int
	out := captureStdout(t, func() {
		code = execute(ctx, []string{"mirrors", "--refresh", "--config", cfg})
	})

	if code != 0 {
		t.Errorf("exit code = %d, want 0 for a cancelled run", code)
	}
	if strings.Contains(out, "No reachable mirrors.") {
		t.Errorf("cancelled run reported an empty ranking: %s", out)
	}
	st, err := config.Load(cfg)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if ids, _, ok := st.Ranking(); ok {
		t.Errorf("cancelled probe cached ranking %v", ids)
	}
}
