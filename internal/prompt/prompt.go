// Package prompt implements the bounded single-keystroke wait used to let a
// user override a failed repository existence check.
package prompt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"
)

// DefaultTimeout is how long Confirm waits for a keystroke.
const DefaultTimeout = 5 * time.Second

// ctrlC arrives as a byte while the terminal is in raw mode.
const ctrlC = 0x03

// Confirmer waits for any keystroke on its input.
type Confirmer struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewConfirmer creates a Confirmer reading from in and writing the prompt to
// out. When in is a terminal it is switched to raw mode while waiting so a
// single key, without Enter, is enough.
func NewConfirmer(in io.Reader, out io.Writer, logger *slog.Logger) *Confirmer {
	return &Confirmer{in: in, out: out, timeout: DefaultTimeout, logger: logger}
}

// WithTimeout overrides the wait duration.
func (c *Confirmer) WithTimeout(d time.Duration) *Confirmer {
	c.timeout = d
	return c
}

// Confirm prints msg and reports whether a key was pressed within the
// timeout. Closed or empty input counts as no key.
func (c *Confirmer) Confirm(ctx context.Context, msg string) bool {
	if c.out != nil {
		fmt.Fprintf(c.out, "%s (press any key within %s to continue)\n", msg, c.timeout)
	}

	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			c.logger.Debug("cannot switch terminal to raw mode", "error", err)
		} else {
			defer func() {
				if err := term.Restore(int(f.Fd()), state); err != nil {
					c.logger.Warn("failed to restore terminal", "error", err)
				}
			}()
		}
	}

	ok := WaitForKey(ctx, c.in, c.timeout)
	c.logger.Debug("override prompt finished", "override", ok)
	return ok
}

// WaitForKey reads a single byte from r and reports whether one arrived
// before timeout or ctx expired. The read runs in its own goroutine; a read
// that never returns is abandoned, not interrupted.
func WaitForKey(ctx context.Context, r io.Reader, timeout time.Duration) bool {
	if r == nil {
		return false
	}

	got := make(chan bool, 1)
	go func() {
		buf := make([]byte, 1)
		n, err := r.Read(buf)
		got <- n == 1 && buf[0] != ctrlC && (err == nil || err == io.EOF)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ok := <-got:
		return ok
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
