// FILE: loglayer/src/internal/sink/console.go
package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Console targets
const (
	TargetStdout = "stdout"
	TargetStderr = "stderr"
	TargetSplit  = "split" // warn and above to stderr, the rest to stdout
)

// Console colouring modes
const (
	ANSIAuto   = "auto"
	ANSIAlways = "always"
	ANSINever  = "never"
)

// Console routes formatted records to the process standard streams
type Console struct {
	target    string
	low       *countingWriter
	high      *countingWriter
	startTime time.Time
}

// NewConsole creates a console over the process stdout and stderr
func NewConsole(target string) (*Console, error) {
	return NewConsoleWriters(target, os.Stdout, os.Stderr)
}

// NewConsoleWriters creates a console over explicit streams
func NewConsoleWriters(target string, stdout, stderr io.Writer) (*Console, error) {
	c := &Console{startTime: time.Now()}

	switch strings.ToLower(strings.TrimSpace(target)) {
	case "", TargetStdout:
		c.target = TargetStdout
		c.low = &countingWriter{w: stdout}
		c.high = c.low
	case TargetStderr:
		c.target = TargetStderr
		c.low = &countingWriter{w: stderr}
		c.high = c.low
	case TargetSplit:
		c.target = TargetSplit
		c.low = &countingWriter{w: stdout}
		c.high = &countingWriter{w: stderr}
	default:
		return nil, fmt.Errorf("invalid console target: %s", target)
	}
	return c, nil
}

// Target returns the normalized target name
func (c *Console) Target() string {
	return c.target
}

// Low receives records below warn
func (c *Console) Low() io.Writer {
	return c.low
}

// High receives warn and error records
func (c *Console) High() io.Writer {
	return c.high
}

// ColorEnabled resolves an ANSI mode against the console streams.
// Auto enables colour only when every stream in use is a terminal.
func (c *Console) ColorEnabled(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ANSIAlways, "true", "on":
		return true
	case ANSINever, "false", "off":
		return false
	}
	return isTerminal(c.low.w) && isTerminal(c.high.w)
}

func (c *Console) GetStats() Stats {
	written := c.low.written.Load()
	if c.high != c.low {
		written += c.high.written.Load()
	}
	return Stats{
		Type:      "console",
		Written:   written,
		StartTime: c.startTime,
		Details: map[string]any{
			"target": c.target,
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// countingWriter counts records written to a stream
type countingWriter struct {
	w       io.Writer
	written atomic.Uint64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if err == nil {
		cw.written.Add(1)
	}
	return n, err
}
