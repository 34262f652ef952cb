// FILE: loglayer/src/cmd/loglayer/output.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"loglayer/src/internal/admin"
)

// OutputHandler writes user-facing CLI output, silenced in quiet mode
type OutputHandler struct {
	quiet  bool
	mu     sync.RWMutex
	stdout io.Writer
	stderr io.Writer
}

var output *OutputHandler

// InitOutputHandler installs the global output handler
func InitOutputHandler(quiet bool) {
	output = &OutputHandler{
		quiet:  quiet,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// Print writes to stdout unless quiet
func (o *OutputHandler) Print(format string, args ...any) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.quiet {
		fmt.Fprintf(o.stdout, format, args...)
	}
}

// Error writes to stderr unless quiet
func (o *OutputHandler) Error(format string, args ...any) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.quiet {
		fmt.Fprintf(o.stderr, format, args...)
	}
}

// Result writes command results to stdout even in quiet mode
func (o *OutputHandler) Result(format string, args ...any) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fmt.Fprintf(o.stdout, format, args...)
}

// FilterState prints a layer filter as "layer<TAB>filter", or the whole
// admin response when asJSON is set. Like Result it ignores quiet mode,
// so scripts can read it; the ignored-fragment warning does not.
func (o *OutputHandler) FilterState(state admin.FilterState, asJSON bool) error {
	if asJSON {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return json.NewEncoder(o.stdout).Encode(state)
	}

	o.Result("%s\t%s\n", state.Layer, state.Filter)
	if len(state.Ignored) > 0 {
		o.Error("ignored fragments: %s\n", strings.Join(state.Ignored, ", "))
	}
	return nil
}

func (o *OutputHandler) SetQuiet(quiet bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quiet = quiet
}

// setWriters redirects output, used by tests
func (o *OutputHandler) setWriters(stdout, stderr io.Writer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stdout = stdout
	o.stderr = stderr
}

func Print(format string, args ...any) {
	if output != nil {
		output.Print(format, args...)
	}
}

func Error(format string, args ...any) {
	if output != nil {
		output.Error(format, args...)
	}
}

func Result(format string, args ...any) {
	if output != nil {
		output.Result(format, args...)
	}
}
