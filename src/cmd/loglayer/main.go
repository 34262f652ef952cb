// FILE: loglayer/src/cmd/loglayer/main.go
package main

import (
	"os"
	"time"

	"github.com/lixenwraith/log"
)

// logger reports on loglayer itself; application records go through slog
var logger *log.Logger

func main() {
	InitOutputHandler(false)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func shutdownLogger() {
	if logger != nil {
		if err := logger.Shutdown(2 * time.Second); err != nil {
			// Best effort - can't log the shutdown error
			Error("Logger shutdown error: %v\n", err)
		}
	}
}
