// FILE: loglayer/src/internal/layer/export_test.go
package layer

import (
	"log/slog"
	"os"
)

// resetInstalled forgets the installed pipeline so each test can install its own
func resetInstalled() {
	installMu.Lock()
	installed = nil
	installMu.Unlock()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
