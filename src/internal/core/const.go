// FILE: loglayer/src/internal/core/const.go
package core

import "time"

// Logging setup defaults
const (
	DefaultFilter         = "info"
	DefaultFilePath       = "./loglayer.log"
	DefaultRotation       = "daily"
	DefaultMaxSizeBytes   = 32 * 1024 * 1024 // 32 MiB
	DefaultMaxFilesKept   = 3
	DefaultBufferLines    = 8192
	DefaultRecentCapacity = 1000
)

// Layer names
const (
	LayerConsole = "console"
	LayerFile    = "file"
	LayerJournal = "journal"
	LayerRecent  = "recent"
)

// ModuleKey is the record attribute filter targets match against
const ModuleKey = "module"

const (
	DefaultDropNoticeInterval       = time.Second
	DefaultWriteErrorReportInterval = 10 * time.Second
	DefaultReleaseTimeout           = 5 * time.Second
)

// Admin endpoint defaults
const (
	DefaultAdminHost             = "127.0.0.1"
	DefaultAdminPort             = 9465
	DefaultAdminReloadsPerMinute = 30
	DefaultStatusIntervalSeconds = 30
)
