// FILE: loglayer/src/internal/format/color.go
package format

import (
	"bytes"
	"io"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

var levelToken = []byte("level=")

var levelColors = map[string]string{
	"TRACE": colorGray,
	"DEBUG": colorBlue,
	"INFO":  colorGreen,
	"WARN":  colorYellow,
	"ERROR": colorRed,
}

// ansiWriter colours the level value of each rendered text record.
// The text handler writes one whole record per call.
type ansiWriter struct {
	w io.Writer
}

func (aw *ansiWriter) Write(p []byte) (int, error) {
	if _, err := aw.w.Write(colorize(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func colorize(line []byte) []byte {
	start := bytes.Index(line, levelToken)
	if start < 0 {
		return line
	}
	start += len(levelToken)

	end := start
	for end < len(line) && line[end] != ' ' && line[end] != '\n' {
		end++
	}

	color, ok := levelColors[string(line[start:end])]
	if !ok {
		return line
	}

	out := make([]byte, 0, len(line)+len(color)+len(colorReset))
	out = append(out, line[:start]...)
	out = append(out, color...)
	out = append(out, line[start:end]...)
	out = append(out, colorReset...)
	out = append(out, line[end:]...)
	return out
}
