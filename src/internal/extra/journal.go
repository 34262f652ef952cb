// FILE: loglayer/src/internal/extra/journal.go
package extra

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"loglayer/src/internal/core"
	"loglayer/src/internal/filter"
	"loglayer/src/internal/layer"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/lixenwraith/log"
)

// Replaced in tests
var (
	journalEnabled = journal.Enabled
	journalSend    = journal.Send
)

// JournalHandler is a slog.Handler that sends records to the systemd journal
type JournalHandler struct {
	identifier string
	preset     map[string]string // fields rendered by WithAttrs
	groups     []string
}

// NewJournalHandler creates a journal handler tagging records with identifier
func NewJournalHandler(identifier string) *JournalHandler {
	return &JournalHandler{identifier: identifier}
}

func (h *JournalHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle sends the record with its attributes as journal fields
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	priority := mapLevelToPriority(r.Level)

	fields := map[string]string{
		"SYSLOG_IDENTIFIER": h.identifier,
		"LEVEL":             filter.LevelName(r.Level),
	}

	for k, v := range h.preset {
		fields[k] = v
	}
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.groups)
		return true
	})

	if err := journalSend(r.Message, priority, fields); err != nil {
		return fmt.Errorf("journal send failed: %w", err)
	}
	return nil
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	preset := make(map[string]string, len(h.preset)+len(attrs))
	for k, v := range h.preset {
		preset[k] = v
	}
	for _, attr := range attrs {
		addAttrToFields(preset, attr, h.groups)
	}

	return &JournalHandler{
		identifier: h.identifier,
		preset:     preset,
		groups:     h.groups,
	}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{
		identifier: h.identifier,
		preset:     h.preset,
		groups:     append(slices.Clip(h.groups), name),
	}
}

// Journal returns a builder for the journal layer. It contributes
// nothing when journald is not reachable.
func Journal(identifier string, spec filter.Spec, logger *log.Logger) layer.Builder {
	return func() (layer.Layer, error) {
		if !journalEnabled() {
			logger.Info("msg", "Systemd journal not available, journal layer skipped",
				"component", "journal_layer")
			return nil, nil
		}

		logger.Debug("msg", "Journal layer enabled",
			"component", "journal_layer",
			"identifier", identifier,
			"filter", spec.String())
		return layer.New(core.LayerJournal, NewJournalHandler(identifier), spec), nil
	}
}

func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields flattens attr into upper-case journal field names
func addAttrToFields(fields map[string]string, attr slog.Attr, groups []string) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, "_") + "_" + key
	}
	key = journalFieldName(key)

	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clone(groups), attr.Key)
		for _, a := range value.Group() {
			addAttrToFields(fields, a, nested)
		}
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(value.Uint64(), 10)
	case slog.KindTime:
		fields[key] = value.Time().Format("2006-01-02T15:04:05.000Z07:00")
	default:
		fields[key] = value.String()
	}
}

// journalFieldName maps a key onto the journal field alphabet: A-Z, 0-9 and '_'
func journalFieldName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_")
}
