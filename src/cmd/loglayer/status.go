// FILE: loglayer/src/cmd/loglayer/status.go
package main

import (
	"context"
	"log/slog"
	"time"

	"loglayer/src/internal/layer"
	"loglayer/src/internal/sink"
)

// statusModule is the filter target of status records
const statusModule = "loglayer::status"

// statusSource is what the reporter reads on every tick
type statusSource interface {
	Stats() []layer.Stats
}

// statusReporter periodically writes pipeline statistics as records through
// the installed pipeline, so they obey the same filters as application logs
func statusReporter(ctx context.Context, layers statusSource, sinks []sink.StatsSource, out *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("msg", "Panic in status reporter",
							"component", "status_reporter",
							"panic", r)
					}
				}()
				reportStatus(ctx, layers, sinks, out)
			}()
		}
	}
}

func reportStatus(ctx context.Context, layers statusSource, sinks []sink.StatsSource, out *slog.Logger) {
	rec := out.With("module", statusModule)

	for _, st := range layers.Stats() {
		rec.LogAttrs(ctx, slog.LevelDebug, "layer status",
			slog.String("layer", st.Name),
			slog.String("filter", st.Filter),
			slog.Uint64("accepted", st.Accepted),
			slog.Uint64("rejected", st.Rejected),
			slog.Bool("gone", st.Gone))
	}

	for _, src := range sinks {
		st := src.GetStats()
		level := slog.LevelDebug
		if st.Dropped > 0 || st.WriteErrors > 0 {
			level = slog.LevelWarn
		}
		rec.LogAttrs(ctx, level, "sink status",
			slog.String("sink", st.Type),
			slog.Uint64("written", st.Written),
			slog.Uint64("dropped", st.Dropped),
			slog.Uint64("write_errors", st.WriteErrors),
			slog.Uint64("rotations", st.Rotations),
			slog.Int("queued", st.QueueLength))
	}
}
