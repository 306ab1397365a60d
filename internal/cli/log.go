// Package cli implements the gerberstack command-line interface.
//
// Commands:
//   - serve: run the HTTP API
//   - render: aggregate and render local Gerber files or archives to SVG
//   - inspect: list the layers an upload would contribute, without rendering
//   - history: show recent renders from the configured history store
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context so helpers can log without extra plumbing.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Log formats accepted by serve --log-format.
const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// newFormattedLogger creates a logger for the given --log-format value.
// JSON output uses RFC 3339 timestamps for log shippers.
func newFormattedLogger(w io.Writer, level log.Level, format string) (*log.Logger, error) {
	switch format {
	case "", logFormatText:
		return newLogger(w, level), nil
	case logFormatJSON:
		return log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Level:           level,
			Formatter:       log.JSONFormatter,
		}), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (must be one of: text, json)", format)
	}
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time, e.g. "Rendered 6 layers (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default() if none is attached.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
