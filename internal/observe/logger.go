// Package observe provides the satellite's ambient logging and metrics,
// wired at startup, model fallback, per-connection, and shutdown, via
// charmbracelet/log and OpenTelemetry.
package observe

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// DefaultTimestampFormat is the strftime pattern log lines are stamped
// with.
const DefaultTimestampFormat = "%Y-%m-%d %H:%M:%S"

// NewLogger builds the satellite's root logger at the given level
// ("debug", "info", "warn", "error"); unrecognized or empty values fall
// back to info. Timestamps are rendered with lestrrat-go/strftime instead
// of charmbracelet/log's built-in Go time layout.
func NewLogger(level string) *log.Logger {
	out := io.Writer(os.Stderr)
	reportTimestamp := true
	if _, err := strftime.Format(DefaultTimestampFormat, time.Now()); err == nil {
		out = &timestampWriter{w: os.Stderr}
		reportTimestamp = false
	}
	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: reportTimestamp,
		Level:           parseLevel(level),
	})
}

// timestampWriter prefixes every write with a strftime-formatted
// timestamp, standing in for charmbracelet/log's own ReportTimestamp
// formatting.
type timestampWriter struct {
	w io.Writer
}

func (t *timestampWriter) Write(p []byte) (int, error) {
	stamp, err := strftime.Format(DefaultTimestampFormat, time.Now())
	if err != nil {
		stamp = time.Now().Format(time.RFC3339)
	}
	if _, err := io.WriteString(t.w, stamp+" "); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

func parseLevel(value string) log.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
