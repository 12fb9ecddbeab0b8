// Package logging builds the *slog.Logger that cmd/pingsweep hands to
// the components that log (ipc.Master, through MasterConfig.Log): a
// colorized github.com/lmittmann/tint
// handler on a terminal, and a plain slog.JSONHandler otherwise, so
// piping pingsweep's output to a file or another process yields
// structured lines instead of ANSI escapes.
//
// Grounded on telemetry/global-monitor/cmd/global-monitor/main.go's
// newLogger, with the terminal/non-terminal branch generalized from the
// teacher's always-tint choice.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// FileDescriptor is the subset of *os.File this package needs to decide
// whether w is a terminal.
type FileDescriptor interface {
	io.Writer
	Fd() uintptr
}

// New builds a logger writing to w. verbose lowers the level to Debug.
func New(w FileDescriptor, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	if term.IsTerminal(int(w.Fd())) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
				}
				return a
			},
		}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
