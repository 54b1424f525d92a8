package cmd

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/GoCodeAlone/modsys"
)

// newLogger creates a timestamped logger writing to w.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// levelFor maps a config log level onto the logger, letting --verbose win.
func levelFor(configured string, verbose bool) log.Level {
	if verbose {
		return log.DebugLevel
	}
	level, err := log.ParseLevel(strings.ToLower(configured))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// systemLogger adapts a charmbracelet logger to modsys.Logger.
type systemLogger struct {
	l *log.Logger
}

var _ modsys.Logger = systemLogger{}

func (s systemLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s systemLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s systemLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s systemLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
