package utils

import (
	"log/slog"
	"os"
)

// Logger is the logging surface regmint components receive. It is satisfied
// by DefaultLogger and easy to stub in tests.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const prefix = "[regmint] "

type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	return &DefaultLogger{logger: logger}
}

func (d *DefaultLogger) Debug(msg string, args ...any) {
	d.logger.Debug(prefix+msg, args...)
}

func (d *DefaultLogger) Info(msg string, args ...any) {
	d.logger.Info(prefix+msg, args...)
}

func (d *DefaultLogger) Warn(msg string, args ...any) {
	d.logger.Warn(prefix+msg, args...)
}

func (d *DefaultLogger) Error(msg string, args ...any) {
	d.logger.Error(prefix+msg, args...)
}

// Named returns a logger that appends fixed key-value pairs to every call,
// e.g. the table a backfill run is working on.
func Named(base Logger, args ...any) Logger {
	return &namedLogger{base: base, args: args}
}

type namedLogger struct {
	base Logger
	args []any
}

func (n *namedLogger) Debug(msg string, args ...any) {
	n.base.Debug(msg, append(args, n.args...)...)
}

func (n *namedLogger) Info(msg string, args ...any) {
	n.base.Info(msg, append(args, n.args...)...)
}

func (n *namedLogger) Warn(msg string, args ...any) {
	n.base.Warn(msg, append(args, n.args...)...)
}

func (n *namedLogger) Error(msg string, args ...any) {
	n.base.Error(msg, append(args, n.args...)...)
}
