package spool

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style log lines to slog. Badger is
// chatty at info level, so info and debug go to Debug.
type badgerLogger struct {
	logger *slog.Logger
}

func newLogger(logger *slog.Logger) *badgerLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &badgerLogger{logger: logger.With("component", "spool")}
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(line(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(line(format, args))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(line(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(line(format, args))
}

func line(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
