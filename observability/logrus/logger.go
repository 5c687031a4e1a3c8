// Package logrus adapts a logrus logger to core.Logger.
package logrus

import (
	"io"
	"os"

	lr "github.com/sirupsen/logrus"

	"github.com/Swind/go-cycle-dispatcher/core"
)

// Logger forwards core.Logger calls to a logrus entry. Fields become logrus
// fields.
type Logger struct {
	entry *lr.Entry
}

var _ core.Logger = (*Logger)(nil)

// New wraps logger. A nil logger uses logrus.StandardLogger().
func New(logger *lr.Logger) *Logger {
	if logger == nil {
		logger = lr.StandardLogger()
	}
	return &Logger{entry: lr.NewEntry(logger)}
}

// NewWithOptions builds a logrus logger writing to out (os.Stderr when nil)
// at level, formatted as "json" or text.
func NewWithOptions(out io.Writer, level core.LogLevel, format string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	l := lr.New()
	l.SetOutput(out)
	l.SetLevel(toLogrusLevel(level))
	if format == "json" {
		l.SetFormatter(&lr.JSONFormatter{})
	} else {
		l.SetFormatter(&lr.TextFormatter{FullTimestamp: true})
	}
	return New(l)
}

// With returns a logger that adds fields to every message.
func (l *Logger) With(fields ...core.Field) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(fields))}
}

// Entry exposes the underlying logrus entry.
func (l *Logger) Entry() *lr.Entry { return l.entry }

func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Debug(msg)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Info(msg)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Warn(msg)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Error(msg)
}

func toFields(fields []core.Field) lr.Fields {
	out := make(lr.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func toLogrusLevel(level core.LogLevel) lr.Level {
	switch level {
	case core.LevelDebug:
		return lr.DebugLevel
	case core.LevelWarn:
		return lr.WarnLevel
	case core.LevelError:
		return lr.ErrorLevel
	default:
		return lr.InfoLevel
	}
}
