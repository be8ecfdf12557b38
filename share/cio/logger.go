package cio

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a prefixed logger. Components embed one and fork it for each
// child they own, so a connection inside a listener logs as
// "listener: conn#3: ...".
type Logger struct {
	prefix string
	log    *logrus.Logger
}

// NewLogger creates a Logger writing to stderr with the given prefix.
func NewLogger(prefix string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &Logger{prefix: prefix, log: l}
}

// NewLoggerWith creates a Logger on top of an existing logrus instance.
func NewLoggerWith(prefix string, log *logrus.Logger) *Logger {
	return &Logger{prefix: prefix, log: log}
}

// Fork returns a child Logger with an extended prefix, sharing the
// parent's backend and level.
func (l *Logger) Fork(prefix string, args ...interface{}) *Logger {
	p := fmt.Sprintf(prefix, args...)
	if l.prefix != "" {
		p = l.prefix + ": " + p
	}
	return &Logger{prefix: p, log: l.log}
}

// SetDebug toggles debug-level output for this logger and all loggers
// sharing its backend.
func (l *Logger) SetDebug(on bool) {
	if on {
		l.log.SetLevel(logrus.DebugLevel)
	} else {
		l.log.SetLevel(logrus.InfoLevel)
	}
}

func (l *Logger) Infof(f string, args ...interface{}) {
	l.log.Info(l.sprintf(f, args...))
}

func (l *Logger) Debugf(f string, args ...interface{}) {
	l.log.Debug(l.sprintf(f, args...))
}

func (l *Logger) Warnf(f string, args ...interface{}) {
	l.log.Warn(l.sprintf(f, args...))
}

// Errorf logs the formatted message and returns it as an error, so call
// sites can report and propagate in one step.
func (l *Logger) Errorf(f string, args ...interface{}) error {
	err := fmt.Errorf(f, args...)
	l.log.Error(l.sprintf("%s", err))
	return err
}

// Prefix returns the accumulated prefix, mostly for tests.
func (l *Logger) Prefix() string {
	return l.prefix
}

func (l *Logger) sprintf(f string, args ...interface{}) string {
	m := fmt.Sprintf(f, args...)
	if l.prefix == "" {
		return m
	}
	return l.prefix + ": " + m
}
