// Package rlog defines the Logger interface every core-adjacent component
// takes as a field, shaped like telegraf.Logger (the teacher's statsd
// plugin takes a "Log telegraf.Logger" field rather than reaching for a
// package-global logger). The concrete implementation here wraps
// github.com/sirupsen/logrus, already a direct dependency of the teacher's
// go.mod.
package rlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every component that logs depends on.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New constructs a Logger backed by logrus, writing to out at the given
// level.
func New(out io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// WithFields returns a Logger that attaches the given structured fields to
// every subsequent line, useful for tagging a component ("component":
// "listener") the way the teacher's Accumulator tags metric origin.
func WithFields(l Logger, fields map[string]interface{}) Logger {
	ll, ok := l.(*logrusLogger)
	if !ok {
		return l
	}
	return &logrusLogger{entry: ll.entry.WithFields(fields)}
}

func (l *logrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
