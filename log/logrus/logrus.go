// Package logrus adapts a logrus entry to kvcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/kvcache"
)

var _ kvcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=kvcache. A nil l uses the standard
// logger.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: l.WithField("component", "kvcache")}
}

func (l Logger) Debug(msg string, f kvcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f kvcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f kvcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f kvcache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f kvcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	return l.E.WithFields(logrus.Fields(f))
}
