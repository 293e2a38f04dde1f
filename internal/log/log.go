// Package log re-exports a package-level logrus logger, mirroring
// hockeypuck's "log hockeypuck/logrus" alias: call sites import this
// package as log and call log.Debugf/log.Warningf/etc without ever
// touching a logger instance directly.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.Out = os.Stderr
	std.Formatter = &logrus.TextFormatter{FullTimestamp: true}
}

// SetLevel adjusts verbosity. No config key sets it; the logger starts at
// logrus's default level.
func SetLevel(level logrus.Level) { std.SetLevel(level) }

func Debugf(format string, args ...interface{})   { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})    { std.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { std.Warningf(format, args...) }
func Errorf(format string, args ...interface{})   { std.Errorf(format, args...) }
func Fatalf(format string, args ...interface{})   { std.Fatalf(format, args...) }

func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}

func WithError(err error) *logrus.Entry {
	return std.WithError(err)
}
