// Package log is the process-wide logrus logger shared by the mini app runner and the backend.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	return &logrus.Logger{
		Out:   out,
		Level: logrus.InfoLevel,
		Hooks: make(logrus.LevelHooks),
		Formatter: &easy.Formatter{
			TimestampFormat: "01-02 15:04:05.000",
			LogFormat:       "[%lvl%]   [%time%]   -   %msg%\n",
		},
	}
}

// SetLevel accepts debug, info, warn or error. Unknown names fall back to info.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.Debugf("log level set to %s", lvl)
}

// SetOutput redirects the shared logger, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Logger exposes the shared logger for components that take a *logrus.Logger.
func Logger() *logrus.Logger {
	return logger
}

// WithFields scopes an entry to a component.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	logger.Fatalf(format, args...)
}
