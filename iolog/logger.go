package iolog

import "github.com/sirupsen/logrus"

// Logger is the sink the framework writes diagnostics to. The default
// discards everything; call SetLogger to install a real one.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var logger Logger = &nopLogger{}

func SetLogger(l Logger) {
	logger = l
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// NewLogger returns a logrus-backed Logger at the default level.
func NewLogger() Logger {
	return &logrusLogger{logrus.New()}
}

// NewDebugLogger returns a logrus-backed Logger with debug output enabled.
func NewDebugLogger() Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return &logrusLogger{l}
}

type logrusLogger struct {
	l *logrus.Logger
}

func (w *logrusLogger) Debugf(format string, args ...interface{}) {
	w.l.Debugf(format, args...)
}

func (w *logrusLogger) Infof(format string, args ...interface{}) {
	w.l.Infof(format, args...)
}

func (w *logrusLogger) Warnf(format string, args ...interface{}) {
	w.l.Warnf(format, args...)
}

func (w *logrusLogger) Errorf(format string, args ...interface{}) {
	w.l.Errorf(format, args...)
}

type nopLogger struct{}

func (*nopLogger) Debugf(format string, args ...interface{}) {}

func (*nopLogger) Infof(format string, args ...interface{}) {}

func (*nopLogger) Warnf(format string, args ...interface{}) {}

func (*nopLogger) Errorf(format string, args ...interface{}) {}
