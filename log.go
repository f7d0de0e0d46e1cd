package lockstep

import "github.com/sirupsen/logrus"

// Field is a single structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the module-local logging sink abstraction. Per §9's design
// note, nothing in this package reaches for a process-wide logger
// singleton; a Logger is threaded explicitly through NewSession and every
// component that needs to log.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// logrusLogger adapts a *logrus.Logger (or Entry) to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger builds a Logger backed by logrus, the library the teacher
// codebase itself used for package-local logging.
func NewLogrusLogger(base *logrus.Logger) Logger {
	if base == nil {
		base = logrus.New()
	}
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func withFields(entry *logrus.Entry, fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return entry
	}
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return entry.WithFields(data)
}

func (l *logrusLogger) Debug(msg string, fields ...Field) { withFields(l.entry, fields).Debug(msg) }
func (l *logrusLogger) Info(msg string, fields ...Field)  { withFields(l.entry, fields).Info(msg) }
func (l *logrusLogger) Warn(msg string, fields ...Field)  { withFields(l.entry, fields).Warn(msg) }
func (l *logrusLogger) Error(msg string, fields ...Field) { withFields(l.entry, fields).Error(msg) }

// noopLogger discards everything; used when NewSession is given a nil
// Logger so call sites never need a nil check.
type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}
