// Package log implements structured logging for the gateway on top of
// logrus, with a pattern formatter and a rotating file sink. One process
// wide logger is initialized at startup; subsystems derive scoped entries
// via WithDevice/WithSSRC so every log line can be correlated to a camera.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls the process-wide logger. Maps to the `log:` key in the
// gateway's YAML configuration.
type Config struct {
	Level   string          `mapstructure:"level"`
	Pattern string          `mapstructure:"pattern"`
	Time    string          `mapstructure:"time"`
	File    FileAppenderOpt `mapstructure:"file"`
}

// Logger is the capability surface the rest of the gateway depends on. It
// is a thin, swappable wrapper over *logrus.Entry so call sites never touch
// logrus directly.
type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	// WithDevice scopes the logger to a GB28181 device id.
	WithDevice(deviceID string) Logger
	// WithSSRC scopes the logger to a negotiated SSRC.
	WithSSRC(ssrc uint32) Logger

	IsDebugEnabled() bool

	// GetEntry exposes the underlying *logrus.Entry for adapters (e.g. the
	// gosip SIP parser) that want to plug into the same sink.
	GetEntry() interface{}
}

var global Logger = newLogrusLogger(Config{Level: "info", Pattern: "%time %level %field %msg\n", Time: "2006-01-02T15:04:05.000Z07:00"})

// Init (re)configures the process-wide logger. Safe to call again on
// config reload.
func Init(cfg Config) error {
	global = newLogrusLogger(cfg)
	return nil
}

// L returns the process-wide logger.
func L() Logger { return global }

type logrusLogger struct {
	entry *logrus.Entry
}

func newLogrusLogger(cfg Config) *logrusLogger {
	l := logrus.New()

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "%time %level %field %msg\n"
	}
	timeFmt := cfg.Time
	if timeFmt == "" {
		timeFmt = "2006-01-02T15:04:05.000Z07:00"
	}
	l.SetFormatter(&patternFormatter{pattern: pattern, timeFmt: timeFmt})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	out := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Filename != "" {
		out.AddFileAppender(cfg.File)
	}
	l.SetOutput(out)

	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusLogger) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *logrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusLogger) WithField(field string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(field, value)}
}
func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}
func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}
func (l *logrusLogger) WithDevice(deviceID string) Logger {
	return &logrusLogger{entry: l.entry.WithField("device", deviceID)}
}
func (l *logrusLogger) WithSSRC(ssrc uint32) Logger {
	return &logrusLogger{entry: l.entry.WithField("ssrc", ssrc)}
}
func (l *logrusLogger) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusLogger) GetEntry() interface{} { return l.entry }
