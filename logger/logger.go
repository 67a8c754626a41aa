package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	entry *logrus.Logger
	mu    sync.Mutex
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns a singleton logger instance writing to stderr
func GetLogger() *Logger {
	once.Do(func() {
		instance = New(os.Stderr, logrus.InfoLevel)
	})
	return instance
}

// New builds a standalone logger. Tests use it to capture output.
func New(out io.Writer, level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02-01-06:15:04:05",
		DisableColors:   true,
	})
	return &Logger{entry: l}
}

// SetLevel accepts debug, info, warn or error
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.SetLevel(lvl)
	return nil
}

// ParseLevel restricts logrus levels to the ones the server uses
func ParseLevel(level string) (logrus.Level, error) {
	switch level {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	}
	return logrus.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// Level reports the active level name
func (l *Logger) Level() string {
	return l.entry.GetLevel().String()
}

func firstProps(props []map[string]interface{}) map[string]interface{} {
	if len(props) > 0 {
		return props[0]
	}
	return nil
}

// log records the caller skip frames up so entries point at the call site
// rather than at this package.
func (l *Logger) log(skip int, level logrus.Level, msg string, props map[string]interface{}) {
	_, file, line, _ := runtime.Caller(skip)
	e := l.entry.WithField("location", fmt.Sprintf("%s:%d", filepath.Base(file), line))
	if len(props) > 0 {
		e = e.WithFields(logrus.Fields(props))
	}
	if level == logrus.FatalLevel {
		e.Fatal(msg)
		return
	}
	e.Log(level, msg)
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.log(2, logrus.InfoLevel, msg, firstProps(props))
}

func (l *Logger) Warn(msg string, props ...map[string]interface{}) {
	l.log(2, logrus.WarnLevel, msg, firstProps(props))
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.log(2, logrus.ErrorLevel, msg, firstProps(props))
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	l.log(2, logrus.DebugLevel, msg, firstProps(props))
}

// Fatal logs and exits with status 1
func (l *Logger) Fatal(msg string, props ...map[string]interface{}) {
	l.log(2, logrus.FatalLevel, msg, firstProps(props))
}

// EnableDebug enables debug logging
func (l *Logger) EnableDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.SetLevel(logrus.DebugLevel)
}

// WithContext returns a logger that tags every entry with the request ID
// found in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *ContextLogger {
	return &ContextLogger{logger: l, ctx: ctx}
}
