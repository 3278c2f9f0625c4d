// Package logging wraps logrus the way lxd-export/core/logger/logger.go
// wraps it for the export tool: a mutex-guarded type with leveled helper
// methods, so every package in this repo logs through one shared sink
// instead of reaching for fmt.Println.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thread-safe structured logger.
type Logger struct {
	logger *logrus.Logger
	mu     sync.Mutex
}

// New creates a Logger writing to stderr, or to path if non-empty.
func New(path string, level logrus.Level, verbose bool) (*Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}

		l.SetOutput(file)
	}

	if verbose && level > logrus.DebugLevel {
		level = logrus.DebugLevel
	}

	l.SetLevel(level)

	return &Logger{logger: l}, nil
}

func (l *Logger) log(level logrus.Level, msg string, fields logrus.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.WithFields(fields).Log(level, msg)
}

// Debug logs at debug level with structured fields.
func (l *Logger) Debug(msg string, fields logrus.Fields) { l.log(logrus.DebugLevel, msg, fields) }

// Info logs at info level with structured fields.
func (l *Logger) Info(msg string, fields logrus.Fields) { l.log(logrus.InfoLevel, msg, fields) }

// Warn logs at warn level with structured fields.
func (l *Logger) Warn(msg string, fields logrus.Fields) { l.log(logrus.WarnLevel, msg, fields) }

// Error logs at error level with structured fields.
func (l *Logger) Error(msg string, fields logrus.Fields) { l.log(logrus.ErrorLevel, msg, fields) }
