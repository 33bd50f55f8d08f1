package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract shared across
// packages so nothing needs to import a concrete implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	rootInstance *rootLogger
	rootOnce     sync.Once
)

type rootLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	level  LogLevel
}

func root() *rootLogger {
	rootOnce.Do(func() {
		rootInstance = &rootLogger{level: INFO}
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		path := filepath.Join(home, "morgus-debug.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		rootInstance.file = file
		rootInstance.logger = log.New(file, "", 0)
	})
	return rootInstance
}

// SetLevel sets the minimum level for all component loggers.
func SetLevel(level LogLevel) {
	r := root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
}

func (r *rootLogger) write(level LogLevel, component, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level < r.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, component, msg)
	if r.logger != nil {
		r.logger.Println(line)
	}
	if level >= WARN {
		fmt.Fprintln(os.Stderr, line)
	}
}

type componentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a
// component name.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (c *componentLogger) Debug(format string, args ...any) {
	root().write(DEBUG, c.component, format, args...)
}

func (c *componentLogger) Info(format string, args ...any) {
	root().write(INFO, c.component, format, args...)
}

func (c *componentLogger) Warn(format string, args ...any) {
	root().write(WARN, c.component, format, args...)
}

func (c *componentLogger) Error(format string, args ...any) {
	root().write(ERROR, c.component, format, args...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}
