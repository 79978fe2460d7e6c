package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// TimeLayout is the UTC timestamp format written at the start of every line.
const TimeLayout = "2006-01-02 15:04:05"

// StdLogger implements the ports.Logger interface using the standard log package.
// Every entry goes to the console and, when configured, is appended to a log file
// as "\n<timestamp> LOG|ERR: <message>".
type StdLogger struct {
	mu      sync.Mutex
	console *log.Logger
	file    io.WriteCloser
	level   LogLevel
	now     func() time.Time
}

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// tag is the short marker used in log lines: ERR for errors, LOG for everything else.
func (l LogLevel) tag() string {
	if l >= LevelError {
		return "ERR"
	}
	return "LOG"
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

// NewStdLogger creates a console-only logger writing to os.Stdout.
func NewStdLogger(level LogLevel) *StdLogger {
	return newLogger(level, os.Stdout, nil, time.Now)
}

// NewAppendLogger creates a logger that writes to os.Stdout and appends to the file at path.
// The file is created if missing and held open until Close.
func NewAppendLogger(level LogLevel, path string) (*StdLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", path, err)
	}
	return newLogger(level, os.Stdout, f, time.Now), nil
}

func newLogger(level LogLevel, console io.Writer, file io.WriteCloser, now func() time.Time) *StdLogger {
	return &StdLogger{
		console: log.New(console, "", 0),
		file:    file,
		level:   level,
		now:     now,
	}
}

// Close closes the log file, if any.
func (l *StdLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *StdLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields ...map[string]interface{}) {
	if level < l.level {
		return // Skip logging if the level is below the configured threshold
	}

	var sb strings.Builder
	sb.WriteString(l.now().UTC().Format(TimeLayout))
	sb.WriteString(" ")
	sb.WriteString(level.tag())
	sb.WriteString(": ")
	sb.WriteString(msg)

	if err != nil {
		sb.WriteString(fmt.Sprintf(" | error: %v", err))
	}

	if len(fields) > 0 && len(fields[0]) > 0 {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[0][k]))
		}
	}

	line := sb.String()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.console.Println(line)
	if l.file != nil {
		// Write errors on the log file cannot be reported anywhere but the console.
		if _, werr := io.WriteString(l.file, "\n"+line); werr != nil {
			l.console.Printf("log file write failed: %v", werr)
		}
	}
}

// Debug logs a message at Debug level.
func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelDebug, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *StdLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelInfo, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelWarn, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *StdLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelError, msg, err, fields...)
}
