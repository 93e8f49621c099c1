package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Level represents the logging level
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the interface for logging operations
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)
	SetLevel(level Level)
	// With returns a logger that prefixes every message with the component name.
	// The returned logger shares level and output with its parent.
	With(component string) Logger
}

// LogConfig holds configuration for the logger
type LogConfig struct {
	// Output destination: "file" or "stderr"
	Output string `yaml:"output"`
	// Log level: "debug", "info", "warn", "error", "fatal"
	Level string `yaml:"level"`
	// FilePath for file output (only used when Output is "file")
	FilePath string `yaml:"file_path"`
}

// standardLogger implements the Logger interface using Go's standard log package
type standardLogger struct {
	logger    *log.Logger
	level     *atomic.Int32
	component string
}

// NewLogger creates a new logger based on the provided configuration.
// Empty fields fall back to LOG_OUTPUT, LOG_LEVEL and LOG_FILE_PATH.
// stdout is never used because the MCP stdio transport owns it.
func NewLogger(config LogConfig) (Logger, error) {
	writer, err := openOutput(config)
	if err != nil {
		return nil, err
	}

	levelStr := config.Level
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = "info"
	}

	return newStandardLogger(writer, ParseLevel(levelStr), log.LstdFlags), nil
}

// New wraps an arbitrary writer, mostly useful in tests that inspect output
func New(w io.Writer, level Level) Logger {
	return newStandardLogger(w, level, 0)
}

// NewNoOpLogger creates a logger that discards all output (useful for tests)
func NewNoOpLogger() Logger {
	return newStandardLogger(io.Discard, FatalLevel, 0)
}

func newStandardLogger(w io.Writer, level Level, flags int) *standardLogger {
	lvl := &atomic.Int32{}
	lvl.Store(int32(level))
	return &standardLogger{
		logger: log.New(w, "", flags),
		level:  lvl,
	}
}

func openOutput(config LogConfig) (io.Writer, error) {
	output := config.Output
	if output == "" {
		output = os.Getenv("LOG_OUTPUT")
	}
	if output == "" {
		output = detectEnvironment()
	}

	switch output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		filePath := config.FilePath
		if filePath == "" {
			filePath = os.Getenv("LOG_FILE_PATH")
		}
		if filePath == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			filePath = filepath.Join(homeDir, ".study-rag", "study-rag.log")
		}
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, nil
	default:
		return nil, fmt.Errorf("invalid log output: %s (expected 'file' or 'stderr')", output)
	}
}

// detectEnvironment determines the appropriate output based on the environment
func detectEnvironment() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "stderr"
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "stderr"
	}
	return "file"
}

// ParseLevel converts a string to a Level, defaulting to InfoLevel
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func (l *standardLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *standardLogger) With(component string) Logger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &standardLogger{
		logger:    l.logger,
		level:     l.level,
		component: name,
	}
}

func (l *standardLogger) Debug(format string, v ...any) {
	l.log(DebugLevel, format, v...)
}

func (l *standardLogger) Info(format string, v ...any) {
	l.log(InfoLevel, format, v...)
}

func (l *standardLogger) Warn(format string, v ...any) {
	l.log(WarnLevel, format, v...)
}

func (l *standardLogger) Error(format string, v ...any) {
	l.log(ErrorLevel, format, v...)
}

// Fatal logs a fatal message and exits
func (l *standardLogger) Fatal(format string, v ...any) {
	l.log(FatalLevel, format, v...)
	os.Exit(1)
}

func (l *standardLogger) log(level Level, format string, v ...any) {
	if level < Level(l.level.Load()) {
		return
	}
	message := fmt.Sprintf(format, v...)
	if l.component != "" {
		l.logger.Printf("[%s] %s: %s", level.String(), l.component, message)
		return
	}
	l.logger.Printf("[%s] %s", level.String(), message)
}
