package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	level      LogLevel
	colorize   bool
	timeFormat string
}

type Config struct {
	Level      LogLevel
	Colorize   bool
	TimeFormat string
	Output     io.Writer
}

// DefaultConfig logs to stderr so stdout stays free for tool output.
func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Colorize:   true,
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stderr,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05"
	}
	return &Logger{
		out:        cfg.Output,
		level:      cfg.Level,
		colorize:   cfg.Colorize,
		timeFormat: cfg.TimeFormat,
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the process-wide logger, honoring the LOG_LEVEL
// environment variable on first use.
func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
		case "DEBUG":
			cfg.Level = DEBUG
		case "INFO":
			cfg.Level = INFO
		case "WARN":
			cfg.Level = WARN
		case "FATAL":
			cfg.Level = FATAL
		}
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	levelStr := fmt.Sprintf("[%s]", level.String())
	if l.colorize {
		switch level {
		case DEBUG:
			levelStr = colorGray + levelStr + colorReset
		case INFO:
			levelStr = colorBlue + levelStr + colorReset
		case WARN:
			levelStr = colorYellow + levelStr + colorReset
		case FATAL:
			levelStr = colorRed + levelStr + colorReset
		}
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	fmt.Fprintf(l.out, "%s %s %s\n", time.Now().Format(l.timeFormat), levelStr, msg)

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.log(FATAL, format, args...) }

// Errorf logs at WARN level; anything worse than a warning is FATAL here.
func (l *Logger) Errorf(format string, args ...any) { l.log(WARN, format, args...) }

// Package-level convenience functions using the default logger.

func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }
func Infof(format string, args ...any)  { GetLogger().Infof(format, args...) }
func Warnf(format string, args ...any)  { GetLogger().Warnf(format, args...) }
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }
func Fatalf(format string, args ...any) { GetLogger().Fatalf(format, args...) }

func SetLevel(level LogLevel) { GetLogger().SetLevel(level) }
func SetOutput(w io.Writer)   { GetLogger().SetOutput(w) }
