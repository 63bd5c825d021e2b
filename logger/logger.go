package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level defines the log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

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

var (
	currentLevel = InfoLevel
	mu           sync.RWMutex
	std          = log.New(os.Stderr, "", log.LstdFlags)
)

// ParseLevel 解析日志级别字符串，未知值返回 InfoLevel 和 false
func ParseLevel(levelStr string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DebugLevel, true
	case "info", "":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "fatal":
		return FatalLevel, true
	default:
		return InfoLevel, false
	}
}

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	level, _ := ParseLevel(levelStr)

	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// GetLevel returns the global log level
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

// Logger is a component logger. Every line is tagged with "[component]".
type Logger struct {
	prefix string
}

// With returns a logger that tags its lines with the given component name.
func With(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if shouldLog(DebugLevel) {
		output(DebugLevel, l.prefix+fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if shouldLog(InfoLevel) {
		output(InfoLevel, l.prefix+fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if shouldLog(WarnLevel) {
		output(WarnLevel, l.prefix+fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if shouldLog(ErrorLevel) {
		output(ErrorLevel, l.prefix+fmt.Sprintf(format, v...))
	}
}

// Debug logs a message at DebugLevel
func Debug(v ...interface{}) {
	if shouldLog(DebugLevel) {
		output(DebugLevel, fmt.Sprint(v...))
	}
}

// Debugf logs a formatted message at DebugLevel
func Debugf(format string, v ...interface{}) {
	if shouldLog(DebugLevel) {
		output(DebugLevel, fmt.Sprintf(format, v...))
	}
}

// Info logs a message at InfoLevel
func Info(v ...interface{}) {
	if shouldLog(InfoLevel) {
		output(InfoLevel, fmt.Sprint(v...))
	}
}

// Infof logs a formatted message at InfoLevel
func Infof(format string, v ...interface{}) {
	if shouldLog(InfoLevel) {
		output(InfoLevel, fmt.Sprintf(format, v...))
	}
}

// Warn logs a message at WarnLevel
func Warn(v ...interface{}) {
	if shouldLog(WarnLevel) {
		output(WarnLevel, fmt.Sprint(v...))
	}
}

// Warnf logs a formatted message at WarnLevel
func Warnf(format string, v ...interface{}) {
	if shouldLog(WarnLevel) {
		output(WarnLevel, fmt.Sprintf(format, v...))
	}
}

// Error logs a message at ErrorLevel
func Error(v ...interface{}) {
	if shouldLog(ErrorLevel) {
		output(ErrorLevel, fmt.Sprint(v...))
	}
}

// Errorf logs a formatted message at ErrorLevel
func Errorf(format string, v ...interface{}) {
	if shouldLog(ErrorLevel) {
		output(ErrorLevel, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted message at FatalLevel and exits
func Fatalf(format string, v ...interface{}) {
	output(FatalLevel, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func shouldLog(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= currentLevel
}

func output(level Level, msg string) {
	// calldepth 3 points at the caller of Infof/Logger.Infof
	std.Output(3, fmt.Sprintf("[%s] %s", level, msg))
}
