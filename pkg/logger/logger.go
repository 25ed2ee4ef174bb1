package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level       atomic.Int32
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters routes debug/info to out and warn/error to errOut.
func NewWithWriters(out, errOut io.Writer) *Logger {
	l := &Logger{
		infoLogger:  log.New(out, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(errOut, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(errOut, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
		debugLogger: log.New(out, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

// logf and fatalf are called directly by both the methods and the package
// helpers, so depth 3 always lands on their caller.
func (l *Logger) logf(level Level, lg *log.Logger, format string, v ...interface{}) {
	if l.enabled(level) {
		lg.Output(3, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.logf(LevelInfo, l.infoLogger, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.logf(LevelWarn, l.warnLogger, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.logf(LevelError, l.errorLogger, format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.logf(LevelDebug, l.debugLogger, format, v...)
}

func (l *Logger) fatalf(format string, v ...interface{}) {
	l.errorLogger.Output(3, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.fatalf(format, v...)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func SetLevel(level Level) {
	GlobalLogger.SetLevel(level)
}

func Info(format string, v ...interface{}) {
	GlobalLogger.logf(LevelInfo, GlobalLogger.infoLogger, format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.logf(LevelWarn, GlobalLogger.warnLogger, format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.logf(LevelError, GlobalLogger.errorLogger, format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.logf(LevelDebug, GlobalLogger.debugLogger, format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.fatalf(format, v...)
}
