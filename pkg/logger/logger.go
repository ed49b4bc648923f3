// Package logger provides leveled logging for the pipeline and CLI.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelTags = map[Level]string{
	DebugLevel: "[DEBUG]",
	InfoLevel:  "[INFO]",
	WarnLevel:  "[WARN]",
	ErrorLevel: "[ERROR]",
}

// ParseLevel maps a config string to a Level. Unknown strings map to
// InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

var (
	mu       sync.Mutex
	minLevel = InfoLevel
	out      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// Init configures the package logger. Format "text" adds caller file
// and line; anything else keeps timestamps only.
func Init(level string, format string) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = ParseLevel(level)
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	out = log.New(os.Stderr, "", flags)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out.SetOutput(w)
}

func emit(l Level, format string, args ...interface{}) {
	mu.Lock()
	enabled := l >= minLevel
	logger := out
	mu.Unlock()
	if !enabled {
		return
	}
	_ = logger.Output(3, levelTags[l]+" "+fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) { emit(DebugLevel, format, args...) }
func Info(format string, args ...interface{})  { emit(InfoLevel, format, args...) }
func Warn(format string, args ...interface{})  { emit(WarnLevel, format, args...) }
func Error(format string, args ...interface{}) { emit(ErrorLevel, format, args...) }

// Fatal logs at error level and exits.
func Fatal(format string, args ...interface{}) {
	emit(ErrorLevel, format, args...)
	os.Exit(1)
}
