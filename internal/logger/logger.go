// Package logger provides a process-wide structured logger for the control plane.
//
// It wraps github.com/stacklok/toolhive-core/logging the same way the rest of
// the fleet's tooling does: a single atomically-swappable *slog.Logger, with
// level-specific helpers so call sites never touch slog directly.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/stacklok/toolhive-core/logging"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

// EnvReader abstracts environment lookups so InitializeWithEnv is testable
// without mutating the real process environment.
type EnvReader interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// Get returns the current process-wide logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// Initialize (re)configures the process-wide logger from the real environment.
func Initialize() {
	InitializeWithEnv(osEnv{})
}

// InitializeWithEnv (re)configures the process-wide logger using the given
// environment reader, primarily so tests can inject a fake one.
func InitializeWithEnv(e EnvReader) {
	level := slog.LevelInfo
	if unstructuredLogsWithEnv(e) {
		singleton.Store(logging.New(logging.WithLevel(level), logging.WithFormat(logging.FormatText)))
		return
	}
	singleton.Store(logging.New(logging.WithLevel(level)))
}

// unstructuredLogsWithEnv reports whether UNSTRUCTURED_LOGS is enabled.
// Defaults to true (human-readable) when unset or unparsable.
func unstructuredLogsWithEnv(e EnvReader) bool {
	v := e.Getenv("UNSTRUCTURED_LOGS")
	switch v {
	case "false", "0":
		return false
	case "", "true", "1":
		return true
	default:
		return true
	}
}

// NewLogr adapts the singleton logger to a logr.Logger for libraries (e.g.
// the Store migration runner) that expect one.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

func Debug(msg string)                 { Get().Debug(msg) }
func Debugf(format string, args ...any) { Get().Debug(sprintf(format, args...)) }
func Debugw(msg string, kv ...any)      { Get().Debug(msg, kv...) }
func Info(msg string)                  { Get().Info(msg) }
func Infof(format string, args ...any) { Get().Info(sprintf(format, args...)) }
func Infow(msg string, kv ...any)      { Get().Info(msg, kv...) }
func Warn(msg string)                  { Get().Warn(msg) }
func Warnf(format string, args ...any) { Get().Warn(sprintf(format, args...)) }
func Warnw(msg string, kv ...any)      { Get().Warn(msg, kv...) }
func Error(msg string)                  { Get().Error(msg) }
func Errorf(format string, args ...any) { Get().Error(sprintf(format, args...)) }
func Errorw(msg string, kv ...any)      { Get().Error(msg, kv...) }

func Fatal(msg string)                  { Get().Error(msg); os.Exit(1) }
func Fatalf(format string, args ...any) { Get().Error(sprintf(format, args...)); os.Exit(1) }
func Fatalw(msg string, kv ...any)      { Get().Error(msg, kv...); os.Exit(1) }

func DPanic(msg string) { Get().Error(msg); panic(msg) }
func DPanicf(format string, args ...any) {
	m := sprintf(format, args...)
	Get().Error(m)
	panic(m)
}
func DPanicw(msg string, kv ...any) { Get().Error(msg, kv...); panic(msg) }

func Panic(msg string) { Get().Error(msg); panic(msg) }
func Panicf(format string, args ...any) {
	m := sprintf(format, args...)
	Get().Error(m)
	panic(m)
}
func Panicw(msg string, kv ...any) { Get().Error(msg, kv...); panic(msg) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
