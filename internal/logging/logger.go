// Package logging provides config-driven categorized logging for modhost.
// Every line goes to stderr; when file logging is enabled the same lines are
// also written to logs/YYYY-MM-DD_HH-MM-SS.log. The backend is zap.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	// Kernel categories
	CategoryBoot   Category = "boot"   // Boot/initialization
	CategoryKernel Category = "kernel" // Tick loop, frame timing, shutdown
	CategoryMemory Category = "memory" // Named memory registry

	// Module host categories
	CategoryModules  Category = "modules"  // Discovery, loading, lifecycle calls
	CategoryResolver Category = "resolver" // Dependency ordering
	CategoryWatcher  Category = "watcher"  // Module directory watcher

	// Built-in service categories
	CategorySignals   Category = "signals"   // Event bus
	CategoryScheduler Category = "scheduler" // Periodic tasks
	CategoryJobs      Category = "jobs"      // Background jobs

	// Modules loaded at runtime log through their context
	CategoryModule Category = "module"
)

// Config mirrors config.LoggingConfig to avoid circular imports
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // text, json
	File       bool            // also write logs/<timestamp>.log
	Dir        string          // directory for log files
	Categories map[string]bool // per-category toggles, missing = enabled
}

// Logger wraps a zap sugared logger bound to one category.
// A Logger with a nil sugar is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	base     *zap.Logger
	config   Config
	logFile  *os.File
	logPath  string
	configMu sync.RWMutex
)

// Initialize builds the zap backend from cfg. It may be called more than
// once; the previous log file is closed.
func Initialize(cfg Config) error {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " "

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	var file *os.File
	var path string
	if cfg.File {
		dir := cfg.Dir
		if dir == "" {
			dir = "logs"
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		path = filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.AddSync(f), level))
	}

	configMu.Lock()
	config = cfg
	prevFile := logFile
	logFile = file
	logPath = path
	configMu.Unlock()

	install(zap.New(zapcore.NewTee(cores...)))

	if prevFile != nil {
		_ = prevFile.Close()
	}

	Boot("logging initialized (level=%s format=%s file=%q)", level, formatName(cfg.Format), path)
	return nil
}

// UseLogger replaces the backend with l. Tests use it with zaptest/observer.
func UseLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	install(l)
}

// SetCategories replaces the per-category toggles.
func SetCategories(categories map[string]bool) {
	configMu.Lock()
	config.Categories = categories
	configMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// FilePath returns the current log file path, or "" when file logging is off.
func FilePath() string {
	configMu.RLock()
	defer configMu.RUnlock()
	return logPath
}

// Sync flushes buffered entries and closes the log file (call at shutdown)
func Sync() {
	configMu.Lock()
	f := logFile
	logFile = nil
	logPath = ""
	configMu.Unlock()

	_ = backend().Sync()
	if f != nil {
		_ = f.Close()
	}
}

func install(l *zap.Logger) {
	configMu.Lock()
	base = l
	configMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// backend returns the zap logger, creating a stderr console logger at info
// level if Initialize was never called.
func backend() *zap.Logger {
	configMu.RLock()
	l := base
	configMu.RUnlock()
	if l != nil {
		return l
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	l = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel))

	configMu.Lock()
	if base == nil {
		base = l
	}
	l = base
	configMu.Unlock()
	return l
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func formatName(s string) string {
	if s == "json" {
		return "json"
	}
	return "text"
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	b := backend()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{
		category: category,
		sugar:    b.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Kernel logs to the kernel category
func Kernel(format string, args ...interface{}) {
	Get(CategoryKernel).Info(format, args...)
}

// KernelDebug logs debug to the kernel category
func KernelDebug(format string, args ...interface{}) {
	Get(CategoryKernel).Debug(format, args...)
}

// MemoryDebug logs debug to the memory category
func MemoryDebug(format string, args ...interface{}) {
	Get(CategoryMemory).Debug(format, args...)
}

// Modules logs to the modules category
func Modules(format string, args ...interface{}) {
	Get(CategoryModules).Info(format, args...)
}

// ModulesDebug logs debug to the modules category
func ModulesDebug(format string, args ...interface{}) {
	Get(CategoryModules).Debug(format, args...)
}

// ModulesError logs an error to the modules category
func ModulesError(format string, args ...interface{}) {
	Get(CategoryModules).Error(format, args...)
}

// ResolverWarn logs a warning to the resolver category
func ResolverWarn(format string, args ...interface{}) {
	Get(CategoryResolver).Warn(format, args...)
}

// ResolverDebug logs debug to the resolver category
func ResolverDebug(format string, args ...interface{}) {
	Get(CategoryResolver).Debug(format, args...)
}

// Watcher logs to the watcher category
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}

// WatcherDebug logs debug to the watcher category
func WatcherDebug(format string, args ...interface{}) {
	Get(CategoryWatcher).Debug(format, args...)
}

// SignalsDebug logs debug to the signals category
func SignalsDebug(format string, args ...interface{}) {
	Get(CategorySignals).Debug(format, args...)
}

// SchedulerDebug logs debug to the scheduler category
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}

// Jobs logs to the jobs category
func Jobs(format string, args ...interface{}) {
	Get(CategoryJobs).Info(format, args...)
}

// JobsDebug logs debug to the jobs category
func JobsDebug(format string, args ...interface{}) {
	Get(CategoryJobs).Debug(format, args...)
}

// JobsError logs an error to the jobs category
func JobsError(format string, args ...interface{}) {
	Get(CategoryJobs).Error(format, args...)
}

// =============================================================================
// PERFORMANCE TIMING
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
