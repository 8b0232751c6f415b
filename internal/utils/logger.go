package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides leveled logging with verbose mode support
type Logger struct {
	verbose bool
	mu      sync.RWMutex
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{
			verbose: false,
		}
	})
	return globalLogger
}

// SetVerbose enables or disables verbose logging
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// IsVerbose returns whether verbose logging is enabled
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// Debug logs a debug message (only when verbose is enabled)
func (l *Logger) Debug(format string, args ...any) {
	if l.IsVerbose() {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	log.Printf("[WARN] "+format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}

// Debugf is a convenience function for debug logging
func Debugf(format string, args ...any) {
	GetLogger().Debug(format, args...)
}

// Infof is a convenience function for info logging
func Infof(format string, args ...any) {
	GetLogger().Info(format, args...)
}

// Warnf is a convenience function for warning logging
func Warnf(format string, args ...any) {
	GetLogger().Warn(format, args...)
}

// Errorf is a convenience function for error logging
func Errorf(format string, args ...any) {
	GetLogger().Error(format, args...)
}

// SetVerboseMode is a convenience function to set global verbose mode
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
	if verbose {
		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

// FileOutput describes a rotating log file
type FileOutput struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	// Tee also writes to stderr
	Tee bool
}

// SetFileOutput routes the global log output to a rotating file.
// The returned closer restores stderr output and closes the file.
func SetFileOutput(out FileOutput) (io.Closer, error) {
	w, err := NewRotatingWriter(out.Path, out.MaxSizeMB, out.MaxBackups)
	if err != nil {
		return nil, err
	}
	if out.Tee {
		log.SetOutput(io.MultiWriter(os.Stderr, w))
	} else {
		log.SetOutput(w)
	}
	return closerFunc(func() error {
		log.SetOutput(os.Stderr)
		return w.Close()
	}), nil
}

// NewRotatingWriter opens a size-rotated log file, creating its directory
func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*lumberjack.Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false,
	}, nil
}

// BackgroundLogger writes the detached background sync's log to a rotating file
type BackgroundLogger struct {
	*log.Logger
	w *lumberjack.Logger
}

// NewBackgroundLogger opens the background sync log at path
func NewBackgroundLogger(path string) (*BackgroundLogger, error) {
	w, err := NewRotatingWriter(path, 5, 2)
	if err != nil {
		return nil, err
	}
	return &BackgroundLogger{
		Logger: log.New(w, fmt.Sprintf("[bg %d] ", os.Getpid()), log.LstdFlags),
		w:      w,
	}, nil
}

// Path returns the log file path
func (b *BackgroundLogger) Path() string {
	return b.w.Filename
}

// Close closes the log file
func (b *BackgroundLogger) Close() error {
	return b.w.Close()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// LogOperation logs the start and end of an operation
func LogOperation(operation string, fn func() error) error {
	logger := GetLogger()
	logger.Debug("Starting operation: %s", operation)

	err := fn()

	if err != nil {
		logger.Debug("Operation failed: %s - %v", operation, err)
	} else {
		logger.Debug("Operation completed: %s", operation)
	}

	return err
}
