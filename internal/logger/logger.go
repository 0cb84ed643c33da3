package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	files      []*os.File
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger writing into logDir, creating the directory when needed.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{logDir: logDir}
	if err := l.setupLoggers(os.Stdout, os.Stderr); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// NewDiscard returns a Logger that drops everything. Used by tests and tools.
func NewDiscard() *Logger {
	return &Logger{
		infoLog:    log.New(io.Discard, "", 0),
		warningLog: log.New(io.Discard, "", 0),
		errorLog:   log.New(io.Discard, "", 0),
	}
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers(stdout, stderr io.Writer) error {
	infoFile, err := l.openLogFile(InfoFile)
	if err != nil {
		return err
	}
	warningFile, err := l.openLogFile(WarningFile)
	if err != nil {
		return err
	}
	errorFile, err := l.openLogFile(ErrorFile)
	if err != nil {
		return err
	}

	l.infoLog = log.New(io.MultiWriter(stdout, infoFile), "ℹ️  INFO    ", log.Ldate|log.Ltime|log.Lshortfile)
	l.warningLog = log.New(io.MultiWriter(stdout, warningFile), "⚠️  WARNING ", log.Ldate|log.Ltime|log.Lshortfile)
	l.errorLog = log.New(io.MultiWriter(stderr, errorFile), "❌ ERROR   ", log.Ldate|log.Ltime|log.Lshortfile)
	return nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string) (*os.File, error) {
	file, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string {
	return l.logDir
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Output(2, fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}

// CleanLogs truncates one of the level log files.
func (l *Logger) CleanLogs(fileName string) error {
	switch fileName {
	case InfoFile, WarningFile, ErrorFile:
	default:
		return fmt.Errorf("unknown log file %q", fileName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Truncate(filepath.Join(l.logDir, fileName), 0); err != nil {
		return fmt.Errorf("failed to clear %s: %w", fileName, err)
	}
	return nil
}

// Close closes the underlying log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
