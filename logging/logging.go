package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	logger  = newLogger(os.Stderr)
	entry   = logrus.NewEntry(logger)
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return l
}

// SetupLogger routes log output to stderr and, when logFilePath is set, to that
// file as well. Debug messages are only emitted when debug is true.
func SetupLogger(logFilePath string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	out := io.Writer(os.Stderr)
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	logger.SetOutput(out)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Debugf("--- imagededup log started at %s ---", time.Now().Format(time.RFC3339))

	isSetup = true
	return nil
}

// SetOutput redirects all log output, mostly useful in tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// SetDebug toggles debug level output
func SetDebug(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// WithRun tags every subsequent log line with the given run id
func WithRun(runID string) {
	mu.Lock()
	defer mu.Unlock()
	entry = logrus.NewEntry(logger).WithField("run_id", runID)
}

// CloseLogger closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Debugf("--- imagededup log closed at %s ---", time.Now().Format(time.RFC3339))
		logger.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
	isSetup = false
}

func current() *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return entry
}

// WithFields returns a structured entry carrying the run id
func WithFields(fields logrus.Fields) *logrus.Entry {
	return current().WithFields(fields)
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	current().Infof(format, args...)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// LogImageProcessed logs when an image is processed
func LogImageProcessed(path string, success bool, errMsg string) {
	if success {
		current().WithField("path", path).Debug("processed")
		return
	}
	current().WithFields(logrus.Fields{"path": path, "error": errMsg}).Error("failed")
}
