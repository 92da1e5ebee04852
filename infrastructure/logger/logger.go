package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger = log.New()

func init() {
	logger.Out = os.Stdout
	logger.Formatter = &log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	}
	logger.SetLevel(log.InfoLevel)
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}
}

// Configure applies level, format and optional file output once the
// configuration is loaded. Unknown values keep the current setting.
func Configure(level, format, env string) {
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	if format == "text" {
		logger.Formatter = &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}
	}
	if os.Getenv("LOG_TO_FILE") != "true" {
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("cannot resolve working directory, logging to stdout")
		return
	}
	logsDir := filepath.Join(cwd, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		logger.WithError(err).Warnf("failed to create logs directory %s, logging to stdout", logsDir)
		return
	}
	filePath := filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", time.Now().Format("2006-01-02"), env))
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		logger.WithError(err).Warnf("failed to open log file %s, logging to stdout", filePath)
		return
	}
	logger.Out = io.MultiWriter(os.Stdout, f)
}

// SetOutput redirects the logger, mainly for tests.
func SetOutput(w io.Writer) {
	logger.Out = w
}

func GetLogger() *log.Entry {
	function, file, line, _ := runtime.Caller(1)
	functionObject := runtime.FuncForPC(function)
	name := ""
	if functionObject != nil {
		name = functionObject.Name()
	}
	return logger.WithFields(log.Fields{
		"function": name,
		"file":     filepath.Base(file),
		"line":     line,
	})
}
