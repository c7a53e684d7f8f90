package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupBaseLogger installs the shared logrus configuration: a text formatter
// with full timestamps, the ring buffer hook backing the -logs command, and
// the level taken from DREAM_LOG_LEVEL when present.
func SetupBaseLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stderr)
	log.AddHook(GlobalBuffer)
	SetLogLevel(os.Getenv("DREAM_LOG_LEVEL"))
}

// SetLogLevel sets the global logrus level from a human-friendly name.
// Unknown or empty names fall back to info.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// ConfigureOutput applies file-based log routing. When logFile is non-empty,
// logs go to a size-rotated file at that path; otherwise output stays on
// stderr. level, when non-empty, overrides the current log level.
func ConfigureOutput(logFile, level string) error {
	if level != "" {
		SetLogLevel(level)
	}
	if strings.TrimSpace(logFile) == "" {
		return nil
	}
	dir := filepath.Dir(logFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	var out io.Writer = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(out)
	return nil
}
