// Package logger builds charmbracelet/log loggers for the binaries.
// Every logger writes to stderr: stdout carries the IPC stream.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates a prefixed logger that follows the global log level.
func New(prefix string) *log.Logger {
	return NewWithWriter(os.Stderr, prefix, log.GetLevel())
}

// NewWithWriter creates a prefixed text logger on w.
func NewWithWriter(w io.Writer, prefix string, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    level == log.DebugLevel,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Formatter:       log.TextFormatter,
	})
}

// Setup points the package-level charm logger at stderr with the given level.
func Setup(debug bool) {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.SetDefault(NewWithWriter(os.Stderr, "", level))
}
