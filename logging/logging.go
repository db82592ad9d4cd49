/*
	Thin wrapper around charmbracelet/log giving the rest of cider a
	package-level structured logger.

	The default logger writes to stderr so that command output on
	stdout stays machine-readable.  Tests may redirect it to a buffer.
*/
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
	Prefix:          "cider",
})

// Default returns the shared logger.
func Default() *log.Logger {
	return defaultLogger
}

// Redirect points the shared logger's output at w.  Returns the
// previous writer so callers (tests, mostly) can restore it.
func Redirect(w io.Writer) io.Writer {
	prev := currentOutput
	currentOutput = w
	defaultLogger.SetOutput(w)
	return prev
}

var currentOutput io.Writer = os.Stderr

func Debug(msg interface{}, keyvals ...interface{}) {
	defaultLogger.Debug(msg, keyvals...)
}

func Info(msg interface{}, keyvals ...interface{}) {
	defaultLogger.Info(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	defaultLogger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	defaultLogger.Error(msg, keyvals...)
}
