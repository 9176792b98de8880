package util

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Logger is nil until InitLogger runs; the helpers below are no-ops before
// that so library code can log unconditionally.
var Logger *log.Logger

var prefixStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(lipgloss.Color("#6366F1")).
	Bold(true).
	Padding(0, 1)

// InitLogger initializes the charmbracelet logger on stderr
func InitLogger() {
	InitLoggerTo(os.Stderr)
}

// InitLoggerTo initializes the logger on w. Timestamps are always on and
// caller positions only show up in debug mode. Colours are dropped when w
// is not a terminal.
func InitLoggerTo(w io.Writer) {
	Logger = log.NewWithOptions(w, log.Options{
		ReportCaller:    IsDebug,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          prefixStyle.Render("LonelyMovie"),
		Level:           log.InfoLevel,
	})
	if f, ok := w.(*os.File); ok {
		Logger.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
	} else {
		Logger.SetColorProfile(termenv.Ascii)
	}
	if IsDebug {
		Logger.SetLevel(log.DebugLevel)
	}
}

func Debug(msg string, keyvals ...any) {
	if IsDebug && Logger != nil {
		Logger.Helper()
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Helper()
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Helper()
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Helper()
		Logger.Error(msg, keyvals...)
	}
}
