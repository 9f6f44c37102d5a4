// Package logger provides runctl's logging implementations: a
// colorized console logger for interactive use and a file logger that
// mirrors every run under .runctl-state/logs/. Both are thread-safe
// and support level filtering (trace/debug/info/warn/error).
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering.
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func normalizeLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	default:
		return "info"
	}
}

// Logger is the interface every control-core component logs through.
// Implemented by both ConsoleLogger and FileLogger.
type Logger interface {
	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// ConsoleLogger writes level-filtered, optionally-colorized lines to
// an io.Writer (typically os.Stderr, so stdout stays free for
// machine-readable `--output json`/`instance-id` command results).
type ConsoleLogger struct {
	out         io.Writer
	logLevel    string
	enableColor bool
	mu          sync.Mutex

	warnColor  *color.Color
	errColor   *color.Color
	debugColor *color.Color
	traceColor *color.Color
}

// NewConsoleLogger builds a ConsoleLogger writing to w at logLevel.
// Color is enabled automatically when w is a TTY, unless forceColor
// explicitly overrides the detection (nil leaves auto-detection in
// place).
func NewConsoleLogger(w io.Writer, logLevel string, forceColor *bool) *ConsoleLogger {
	enableColor := false
	if f, ok := w.(*os.File); ok {
		enableColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if forceColor != nil {
		enableColor = *forceColor
	}

	l := &ConsoleLogger{
		out:         w,
		logLevel:    normalizeLogLevel(logLevel),
		enableColor: enableColor,
		warnColor:   color.New(color.FgYellow),
		errColor:    color.New(color.FgRed),
		debugColor:  color.New(color.FgCyan),
		traceColor:  color.New(color.FgWhite),
	}
	if enableColor {
		// fatih/color's global NoColor is set when stdout is not a TTY;
		// enable each color explicitly so the decision above wins.
		for _, c := range []*color.Color{l.warnColor, l.errColor, l.debugColor, l.traceColor} {
			c.EnableColor()
		}
	}
	return l
}

func (c *ConsoleLogger) shouldLog(level int) bool {
	return level >= logLevelToInt(c.logLevel)
}

func (c *ConsoleLogger) write(level int, tag string, colored *color.Color, format string, args ...any) {
	if !c.shouldLog(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s\n", tag, msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enableColor && colored != nil {
		colored.Fprint(c.out, line)
		return
	}
	fmt.Fprint(c.out, line)
}

func (c *ConsoleLogger) Tracef(format string, args ...any) {
	c.write(levelTrace, "TRACE", c.traceColor, format, args...)
}
func (c *ConsoleLogger) Debugf(format string, args ...any) {
	c.write(levelDebug, "DEBUG", c.debugColor, format, args...)
}
func (c *ConsoleLogger) Infof(format string, args ...any) { c.write(levelInfo, "INFO", nil, format, args...) }
func (c *ConsoleLogger) Warnf(format string, args ...any) {
	c.write(levelWarn, "WARN", c.warnColor, format, args...)
}
func (c *ConsoleLogger) Errorf(format string, args ...any) {
	c.write(levelError, "ERROR", c.errColor, format, args...)
}

var _ Logger = (*ConsoleLogger)(nil)
