// Package logging implements the structured, leveled, key-value logging
// API surface the teacher's call sites use against its own internal log
// package (log.Info(msg, "k", v, ...), log.Warn, log.Error, log.Crit,
// log.Debug) — that package itself wasn't retrieved into the example pack,
// only its call sites were, so this reconstructs its surface. Output is
// colorized on a TTY using mattn/go-isatty and mattn/go-colorable, both
// already in the teacher's dependency set.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log severity, ordered from most to least verbose.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT"
	default:
		return "?????"
	}
}

// ansiColor returns the ANSI color code for level, matching go-ethereum's
// log15-derived palette (cyan for trace and debug, then
// green/yellow/red/magenta).
func ansiColor(l Level) string {
	switch l {
	case LevelTrace, LevelDebug:
		return "36" // cyan
	case LevelInfo:
		return "32" // green
	case LevelWarn:
		return "33" // yellow
	case LevelError:
		return "31" // red
	case LevelCrit:
		return "35" // magenta
	default:
		return "0"
	}
}

// Logger writes leveled, key-value log lines to an underlying writer,
// colorizing level tags when the writer is a terminal.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	minLevel Level
	ctx      []interface{} // key-value pairs bound via With, prepended to every line
}

var std = New(os.Stderr)

// New returns a Logger writing to w, auto-detecting TTY color support the
// way cmd/utils' console setup does via go-isatty.
func New(w io.Writer) *Logger {
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if colorize {
		w = colorable.NewColorable(w.(*os.File))
	}
	return &Logger{out: w, colorize: colorize, minLevel: LevelTrace}
}

// SetMinLevel suppresses log lines below level.
func (l *Logger) SetMinLevel(level Level) { l.minLevel = level }

// With returns a derived Logger that prepends kv to every subsequent line,
// used throughout this codebase to bind "channelId" per spec.md §7.
func (l *Logger) With(kv ...interface{}) *Logger {
	derived := &Logger{out: l.out, colorize: l.colorize, minLevel: l.minLevel}
	derived.ctx = append(append([]interface{}{}, l.ctx...), kv...)
	return derived
}

func (l *Logger) log(level Level, msg string, kv []interface{}) {
	if level < l.minLevel {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tag := level.String()
	if l.colorize {
		tag = fmt.Sprintf("\x1b[%sm%s\x1b[0m", ansiColor(level), tag)
	}
	fmt.Fprintf(l.out, "%s [%s] %s", time.Now().Format("2006-01-02T15:04:05.000Z07:00"), tag, msg)
	all := append(append([]interface{}{}, l.ctx...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], all[i+1])
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Trace(msg string, kv ...interface{}) { l.log(LevelTrace, msg, kv) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(LevelError, msg, kv) }
func (l *Logger) Crit(msg string, kv ...interface{})  { l.log(LevelCrit, msg, kv) }

// Package-level convenience functions mirroring the teacher's bare
// log.Info(...)-style call sites, forwarding to a process-wide default
// Logger.
func Trace(msg string, kv ...interface{}) { std.Trace(msg, kv...) }
func Debug(msg string, kv ...interface{}) { std.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { std.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { std.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { std.Error(msg, kv...) }
func Crit(msg string, kv ...interface{})  { std.Crit(msg, kv...) }

// With derives a child of the process-wide default Logger.
func With(kv ...interface{}) *Logger { return std.With(kv...) }
