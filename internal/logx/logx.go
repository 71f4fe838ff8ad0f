// Package logx provides pterm-backed leveled logging, scoped per session so
// that a daemon running many concurrent Zork sessions can tell their log
// lines apart.
package logx

import "github.com/pterm/pterm"

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 2006 15:04:05"
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Logger is a leveled logger scoped to a single prefix, typically a
// session's client_id. The zero value logs unscoped.
type Logger struct {
	scope string
}

// New returns a Logger scoped to the given tag, e.g. a session's client_id.
func New(scope string) *Logger {
	return &Logger{scope: scope}
}

// Default is the unscoped logger, used before any session exists.
var Default = New("")

func (l *Logger) format(format string) string {
	if l.scope == "" {
		return format
	}
	return "[" + l.scope + "] " + format
}

func (l *Logger) Debug(format string, args ...interface{}) {
	pterm.Debug.Printfln(l.format(format), args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	pterm.Info.Printfln(l.format(format), args...)
}

func (l *Logger) Success(format string, args ...interface{}) {
	pterm.Success.Printfln(l.format(format), args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	pterm.Warning.Printfln(l.format(format), args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	pterm.Error.Printfln(l.format(format), args...)
}
