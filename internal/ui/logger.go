package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Logger prints status lines for the administrator.
type Logger struct {
	Verbose bool
	Quiet   bool
	NoColor bool

	out io.Writer
}

// NewLogger creates a new logger. Color is disabled automatically when
// stderr is not a terminal.
func NewLogger(verbose, quiet, noColor bool) *Logger {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		noColor = true
	}

	return &Logger{
		Verbose: verbose,
		Quiet:   quiet,
		NoColor: noColor,
		out:     os.Stderr,
	}
}

// NewBufferedLogger creates a colorless logger writing to w.
func NewBufferedLogger(w io.Writer) *Logger {
	return &Logger{NoColor: true, out: w}
}

var (
	infoColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgCyan)
)

func (l *Logger) print(c *color.Color, prefix, format string, args ...interface{}) {
	msg := prefix + fmt.Sprintf(format, args...)
	if l.NoColor {
		fmt.Fprintln(l.out, msg)
		return
	}
	c.EnableColor()
	fmt.Fprintln(l.out, c.Sprint(msg))
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.print(infoColor, "[INFO] ", format, args...)
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.print(successColor, "[SUCCESS] ", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.print(warningColor, "[WARNING] ", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.print(errorColor, "[ERROR] ", format, args...)
}

// Debug logs a debug message (only if verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	l.print(debugColor, "[DEBUG] ", format, args...)
}
