package errors

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// LogHandler is an ErrorHandler that logs errors to stderr.
type LogHandler struct {
	// Verbose enables detailed output including stack traces.
	Verbose bool
	// NoColor disables ANSI color even when stderr is a terminal.
	NoColor bool
}

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

func (h *LogHandler) useColor() bool {
	if h.NoColor {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// HandleError logs a LoomError to stderr.
func (h *LogHandler) HandleError(err *LoomError) {
	if err == nil {
		return
	}
	prefix, suffix := "", ""
	if h.useColor() {
		prefix, suffix = colorRed, colorReset
	}
	if h.Verbose {
		fmt.Fprintf(os.Stderr, "%s[loom error]%s %s [%s]: %v\n", prefix, suffix, err.Op, err.Kind, err.Err)
		if err.StackTrace != "" {
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", err.StackTrace)
		}
	} else {
		fmt.Fprintf(os.Stderr, "%s[loom error]%s %s: %v\n", prefix, suffix, err.Op, err.Err)
	}
}

// HandlePanic logs a PanicError to stderr.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	prefix, suffix := "", ""
	if h.useColor() {
		prefix, suffix = colorYellow, colorReset
	}
	if err.Op != "" {
		fmt.Fprintf(os.Stderr, "%s[loom panic]%s %s: %v\n", prefix, suffix, err.Op, err.Value)
	} else {
		fmt.Fprintf(os.Stderr, "%s[loom panic]%s %v\n", prefix, suffix, err.Value)
	}
	if h.Verbose && err.StackTrace != "" {
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", err.StackTrace)
	}
}
