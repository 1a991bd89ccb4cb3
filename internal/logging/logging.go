// Package logging wires the leveled go-logger package into tailnmail's
// verbosity flags, the way telegraf's plugins accept an injected logger
// or Accumulator instead of reaching for a package-level global.
package logging

import (
	"io"
	"os"

	golog "github.com/opencoff/go-logger"
)

// New builds a Logger for the given verbosity. quiet beats verbose:
// quiet maps to LOG_ERR, verbose to LOG_DEBUG, and the default run to
// LOG_INFO.
func New(prefix string, quiet, verbose bool) golog.Logger {
	return NewTo(os.Stderr, prefix, quiet, verbose)
}

// NewTo is New with an explicit destination, used by tests.
func NewTo(out io.Writer, prefix string, quiet, verbose bool) golog.Logger {
	prio := golog.LOG_INFO
	switch {
	case quiet:
		prio = golog.LOG_ERR
	case verbose:
		prio = golog.LOG_DEBUG
	}

	l, err := golog.New(out, prio, prefix, golog.Lstdflag)
	if err != nil {
		// golog.New() only fails on a nil writer; os.Stderr never is.
		panic(err)
	}
	return l
}

// Discard returns a logger that drops everything, for tests that don't
// care about log output.
func Discard() golog.Logger {
	l, _ := golog.New(io.Discard, golog.LOG_NONE, "", golog.Lstdflag)
	return l
}
