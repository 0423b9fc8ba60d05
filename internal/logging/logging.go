// Package logging wires zerolog into the process-wide console logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	global zerolog.Logger
)

// New builds a component-scoped logger. name is attached as the "component"
// field, matching the per-subsystem loggers of the original daemon
// (recorder, display, scheduler, httpapi, camera).
func New(name string) zerolog.Logger {
	initGlobal(false)
	return global.With().Str("component", name).Logger()
}

// Init configures the process-wide console writer. forceColor mirrors the
// -fc/--force-color CLI flag: when true, ANSI colors are emitted even if
// stderr is not a TTY (useful when output is piped into a color-aware
// aggregator).
func Init(forceColor bool) {
	initGlobal(forceColor)
}

func initGlobal(forceColor bool) {
	once.Do(func() {
		var w io.Writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !forceColor && !isTerminal(os.Stderr),
		}
		zerolog.TimeFieldFormat = time.RFC3339Nano
		global = zerolog.New(w).With().Timestamp().Logger()
	})
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
