// Package logx wires the process-wide zerolog logger every command
// shares; internal/ctl and internal/wrk log through the same global, and
// this package is just where that setup lives for the binaries under
// cmd/.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger: level parsed from
// levelName (falling back to info on an empty or unknown value),
// human-readable console output when pretty is true, else one JSON
// object per line.
func Init(levelName string, pretty bool) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName)))
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
}

// WithComponent returns a logger tagged with component, so a single
// process (the controller, a worker) can distinguish its subsystems in
// aggregated log output.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
