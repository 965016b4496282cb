// Package sysutil holds process-level helpers for the server entrypoint.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions describes the process logger.
type LogOptions struct {
	Level   string // debug|info|warn|error|fatal|panic; anything else is info
	Service string
	Version string
	Pretty  bool // console writer instead of JSON lines
}

// ParseLevel maps a configured level name onto zerolog, accepting "warning"
// and surrounding blanks. Unknown or empty names mean info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel || lvl == zerolog.TraceLevel || lvl == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetupLogger builds the process logger writing to w (stdout when nil) and
// installs it as the global logger and as the zerolog.Ctx fallback, which
// services hit when a call carries no request-scoped logger.
func SetupLogger(w io.Writer, opts LogOptions) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	ctx := zerolog.New(w).With().Timestamp().Str("service", opts.Service)
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	l := ctx.Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}

// FirstNonEmpty returns the first value that is not blank, unchanged, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
