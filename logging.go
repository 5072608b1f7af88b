package keylessmux

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// resolveLogger returns cfg.Logger if set, otherwise a quiet default
// that writes info-and-above to stderr. Sessions always have a usable
// logger, so call sites never need a nil check.
func resolveLogger(cfg Config) zerolog.Logger {
	if cfg.Logger != nil {
		return *cfg.Logger
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.InfoLevel).
		With().Timestamp().Logger()
}

// discardLogger is handy in tests that don't care about log output.
func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
