package keylessmux

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"
)

// Default values used when a Config field is left zero.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultQueueCapacity  = 1024
)

// Config carries the tunables a session needs: the timeout that bounds
// both per-request wait and the writer's shutdown grace period, the
// request queue's capacity, and an optional logger. A zero Config is
// valid; missing fields fall back to the defaults above.
type Config struct {
	RequestTimeout time.Duration
	QueueCapacity  int
	Logger         *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	return c
}

// LoadConfig reads a [transfer] section from an ini file at path:
//
//	[transfer]
//	request_timeout_ms = 10000
//	queue_capacity = 1024
//
// A missing file yields a zero Config (defaults apply at session
// startup), matching the fallback behavior of ini-backed config loaders
// elsewhere in this codebase's lineage.
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Config{}, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading config file: %w", err)
	}

	section := f.Section("transfer")
	cfg := Config{}
	if ms, err := section.Key("request_timeout_ms").Int(); err == nil && ms > 0 {
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	if qc, err := section.Key("queue_capacity").Int(); err == nil && qc > 0 {
		cfg.QueueCapacity = qc
	}
	return cfg, nil
}
