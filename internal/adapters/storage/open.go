package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/rs/zerolog/log"
)

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Options struct {
	Driver      string
	RedisURL    string
	SQLitePath  string
	RoomTTL     time.Duration
	Required    bool
	PingTimeout time.Duration
}

// Open builds the configured backend and checks it is reachable. When it is
// not and opts.Required is false, Open falls back to Memory and reports
// durable == false; the caller decides how to surface that.
func Open(ctx context.Context, opts Options) (store core.Store, durable bool, err error) {
	if opts.Driver == DriverMemory {
		return NewMemory(), false, nil
	}

	store, err = openDurable(opts)
	if err == nil {
		timeout := opts.PingTimeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = store.Close()
			err = fmt.Errorf("%s unreachable: %w", opts.Driver, err)
		}
	}
	if err == nil {
		log.Info().Str("module", "storage").Str("driver", opts.Driver).Msg("durable storage ready")
		return store, true, nil
	}
	if opts.Required {
		return nil, false, err
	}
	log.Warn().Err(err).Str("module", "storage").Str("driver", opts.Driver).Msg("durable storage unavailable, serving from memory")
	return NewMemory(), false, nil
}

func openDurable(opts Options) (core.Store, error) {
	switch opts.Driver {
	case DriverRedis:
		return OpenRedis(opts.RedisURL, opts.RoomTTL)
	case DriverSQLite:
		return OpenSQLite(opts.SQLitePath, opts.RoomTTL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
