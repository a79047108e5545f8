package store

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"botkv/internal/eventbus"
	"botkv/pkg/logx"
)

// Open builds a Store for the configured driver. The returned Store is
// not connected yet; call Connect before any other operation.
func Open(cfg Config, bus eventbus.Bus, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var drv driver
	switch name {
	case "", "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, &InvalidArgumentError{Field: "path", Reason: "file driver requires a root directory"}
		}
		drv = newFileDriver(cfg.Path, log)
	case "docfile":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, &InvalidArgumentError{Field: "path", Reason: "docfile driver requires a file path"}
		}
		drv = newDocFileDriver(cfg.Path, log)
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, &InvalidArgumentError{Field: "path", Reason: "sqlite driver requires a database file path"}
		}
		drv = newSQLiteDriver(cfg.Path, cfg.BusyTimeout, log)
	case "redis":
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, &InvalidArgumentError{Field: "addr", Reason: "redis driver requires an address"}
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		drv = newRedisDriver(client, cfg.Prefix, true, log)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	return newStore(drv, cfg.Tables, bus, log), nil
}
