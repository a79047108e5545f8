package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is botkv's on-disk configuration. Files may be JSON or YAML;
// YAML is coerced to JSON and decoded strictly, so unknown keys are
// rejected in both formats.
type Config struct {
	Storage     StorageConfig      `json:"storage"`
	Logging     LoggingConfig      `json:"logging"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

// StorageConfig selects the driver and declares the table set.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./botkv_data", "tables": ["main", "users"] }
type StorageConfig struct {
	Driver   string   `json:"driver"`
	Path     string   `json:"path,omitempty"`
	Addr     string   `json:"addr,omitempty"`     // redis
	Password string   `json:"password,omitempty"` // redis (do not log)
	DB       int      `json:"db,omitempty"`       // redis
	Prefix   string   `json:"prefix,omitempty"`   // redis
	Tables   []string `json:"tables"`

	// BusyTimeout is a Go duration string (sqlite).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MaintenanceConfig controls the periodic ping and export jobs.
// All durations are Go duration strings (e.g. "30s", "15m").
type MaintenanceConfig struct {
	Enabled      bool     `json:"enabled"`
	PingEvery    string   `json:"ping_every,omitempty"`
	ExportEvery  string   `json:"export_every,omitempty"`
	ExportDir    string   `json:"export_dir,omitempty"`
	ExportTables []string `json:"export_tables,omitempty"`
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
