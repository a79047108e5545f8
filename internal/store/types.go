package store

import (
	"encoding/json"
	"time"
)

// TimeoutTable is the reserved table backing durable deferred actions.
// It is implicitly appended to every declared table set; callers must
// not assume exclusive use of the name.
const TimeoutTable = "timeout"

// Config selects and configures a driver.
//
// Driver values:
//   - "file":    one directory per table, records.json inside
//   - "docfile": one CBOR document holding every table
//   - "sqlite":  SQLite database file (modernc.org/sqlite, CGO-free)
//   - "redis":   remote, one hash per table
type Config struct {
	Driver string
	Path   string // file root, docfile path, or sqlite db file

	Addr     string // redis only
	Password string // redis only
	DB       int    // redis only
	Prefix   string // redis key prefix; default "botkv"

	Tables      []string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Predicate selects records during Find/Delete scans.
type Predicate func(key string, value any) bool

// Match is one scan result. Index is the record's position in the
// key-sorted snapshot the scan ran over.
type Match struct {
	Key   string
	Value any
	Index int
}

// record is the persisted shape of one entry in the file layout and in
// table exports: the document maps key -> {key, value}.
type record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ---- Event payloads ----

// Ready is published once Connect completes.
type Ready struct {
	Driver string
	Tables []string
}

// Created is published when Set writes a previously absent key.
type Created struct {
	Table string
	Key   string
	Data  any
}

// Updated is published when Set replaces an existing value with a
// structurally different one. Equal rewrites publish nothing.
type Updated struct {
	Table   string
	Key     string
	NewData any
	OldData any
}

// Deleted is published once per Delete call. Data holds the values that
// existed immediately before removal, keyed by record key.
type Deleted struct {
	Table string
	Keys  []string
	Data  map[string]any
}

// Cleared is published by Clear with a snapshot of everything removed.
type Cleared struct {
	Table   string
	Records map[string]any
}
