// Package store provides botkv's table-oriented key/value persistence.
//
// A Store fronts one of four interchangeable drivers (file, docfile,
// sqlite, redis) behind a byte-transparent seam: values cross the driver
// boundary as canonical JSON. The Store owns the shared behavior the
// drivers must not duplicate: readiness and table gating, change-event
// diffing, snapshot scans, and degraded reads.
//
// Read failures degrade to "empty" and are logged (throttled) instead of
// surfacing to callers. An empty result is therefore ambiguous between
// "truly empty" and "read failed"; callers trading strictness for
// availability accept that.
package store
