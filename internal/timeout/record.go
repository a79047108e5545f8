package timeout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Record is the durable shape of one scheduled deferred action.
// Time is the requested delay in milliseconds, Datestamp the creation
// instant (unix milli). Records are never mutated: re-registering the
// same id later produces a distinct durable entry.
type Record struct {
	ID        string `json:"id"`
	Time      int64  `json:"time"`
	Datestamp int64  `json:"datestamp"`
	OutData   any    `json:"outData"`
}

// Key is the durable composite key "<id>_<datestamp>".
func (r Record) Key() string {
	return r.ID + "_" + strconv.FormatInt(r.Datestamp, 10)
}

// Due is the instant the record should fire.
func (r Record) Due() time.Time {
	return time.UnixMilli(r.Datestamp + r.Time)
}

// recordFromValue rebuilds a Record from the structured value the store
// hands back (a decoded JSON object).
func recordFromValue(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("timeout: record re-encode: %w", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("timeout: record decode: %w", err)
	}
	if r.ID == "" {
		return Record{}, fmt.Errorf("timeout: record without id")
	}
	return r, nil
}
