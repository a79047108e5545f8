package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Write classification shared by every driver path. Values are compared
// in canonical JSON form (Go sorts object keys when marshaling maps),
// so "equal" means structurally equal regardless of which medium stored
// the bytes.
type changeKind int

const (
	changeNone changeKind = iota
	changeCreate
	changeUpdate
)

func classify(old []byte, hadOld bool, next []byte) changeKind {
	if !hadOld {
		return changeCreate
	}
	if bytes.Equal(old, next) {
		return changeNone
	}
	return changeUpdate
}

// encodeValue normalizes an arbitrary value to canonical JSON bytes.
func encodeValue(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

// decodeValue turns stored bytes back into a structured value. Corrupt
// bytes decode to nil; the degraded-read policy applies.
func decodeValue(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

func decodeAll(raw map[string][]byte) map[string]any {
	out := make(map[string]any, len(raw))
	for k, b := range raw {
		out[k] = decodeValue(b)
	}
	return out
}
