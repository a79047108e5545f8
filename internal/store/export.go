package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ExportTableFile writes the table to path as a JSON document mapping
// key -> {key, value}, the same shape the file driver persists.
func (s *Store) ExportTableFile(ctx context.Context, table, path string) error {
	if err := s.check(table); err != nil {
		return err
	}
	if filepath.Ext(path) != ".json" {
		return &InvalidArgumentError{Field: "path", Reason: "export file must end in .json"}
	}

	s.mu.Lock()
	raw := s.readAllLocked(ctx, table)
	s.mu.Unlock()

	doc := make(map[string]record, len(raw))
	for k, v := range raw {
		doc[k] = record{Key: k, Value: json.RawMessage(v)}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("export %s: %w", table, err)
	}
	return writeFileAtomic(path, b)
}

// ImportTableFile loads a JSON document written by ExportTableFile (or
// by the file driver) and Sets every record into the table. Each record
// goes through the normal diffing path, so imports emit create/update
// events like any other write.
func (s *Store) ImportTableFile(ctx context.Context, table, path string) error {
	if err := s.check(table); err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import %s: %w", table, err)
	}
	var doc map[string]record
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("import %s: %w", table, err)
	}
	for k := range doc {
		if err := s.Set(ctx, table, k, decodeValue(doc[k].Value)); err != nil {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never
// observe a torn document.
func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
