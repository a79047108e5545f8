package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"botkv/pkg/logx"
)

const fileDocName = "records.json"

// fileDriver persists one directory per table with a single JSON
// document inside, mapping key -> {key, value}. The whole data set is
// held in memory and written through on every change with an atomic
// tmp+rename, so a crash leaves either the old or the new document.
type fileDriver struct {
	log  logx.Logger
	root string

	mu     sync.Mutex
	tables map[string]map[string][]byte
}

func newFileDriver(root string, log logx.Logger) *fileDriver {
	return &fileDriver{log: log, root: root, tables: map[string]map[string][]byte{}}
}

func (d *fileDriver) Name() string { return "file" }

func (d *fileDriver) Connect(_ context.Context, tables []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return err
	}
	for _, t := range tables {
		if _, ok := d.tables[t]; ok {
			continue
		}
		if err := os.MkdirAll(filepath.Join(d.root, t), 0o755); err != nil {
			return err
		}
		d.tables[t] = d.load(t)
	}
	return nil
}

// load reads a table document. A missing file is an empty table at
// first connect; a corrupt one degrades to empty with a warning.
func (d *fileDriver) load(table string) map[string][]byte {
	out := map[string][]byte{}
	b, err := os.ReadFile(d.docPath(table))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.log.Warn("table document unreadable, starting empty",
				logx.String("table", table), logx.Err(err))
		}
		return out
	}
	var doc map[string]record
	if err := json.Unmarshal(b, &doc); err != nil {
		d.log.Warn("table document corrupt, starting empty",
			logx.String("table", table), logx.Err(err))
		return out
	}
	for k := range doc {
		out[k] = []byte(doc[k].Value)
	}
	return out
}

func (d *fileDriver) docPath(table string) string {
	return filepath.Join(d.root, table, fileDocName)
}

func (d *fileDriver) flushLocked(table string) error {
	recs := d.tables[table]
	doc := make(map[string]record, len(recs))
	for k, v := range recs {
		doc[k] = record{Key: k, Value: json.RawMessage(v)}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(d.docPath(table), b)
}

func (d *fileDriver) Read(_ context.Context, table, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.tables[table][key]
	return v, ok, nil
}

func (d *fileDriver) ReadAll(_ context.Context, table string) (map[string][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := d.tables[table]
	out := make(map[string][]byte, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (d *fileDriver) Write(_ context.Context, table, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tables[table] == nil {
		d.tables[table] = map[string][]byte{}
	}
	d.tables[table][key] = value
	return d.flushLocked(table)
}

func (d *fileDriver) Remove(_ context.Context, table string, keys []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.tables[table], k)
	}
	return d.flushLocked(table)
}

func (d *fileDriver) RemoveAll(_ context.Context, table string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[table] = map[string][]byte{}
	return d.flushLocked(table)
}

func (d *fileDriver) Close() error { return nil }
