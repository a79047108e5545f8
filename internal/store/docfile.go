package store

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"botkv/pkg/logx"
)

// docFileDriver persists the whole store as one CBOR document:
// table -> key -> value bytes. Compared to the file driver it trades
// per-table files for a single compact binary document.
type docFileDriver struct {
	log  logx.Logger
	path string

	mu  sync.Mutex
	doc map[string]map[string][]byte
}

func newDocFileDriver(path string, log logx.Logger) *docFileDriver {
	return &docFileDriver{log: log, path: path, doc: map[string]map[string][]byte{}}
}

func (d *docFileDriver) Name() string { return "docfile" }

func (d *docFileDriver) Connect(_ context.Context, tables []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := os.ReadFile(d.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first connect, empty store
	case err != nil:
		return err
	default:
		var doc map[string]map[string][]byte
		if derr := cbor.Unmarshal(b, &doc); derr != nil {
			d.log.Warn("store document corrupt, starting empty", logx.Err(derr))
		} else {
			d.doc = doc
		}
	}

	changed := false
	for _, t := range tables {
		if _, ok := d.doc[t]; !ok {
			d.doc[t] = map[string][]byte{}
			changed = true
		}
	}
	if changed {
		return d.flushLocked()
	}
	return nil
}

func (d *docFileDriver) flushLocked() error {
	b, err := cbor.Marshal(d.doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(d.path, b)
}

func (d *docFileDriver) Read(_ context.Context, table, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.doc[table][key]
	return v, ok, nil
}

func (d *docFileDriver) ReadAll(_ context.Context, table string) (map[string][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := d.doc[table]
	out := make(map[string][]byte, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (d *docFileDriver) Write(_ context.Context, table, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc[table] == nil {
		d.doc[table] = map[string][]byte{}
	}
	d.doc[table][key] = value
	return d.flushLocked()
}

func (d *docFileDriver) Remove(_ context.Context, table string, keys []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.doc[table], k)
	}
	return d.flushLocked()
}

func (d *docFileDriver) RemoveAll(_ context.Context, table string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc[table] = map[string][]byte{}
	return d.flushLocked()
}

func (d *docFileDriver) Close() error { return nil }
