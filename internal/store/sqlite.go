package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"botkv/pkg/logx"
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqliteDriver maps each declared table to its own SQL table
// kv_<name>(k TEXT PRIMARY KEY, v BLOB). Writes are upserts; the driver
// is CGO-free via modernc.org/sqlite.
type sqliteDriver struct {
	log  logx.Logger
	path string
	busy time.Duration

	db *sql.DB
}

func newSQLiteDriver(path string, busy time.Duration, log logx.Logger) *sqliteDriver {
	return &sqliteDriver{log: log, path: path, busy: busy}
}

func (d *sqliteDriver) Name() string { return "sqlite" }

func (d *sqliteDriver) Connect(ctx context.Context, tables []string) error {
	for _, t := range tables {
		if !tableNameRE.MatchString(t) {
			return &InvalidArgumentError{Field: "table", Reason: fmt.Sprintf("%q is not a valid sqlite table name", t)}
		}
	}
	if d.db == nil {
		if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
			return err
		}
		db, err := sql.Open("sqlite", d.path)
		if err != nil {
			return err
		}
		// SQLite prefers a small number of concurrent writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if d.busy > 0 {
			_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.busy.Milliseconds()))
		}
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL")
		d.db = db
	}
	for _, t := range tables {
		q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BLOB NOT NULL)`, d.sqlName(t))
		if _, err := d.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (d *sqliteDriver) sqlName(table string) string {
	return `"kv_` + table + `"`
}

func (d *sqliteDriver) Read(ctx context.Context, table, key string) ([]byte, bool, error) {
	var v []byte
	q := fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, d.sqlName(table))
	err := d.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *sqliteDriver) ReadAll(ctx context.Context, table string) (map[string][]byte, error) {
	q := fmt.Sprintf(`SELECT k, v FROM %s`, d.sqlName(table))
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]byte{}
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (d *sqliteDriver) Write(ctx context.Context, table, key string, value []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s(k, v) VALUES(?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v`, d.sqlName(table))
	_, err := d.db.ExecContext(ctx, q, key, value)
	return err
}

func (d *sqliteDriver) Remove(ctx context.Context, table string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	marks := make([]string, len(keys))
	for i, k := range keys {
		args[i] = k
		marks[i] = "?"
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE k IN (%s)`, d.sqlName(table), strings.Join(marks, ","))
	_, err := d.db.ExecContext(ctx, q, args...)
	return err
}

func (d *sqliteDriver) RemoveAll(ctx context.Context, table string) error {
	_, err := d.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, d.sqlName(table)))
	return err
}

func (d *sqliteDriver) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
