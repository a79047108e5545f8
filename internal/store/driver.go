package store

import "context"

// driver is the byte-transparent seam between the Store and a storage
// medium. ReadAll/Read must return exactly the bytes previously passed
// to Write for the same table/key; drivers must not transcode or
// mutate values. Diffing, events and gating live in Store, never here.
type driver interface {
	// Name identifies the driver in logs and errors.
	Name() string

	// Connect acquires the medium and creates anything missing for the
	// given tables. It must be safe to call with tables it has already
	// seen.
	Connect(ctx context.Context, tables []string) error

	Read(ctx context.Context, table, key string) ([]byte, bool, error)
	ReadAll(ctx context.Context, table string) (map[string][]byte, error)
	Write(ctx context.Context, table, key string, value []byte) error
	Remove(ctx context.Context, table string, keys []string) error
	RemoveAll(ctx context.Context, table string) error

	Close() error
}
