package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"botkv/internal/eventbus"
	"botkv/pkg/logx"
)

// memDriver is an in-memory driver for exercising Store behavior
// without touching any medium.
type memDriver struct {
	data    map[string]map[string][]byte
	readErr error // when set, every read fails
}

var _ driver = (*memDriver)(nil)

func newMemDriver() *memDriver {
	return &memDriver{data: map[string]map[string][]byte{}}
}

func (d *memDriver) Name() string { return "mem" }

func (d *memDriver) Connect(_ context.Context, tables []string) error {
	for _, t := range tables {
		if d.data[t] == nil {
			d.data[t] = map[string][]byte{}
		}
	}
	return nil
}

func (d *memDriver) Read(_ context.Context, table, key string) ([]byte, bool, error) {
	if d.readErr != nil {
		return nil, false, d.readErr
	}
	v, ok := d.data[table][key]
	return v, ok, nil
}

func (d *memDriver) ReadAll(_ context.Context, table string) (map[string][]byte, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	out := map[string][]byte{}
	for k, v := range d.data[table] {
		out[k] = v
	}
	return out, nil
}

func (d *memDriver) Write(_ context.Context, table, key string, value []byte) error {
	d.data[table][key] = value
	return nil
}

func (d *memDriver) Remove(_ context.Context, table string, keys []string) error {
	for _, k := range keys {
		delete(d.data[table], k)
	}
	return nil
}

func (d *memDriver) RemoveAll(_ context.Context, table string) error {
	d.data[table] = map[string][]byte{}
	return nil
}

func (d *memDriver) Close() error { return nil }

func newTestStore(t *testing.T) (*Store, *memDriver, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.New()
	drv := newMemDriver()
	s := newStore(drv, []string{"main", "users"}, bus, logx.Nop())
	ch, unsub := bus.Subscribe(64)
	t.Cleanup(unsub)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s, drv, ch
}

// drain collects every event currently buffered.
func drain(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestConnectPublishesReady(t *testing.T) {
	t.Parallel()
	_, _, ch := newTestStore(t)
	evs := drain(ch)
	if len(evs) != 1 || evs[0].Type != eventbus.TypeReady {
		t.Fatalf("events = %v, want single ready", evs)
	}
	r := evs[0].Data.(Ready)
	if r.Driver != "mem" {
		t.Fatalf("Driver = %s", r.Driver)
	}
}

func TestConnectIdempotent(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	drain(ch)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if evs := drain(ch); len(evs) != 0 {
		t.Fatalf("second Connect published %v", evs)
	}
}

func TestNotReadyGate(t *testing.T) {
	t.Parallel()
	s := newStore(newMemDriver(), []string{"main"}, eventbus.New(), logx.Nop())
	ctx := context.Background()
	if err := s.Set(ctx, "main", "a", 1); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Set before Connect: %v", err)
	}
	if _, _, err := s.Get(ctx, "main", "a"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Get before Connect: %v", err)
	}
	if _, err := s.Ping(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Ping before Connect: %v", err)
	}
}

func TestUnknownTable(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	err := s.Set(ctx, "nope", "a", 1)
	var ute *UnknownTableError
	if !errors.As(err, &ute) || ute.Table != "nope" {
		t.Fatalf("Set on undeclared table: %v", err)
	}
	if _, err := s.All(ctx, "nope"); !errors.As(err, &ute) {
		t.Fatalf("All on undeclared table: %v", err)
	}
}

func TestReservedTimeoutTable(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	if err := s.Set(context.Background(), TimeoutTable, "k", "v"); err != nil {
		t.Fatalf("reserved table not declared implicitly: %v", err)
	}
}

func TestSetCreateThenGet(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()
	drain(ch)

	if err := s.Set(ctx, "main", "a", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "main", "a")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	want := map[string]any{"x": float64(1)}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("Get = %#v, want %#v", v, want)
	}

	evs := drain(ch)
	if len(evs) != 1 || evs[0].Type != eventbus.TypeCreate {
		t.Fatalf("events = %v, want single create", evs)
	}
	c := evs[0].Data.(Created)
	if c.Table != "main" || c.Key != "a" || !reflect.DeepEqual(c.Data, want) {
		t.Fatalf("Created = %#v", c)
	}
}

func TestSetUpdateAndSuppression(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()

	mustSet := func(v any) {
		t.Helper()
		if err := s.Set(ctx, "main", "a", v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	mustSet(map[string]any{"x": 1})
	drain(ch)

	// Structurally equal rewrite: no event.
	mustSet(map[string]any{"x": 1})
	if evs := drain(ch); len(evs) != 0 {
		t.Fatalf("equal rewrite published %v", evs)
	}

	// Different value: exactly one update with both payloads.
	mustSet(map[string]any{"x": 2})
	evs := drain(ch)
	if len(evs) != 1 || evs[0].Type != eventbus.TypeUpdate {
		t.Fatalf("events = %v, want single update", evs)
	}
	u := evs[0].Data.(Updated)
	if !reflect.DeepEqual(u.NewData, map[string]any{"x": float64(2)}) {
		t.Fatalf("NewData = %#v", u.NewData)
	}
	if !reflect.DeepEqual(u.OldData, map[string]any{"x": float64(1)}) {
		t.Fatalf("OldData = %#v", u.OldData)
	}
}

func TestDeleteEventCarriesPriorValue(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "main", "a", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(ch)

	if err := s.Delete(ctx, "main", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err := s.Has(ctx, "main", "a")
	if err != nil || ok {
		t.Fatalf("Has after delete: ok=%v err=%v", ok, err)
	}

	evs := drain(ch)
	if len(evs) != 1 || evs[0].Type != eventbus.TypeDelete {
		t.Fatalf("events = %v, want single delete", evs)
	}
	d := evs[0].Data.(Deleted)
	if !reflect.DeepEqual(d.Data, map[string]any{"a": "v"}) {
		t.Fatalf("Deleted.Data = %#v", d.Data)
	}
}

func TestDeleteKeySet(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, "main", k, k); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	drain(ch)

	if err := s.Delete(ctx, "main", "a", "b", "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	evs := drain(ch)
	if len(evs) != 1 {
		t.Fatalf("want one delete event per call, got %d", len(evs))
	}
	d := evs[0].Data.(Deleted)
	if len(d.Keys) != 3 {
		t.Fatalf("Keys = %v", d.Keys)
	}
	if !reflect.DeepEqual(d.Data, map[string]any{"a": "a", "b": "b"}) {
		t.Fatalf("Data = %#v", d.Data)
	}
}

func TestClearSnapshot(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "main", "a", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "main", "b", 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(ch)

	if err := s.Clear(ctx, "main"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, err := s.All(ctx, "main")
	if err != nil || len(all) != 0 {
		t.Fatalf("All after clear: %v %v", all, err)
	}

	evs := drain(ch)
	if len(evs) != 1 || evs[0].Type != eventbus.TypeDeleteAll {
		t.Fatalf("events = %v, want single deleteAll", evs)
	}
	c := evs[0].Data.(Cleared)
	want := map[string]any{"a": float64(1), "b": float64(2)}
	if !reflect.DeepEqual(c.Records, want) {
		t.Fatalf("Records = %#v, want %#v", c.Records, want)
	}
}

func TestTableIsolation(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "main", "k", "main-value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "users", "k"); ok {
		t.Fatal("key visible across tables")
	}
	all, err := s.All(ctx, "users")
	if err != nil || len(all) != 0 {
		t.Fatalf("All(users) = %v %v", all, err)
	}
}

func TestFindOneAndMany(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for k, v := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if err := s.Set(ctx, "main", k, v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	m, ok, err := s.FindOne(ctx, "main", func(_ string, v any) bool {
		return v.(float64) >= 2
	})
	if err != nil || !ok {
		t.Fatalf("FindOne: ok=%v err=%v", ok, err)
	}
	// Scan runs in key order over the snapshot.
	if m.Key != "b" || m.Index != 1 {
		t.Fatalf("FindOne = %+v", m)
	}

	ms, err := s.FindMany(ctx, "main", func(_ string, v any) bool {
		return v.(float64) >= 2
	})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(ms) != 2 || ms[0].Key != "b" || ms[1].Key != "c" {
		t.Fatalf("FindMany = %+v", ms)
	}

	_, ok, err = s.FindOne(ctx, "main", func(string, any) bool { return false })
	if err != nil || ok {
		t.Fatalf("FindOne no match: ok=%v err=%v", ok, err)
	}
}

func TestDeleteManyEmitsPerKey(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"keep", "drop1", "drop2"} {
		if err := s.Set(ctx, "main", k, k); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	drain(ch)

	err := s.DeleteMany(ctx, "main", func(k string, _ any) bool {
		return k != "keep"
	})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}

	evs := drain(ch)
	if len(evs) != 2 {
		t.Fatalf("want one delete event per matched key, got %d", len(evs))
	}
	for _, e := range evs {
		if e.Type != eventbus.TypeDelete {
			t.Fatalf("event type %s", e.Type)
		}
		if n := len(e.Data.(Deleted).Keys); n != 1 {
			t.Fatalf("per-key event carries %d keys", n)
		}
	}
	if ok, _ := s.Has(ctx, "main", "keep"); !ok {
		t.Fatal("unmatched key removed")
	}
}

func TestDegradedReads(t *testing.T) {
	t.Parallel()
	s, drv, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "main", "a", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drv.readErr = errors.New("disk on fire")

	if _, ok, err := s.Get(ctx, "main", "a"); err != nil || ok {
		t.Fatalf("degraded Get: ok=%v err=%v", ok, err)
	}
	all, err := s.All(ctx, "main")
	if err != nil || len(all) != 0 {
		t.Fatalf("degraded All: %v %v", all, err)
	}
	if _, err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping must never fail on data issues: %v", err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	d, err := s.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if d < 0 {
		t.Fatalf("elapsed = %v", d)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	s, _, ch := newTestStore(t)
	ctx := context.Background()
	path := t.TempDir() + "/main.json"

	if err := s.Set(ctx, "main", "a", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.ExportTableFile(ctx, "main", path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if err := s.Clear(ctx, "main"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	drain(ch)

	if err := s.ImportTableFile(ctx, "main", path); err != nil {
		t.Fatalf("Import: %v", err)
	}
	v, ok, _ := s.Get(ctx, "main", "a")
	if !ok || !reflect.DeepEqual(v, map[string]any{"x": float64(1)}) {
		t.Fatalf("after import: ok=%v v=%#v", ok, v)
	}
	// Imported records go through diffing: the restore is a create.
	evs := drain(ch)
	if len(evs) != 1 || evs[0].Type != eventbus.TypeCreate {
		t.Fatalf("import events = %v", evs)
	}
}

func TestExportRejectsNonJSONPath(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	err := s.ExportTableFile(context.Background(), "main", t.TempDir()+"/main.cbor")
	var iae *InvalidArgumentError
	if !errors.As(err, &iae) {
		t.Fatalf("err = %v, want InvalidArgumentError", err)
	}
}
