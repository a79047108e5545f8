package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"botkv/internal/eventbus"
	"botkv/pkg/logx"
)

// Store fronts one driver and enforces the uniform table contract.
//
// Operations are serialized by one mutex: two calls never interleave,
// so per-caller issue order is observed order. There is no cross-caller
// coordination beyond that — a racing Set and Delete on the same key
// may classify against a value the other never saw.
type Store struct {
	log logx.Logger
	bus eventbus.Bus
	drv driver

	tables []string
	tset   map[string]struct{}

	mu    sync.Mutex
	ready atomic.Bool

	// degraded throttles the read-failure warnings so a broken medium
	// doesn't flood the log.
	degraded *rate.Limiter
}

func newStore(drv driver, tables []string, bus eventbus.Bus, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		log:      log.With(logx.String("driver", drv.Name())),
		bus:      bus,
		drv:      drv,
		tset:     map[string]struct{}{},
		degraded: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, t := range tables {
		if _, dup := s.tset[t]; dup {
			continue
		}
		s.tset[t] = struct{}{}
		s.tables = append(s.tables, t)
	}
	if _, ok := s.tset[TimeoutTable]; !ok {
		s.tset[TimeoutTable] = struct{}{}
		s.tables = append(s.tables, TimeoutTable)
	}
	return s
}

// Tables returns the declared table set, reserved table included.
func (s *Store) Tables() []string {
	out := make([]string, len(s.tables))
	copy(out, s.tables)
	return out
}

// Connect acquires the driver's medium and creates missing tables.
// It is idempotent; the first success publishes the ready signal.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Load() {
		return nil
	}
	if err := s.drv.Connect(ctx, s.tables); err != nil {
		return &ConnectionError{Driver: s.drv.Name(), Err: err}
	}
	s.ready.Store(true)
	s.log.Info("store ready", logx.Int("tables", len(s.tables)))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeReady, Data: Ready{Driver: s.drv.Name(), Tables: s.Tables()}})
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready.Store(false)
	return s.drv.Close()
}

func (s *Store) check(table string) error {
	if !s.ready.Load() {
		return ErrNotReady
	}
	if _, ok := s.tset[table]; !ok {
		return &UnknownTableError{Table: table}
	}
	return nil
}

// Get returns the value stored under key, or ok=false when absent.
func (s *Store) Get(ctx context.Context, table, key string) (any, bool, error) {
	if err := s.check(table); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok, err := s.drv.Read(ctx, table, key)
	if err != nil {
		s.degradedRead(table, err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	return decodeValue(raw), true, nil
}

// Set writes value under key, last-writer-wins, and publishes the
// matching change event: create for an absent key, update for a
// structurally different value, nothing for an equal rewrite.
func (s *Store) Set(ctx context.Context, table, key string, value any) error {
	if err := s.check(table); err != nil {
		return err
	}
	next, err := encodeValue(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, hadOld, rerr := s.drv.Read(ctx, table, key)
	if rerr != nil {
		// Degraded diff: without the prior value this write looks like
		// a create. The write itself still proceeds.
		s.degradedRead(table, rerr)
		old, hadOld = nil, false
	}
	if err := s.drv.Write(ctx, table, key, next); err != nil {
		s.log.Error("write failed", logx.String("table", table), logx.String("key", key), logx.Err(err))
		return err
	}

	switch classify(old, hadOld, next) {
	case changeCreate:
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCreate, Data: Created{Table: table, Key: key, Data: decodeValue(next)}})
	case changeUpdate:
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeUpdate, Data: Updated{Table: table, Key: key, NewData: decodeValue(next), OldData: decodeValue(old)}})
	}
	return nil
}

// Has reports whether key exists in table.
func (s *Store) Has(ctx context.Context, table, key string) (bool, error) {
	if err := s.check(table); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok, err := s.drv.Read(ctx, table, key)
	if err != nil {
		s.degradedRead(table, err)
		return false, nil
	}
	return ok, nil
}

// All returns every record in the table.
func (s *Store) All(ctx context.Context, table string) (map[string]any, error) {
	if err := s.check(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeAll(s.readAllLocked(ctx, table)), nil
}

// readAllLocked degrades to an empty snapshot on read failure.
func (s *Store) readAllLocked(ctx context.Context, table string) map[string][]byte {
	raw, err := s.drv.ReadAll(ctx, table)
	if err != nil {
		s.degradedRead(table, err)
		return map[string][]byte{}
	}
	return raw
}

// FindOne returns the first match in key order over a snapshot taken at
// call time. Writers racing the scan are not visible to it.
func (s *Store) FindOne(ctx context.Context, table string, pred Predicate) (Match, bool, error) {
	matches, err := s.find(ctx, table, pred, true)
	if err != nil {
		return Match{}, false, err
	}
	if len(matches) == 0 {
		return Match{}, false, nil
	}
	return matches[0], true, nil
}

// FindMany is FindOne collecting every match.
func (s *Store) FindMany(ctx context.Context, table string, pred Predicate) ([]Match, error) {
	return s.find(ctx, table, pred, false)
}

func (s *Store) find(ctx context.Context, table string, pred Predicate, first bool) ([]Match, error) {
	if err := s.check(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	snapshot := decodeAll(s.readAllLocked(ctx, table))
	s.mu.Unlock()

	keys := sortedKeys(snapshot)
	var out []Match
	for i, k := range keys {
		if pred(k, snapshot[k]) {
			out = append(out, Match{Key: k, Value: snapshot[k], Index: i})
			if first {
				break
			}
		}
	}
	return out, nil
}

// Delete removes the given keys and publishes exactly one delete event
// carrying the values that existed immediately before removal.
func (s *Store) Delete(ctx context.Context, table string, keys ...string) error {
	if err := s.check(table); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := map[string]any{}
	var present []string
	for _, k := range keys {
		raw, ok, err := s.drv.Read(ctx, table, k)
		if err != nil {
			s.degradedRead(table, err)
			continue
		}
		if ok {
			removed[k] = decodeValue(raw)
			present = append(present, k)
		}
	}
	if len(present) > 0 {
		if err := s.drv.Remove(ctx, table, present); err != nil {
			s.log.Error("delete failed", logx.String("table", table), logx.Err(err))
			return err
		}
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDelete, Data: Deleted{Table: table, Keys: keys, Data: removed}})
	return nil
}

// DeleteMany matches against a snapshot, then deletes once per matched
// key so each removal gets its own delete event.
func (s *Store) DeleteMany(ctx context.Context, table string, pred Predicate) error {
	matches, err := s.FindMany(ctx, table, pred)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := s.Delete(ctx, table, m.Key); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every record and publishes one deleteAll event with a
// snapshot of what was removed.
func (s *Store) Clear(ctx context.Context, table string) error {
	if err := s.check(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := decodeAll(s.readAllLocked(ctx, table))
	if err := s.drv.RemoveAll(ctx, table); err != nil {
		s.log.Error("clear failed", logx.String("table", table), logx.Err(err))
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDeleteAll, Data: Cleared{Table: table, Records: snapshot}})
	return nil
}

// Ping reads every declared table and returns the elapsed time. It is
// purely diagnostic: data problems degrade like any other read.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	if !s.ready.Load() {
		return 0, ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	for _, t := range s.tables {
		_ = s.readAllLocked(ctx, t)
	}
	return time.Since(start), nil
}

func (s *Store) degradedRead(table string, err error) {
	if s.degraded.Allow() {
		s.log.Warn("read failed, treating table as empty",
			logx.String("table", table), logx.Err(err))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
