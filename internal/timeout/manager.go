package timeout

import (
	"context"
	"sync"
	"time"

	"botkv/internal/eventbus"
	"botkv/internal/store"
	"botkv/pkg/logx"
)

// Manager orchestrates durable deferred actions on top of a Store.
//
// Wiring order matters only in one place: Start before the store's
// Connect, so the ready signal triggers recovery. Everything else
// (Register vs Add ordering included) is caller-controlled.
type Manager struct {
	log logx.Logger
	bus eventbus.Bus
	st  *store.Store
	reg *registry

	mu      sync.Mutex
	unsub   func()
	stopped chan struct{}
}

func New(st *store.Store, bus eventbus.Bus, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		log: log,
		bus: bus,
		st:  st,
		reg: newRegistry(),
	}
}

// Start subscribes to the bus and runs recovery on every ready signal.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		return
	}
	ch, unsub := m.bus.Subscribe(16)
	m.unsub = unsub
	m.stopped = make(chan struct{})

	go func(stopped chan struct{}) {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				if e.Type == eventbus.TypeReady {
					m.Recover(ctx)
				}
			}
		}
	}(m.stopped)
}

// Stop cancels every live timer and detaches from the bus. Durable
// records stay put; the next Start+ready recovers them.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsub, stopped := m.unsub, m.stopped
	m.unsub, m.stopped = nil, nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if stopped != nil {
		<-stopped
	}
	n := m.reg.stopAll()
	if n > 0 {
		m.log.Info("canceled live timers", logx.Int("count", n))
	}
}

// Register adds the descriptor linking id to the action run when a
// matching record fires. Call it once per logical deferred-action type.
func (m *Manager) Register(id string, h Handler) error {
	return m.reg.register(id, h)
}

// Add schedules a deferred action: persists the record, publishes the
// addTimeout signal and arms a timer through the same path recovery
// uses. It returns the durable composite key.
func (m *Manager) Add(ctx context.Context, id string, delay time.Duration, out any) (string, error) {
	rec := Record{
		ID:        id,
		Time:      delay.Milliseconds(),
		Datestamp: time.Now().UnixMilli(),
		OutData:   out,
	}
	if err := m.st.Set(ctx, store.TimeoutTable, rec.Key(), rec); err != nil {
		return "", err
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeTimeoutAdded, Data: rec})
	m.arm(rec)
	return rec.Key(), nil
}

// Remove cancels the in-memory timer under key and deletes the durable
// record. When no timer exists it is a no-op returning false, which
// makes double cancellation and cancellation after firing both safe.
func (m *Manager) Remove(ctx context.Context, key string) bool {
	t, ok := m.reg.take(key)
	if !ok {
		return false
	}
	t.Stop()
	if err := m.st.Delete(ctx, store.TimeoutTable, key); err != nil {
		m.log.Warn("durable record not removed", logx.String("key", key), logx.Err(err))
	}
	return true
}

// Recover rebuilds timers from the durable table. Records whose due
// instant already passed are armed with zero delay and fire at once.
func (m *Manager) Recover(ctx context.Context) {
	all, err := m.st.All(ctx, store.TimeoutTable)
	if err != nil {
		m.log.Error("recovery scan failed", logx.Err(err))
		return
	}
	overdue := 0
	for key, v := range all {
		rec, err := recordFromValue(v)
		if err != nil {
			m.log.Warn("skipping undecodable record", logx.String("key", key), logx.Err(err))
			continue
		}
		if !rec.Due().After(time.Now()) {
			overdue++
		}
		m.arm(rec)
	}
	if len(all) > 0 {
		m.log.Info("recovered scheduled timeouts",
			logx.Int("count", len(all)), logx.Int("overdue", overdue))
	}
}

// arm is the single scheduling path for fresh and recovered records.
func (m *Manager) arm(rec Record) {
	remaining := time.Until(rec.Due())
	if remaining < 0 {
		remaining = 0
	}
	m.reg.arm(rec.Key(), remaining, func() { m.fire(rec) })
}

// fire dispatches one due record. Without a registered descriptor the
// fire is dropped permanently, not retried. Firing always removes the
// durable record, even when an explicit Remove took the timer entry
// first.
func (m *Manager) fire(rec Record) {
	if t, ok := m.reg.take(rec.Key()); ok {
		t.Stop()
	}
	h, ok := m.reg.handler(rec.ID)
	if !ok {
		m.log.Warn("no descriptor registered, dropping fire", logx.String("id", rec.ID))
	} else {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeTimeoutFired, Data: rec})
		h(rec.OutData)
	}
	if err := m.st.Delete(context.Background(), store.TimeoutTable, rec.Key()); err != nil {
		m.log.Warn("durable record not removed after firing",
			logx.String("key", rec.Key()), logx.Err(err))
	}
}
