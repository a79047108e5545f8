package timeout

import (
	"fmt"
	"sync"
	"time"
)

// Handler runs when a deferred action fires. It receives the record's
// OutData payload.
type Handler func(out any)

// DuplicateTimeoutError reports a second Register for an id.
type DuplicateTimeoutError struct {
	ID string
}

func (e *DuplicateTimeoutError) Error() string {
	return fmt.Sprintf("timeout: %q already registered", e.ID)
}

// registry indexes the registered descriptors (id -> handler) and the
// live timers (durable key -> timer). It is owned by one Manager.
type registry struct {
	mu       sync.Mutex
	handlers map[string]Handler
	timers   map[string]*time.Timer
}

func newRegistry() *registry {
	return &registry{
		handlers: map[string]Handler{},
		timers:   map[string]*time.Timer{},
	}
}

func (r *registry) register(id string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[id]; dup {
		return &DuplicateTimeoutError{ID: id}
	}
	r.handlers[id] = h
	return nil
}

func (r *registry) handler(id string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[id]
	return h, ok
}

// arm creates the timer and registers it under key in one critical
// section, replacing (and stopping) any previous timer. A zero-delay
// callback starts immediately but its take blocks on the same lock, so
// the entry is always visible to the firing path.
func (r *registry) arm(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.timers[key]; ok {
		old.Stop()
	}
	r.timers[key] = time.AfterFunc(d, fn)
}

// take removes and returns the timer under key.
func (r *registry) take(key string) (*time.Timer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[key]
	if ok {
		delete(r.timers, key)
	}
	return t, ok
}

// stopAll cancels every live timer.
func (r *registry) stopAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.timers)
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = map[string]*time.Timer{}
	return n
}
