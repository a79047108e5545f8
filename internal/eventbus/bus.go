package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type names an observable signal. The storage and timeout layers
// publish the fixed set below; subscribers filter on it.
type Type string

const (
	TypeReady        Type = "ready"
	TypeCreate       Type = "create"
	TypeUpdate       Type = "update"
	TypeDelete       Type = "delete"
	TypeDeleteAll    Type = "deleteAll"
	TypeTimeoutAdded Type = "addTimeout"
	TypeTimeoutFired Type = "timeout"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type Type
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

type fanout struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Copy the channel list first; no lock is held during the sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A full buffer means the event is dropped for that subscriber.
		// A concurrent unsubscribe can close the channel mid-send; the
		// recover absorbs that panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Publish tolerates the close racing one of its sends.
			close(ch)
		})
	}
	return ch, unsub
}
