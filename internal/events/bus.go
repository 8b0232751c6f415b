// Package events carries change notifications from the sync engine to
// whatever UI surfaces are attached (terminal view, dashboard clients).
package events

import (
	"sync"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/utils"
)

// Name identifies a notification
type Name string

const (
	// NewMessage carries a chat record, raised for local sends and remote inserts
	NewMessage Name = "new-message"

	// DataUpdate carries {table, eventType, record} for any applied remote change
	DataUpdate Name = "data:update"

	// SyncComplete is raised after every full sync pass that ran
	SyncComplete Name = "sync:complete"
)

// Event is one notification
type Event struct {
	Name      Name              `json:"name"`
	Table     string            `json:"table,omitempty"`
	EventType backend.EventKind `json:"eventType,omitempty"`
	Record    backend.Row       `json:"record,omitempty"`
	Payload   any               `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher is the sending side of a bus
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size.
// The returned cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers an event to every subscriber
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			utils.Debugf("[Events] subscriber full, dropping %s", ev.Name)
		}
	}
}

// Close unregisters and closes every subscriber
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of live subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard is a Publisher that drops everything
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
