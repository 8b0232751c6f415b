// Package realtime applies remote change events to the local store as they
// arrive and tells the UI about them.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/events"
	"clinicsync/internal/utils"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = time.Minute
)

// Bridge subscribes to every monitored table and mirrors committed remote
// writes into the local store
type Bridge struct {
	local  backend.LocalStore
	remote backend.RemoteStore
	pub    events.Publisher
	tables []string

	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	live   map[string]bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge over every synced table. A nil remote makes it inert.
func New(local backend.LocalStore, remote backend.RemoteStore, pub events.Publisher) *Bridge {
	if pub == nil {
		pub = events.Discard
	}
	return &Bridge{
		local:      local,
		remote:     remote,
		pub:        pub,
		tables:     backend.SyncOrder,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		live:       make(map[string]bool),
	}
}

// SetRetryBackoff sets the bounds of the delay between resubscribe attempts
func (b *Bridge) SetRetryBackoff(min, max time.Duration) {
	b.minBackoff = min
	b.maxBackoff = max
}

// Start subscribes to every table in the background. It never fails: a
// table whose subscription cannot be opened stays local-only and is retried.
func (b *Bridge) Start(ctx context.Context) {
	if b.remote == nil {
		utils.Infof("[Realtime] no remote configured, running local-only")
		return
	}

	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	for _, table := range b.tables {
		b.wg.Add(1)
		go b.watch(ctx, table)
	}
}

// Stop closes every subscription and waits for the watchers to exit
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

// Degraded returns the tables that currently have no live subscription
func (b *Bridge) Degraded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for _, t := range b.tables {
		if !b.live[t] {
			out = append(out, t)
		}
	}
	return out
}

func (b *Bridge) setLive(table string, live bool) {
	b.mu.Lock()
	b.live[table] = live
	b.mu.Unlock()
}

// watch keeps one table subscribed until ctx ends
func (b *Bridge) watch(ctx context.Context, table string) {
	defer b.wg.Done()

	backoff := b.minBackoff
	for {
		sub, err := b.remote.Subscribe(ctx, table, func(ev backend.ChangeEvent) {
			b.handle(ctx, ev)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			utils.Warnf("[Realtime] subscribe to %s failed, continuing local-only: %v", table, err)
		} else {
			b.setLive(table, true)
			backoff = b.minBackoff
			utils.Debugf("[Realtime] subscribed to %s", table)

			select {
			case <-ctx.Done():
				sub.Close()
				b.setLive(table, false)
				return
			case <-sub.Done():
				b.setLive(table, false)
				utils.Warnf("[Realtime] channel for %s closed: %v", table, sub.Err())
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
		}
	}
}

// handle applies one event; nothing it does may take the process down
func (b *Bridge) handle(ctx context.Context, ev backend.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("[Realtime] panic applying %s on %s: %v", ev.Kind, ev.Table, r)
		}
	}()

	if _, err := b.Apply(ctx, ev); err != nil {
		utils.Warnf("[Realtime] %v", err)
	}
}

// Apply writes one change event into the local store and publishes it.
// Inserts and updates only land when the local copy is missing or strictly
// older, so late or duplicate deliveries never roll a record back. It
// reports whether the local store changed.
func (b *Bridge) Apply(ctx context.Context, ev backend.ChangeEvent) (bool, error) {
	t, err := backend.LookupTable(ev.Table)
	if err != nil {
		return false, err
	}

	switch ev.Kind {
	case backend.EventDelete:
		id := ev.Record.ID()
		if id == "" {
			return false, fmt.Errorf("delete event on %s without id", ev.Table)
		}
		if err := b.local.Delete(ctx, t.Name, id); err != nil {
			return false, err
		}

	case backend.EventInsert, backend.EventUpdate:
		incoming, err := t.Decode(ev.Record)
		if err != nil {
			return false, err
		}

		existing, err := b.local.Get(ctx, t.Name, incoming.RecordID())
		if err != nil {
			return false, err
		}
		if existing != nil && !backend.IsNewer(incoming.UpdatedAt(), existing.String("updated_at")) {
			utils.Debugf("[Realtime] skipping stale %s for %s/%s", ev.Kind, t.Name, incoming.RecordID())
			return false, nil
		}

		row, err := t.Encode(incoming)
		if err != nil {
			return false, err
		}
		if err := b.local.Upsert(ctx, t.Name, row); err != nil {
			return false, err
		}
		ev.Record = row

	default:
		return false, fmt.Errorf("unknown event kind %q on %s", ev.Kind, ev.Table)
	}

	b.pub.Publish(events.Event{
		Name:      events.DataUpdate,
		Table:     t.Name,
		EventType: ev.Kind,
		Record:    ev.Record,
	})
	if t.Name == backend.TableChat && ev.Kind == backend.EventInsert {
		b.pub.Publish(events.Event{
			Name:      events.NewMessage,
			Table:     t.Name,
			EventType: ev.Kind,
			Record:    ev.Record,
		})
	}
	return true, nil
}
