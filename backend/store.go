package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTable is returned when a table name is not one of the synced tables
var ErrUnknownTable = errors.New("unknown table")

// Row is a single record as it travels between stores: column name -> scalar value
type Row map[string]any

// ID returns the row's identifier, or "" if it has none
func (r Row) ID() string {
	return r.String("id")
}

// String returns a column as a string, formatting non-string scalars
func (r Row) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// EventKind is the kind of remote change carried by a ChangeEvent
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ChangeEvent is a committed remote write delivered by a subscription.
// For deletes, Record carries at least the id of the removed row.
type ChangeEvent struct {
	Table  string
	Kind   EventKind
	Record Row
}

// ChangeHandler receives change events for one table
type ChangeHandler func(ChangeEvent)

// Subscription is a live change feed for one table
type Subscription interface {
	// Done is closed when the feed dies (channel closed, connection lost, Close called)
	Done() <-chan struct{}
	// Err reports why the feed ended, nil after a clean Close
	Err() error
	Close() error
}

// RemoteStore is uniform access to the hosted backend's tables
type RemoteStore interface {
	// Ping issues one minimal read; any error means the backend is unreachable
	Ping(ctx context.Context) error
	SelectAll(ctx context.Context, table string) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) error
	Update(ctx context.Context, table string, id string, row Row) error
	Delete(ctx context.Context, table string, id string) error
	Subscribe(ctx context.Context, table string, handler ChangeHandler) (Subscription, error)
	Close() error
}

// LocalStore is the keyed view of the embedded datastore used by the sync engine
type LocalStore interface {
	SelectAll(ctx context.Context, table string) ([]Row, error)
	Get(ctx context.Context, table string, id string) (Row, error)
	Upsert(ctx context.Context, table string, row Row) error
	Delete(ctx context.Context, table string, id string) error
}
