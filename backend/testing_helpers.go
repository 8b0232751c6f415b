package backend

import (
	"context"
	"sort"
	"sync"
)

// This file contains shared test helpers and mocks used across packages.
// MockRemote is an in-memory RemoteStore with error injection.

// MockRemote implements RemoteStore for testing
type MockRemote struct {
	mu     sync.Mutex
	tables map[string]map[string]Row
	subs   map[string][]*MockSubscription

	PingErr      error
	SelectErr    map[string]error // table -> error returned by SelectAll
	InsertErr    error
	UpdateErr    error
	DeleteErr    error
	SubscribeErr error

	// Gate, when set, blocks every call until it is closed
	Gate chan struct{}

	calls map[string]int
}

// NewMockRemote creates an empty mock remote
func NewMockRemote() *MockRemote {
	return &MockRemote{
		tables:    make(map[string]map[string]Row),
		subs:      make(map[string][]*MockSubscription),
		SelectErr: make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (m *MockRemote) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	gate := m.Gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Calls returns how many times op ("Ping", "Insert", ...) was invoked
func (m *MockRemote) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SetFailures sets the error returned by Ping and by every write
func (m *MockRemote) SetFailures(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingErr = err
	m.InsertErr = err
	m.UpdateErr = err
	m.DeleteErr = err
}

// Seed stores rows directly, bypassing error injection and counters
func (m *MockRemote) Seed(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tableLocked(table)[r.ID()] = r.Clone()
	}
}

// Row returns a copy of a stored row, or nil
func (m *MockRemote) Row(table, id string) Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables[table][id]
	if !ok {
		return nil
	}
	return r.Clone()
}

// Len returns the number of rows stored for a table
func (m *MockRemote) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *MockRemote) tableLocked(table string) map[string]Row {
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]Row)
		m.tables[table] = t
	}
	return t
}

func (m *MockRemote) Ping(ctx context.Context) error {
	if err := m.enter(ctx, "Ping"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *MockRemote) SelectAll(ctx context.Context, table string) ([]Row, error) {
	if err := m.enter(ctx, "SelectAll"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SelectErr[table]; err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		rows = append(rows, r.Clone())
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID() < rows[j].ID() })
	return rows, nil
}

func (m *MockRemote) Insert(ctx context.Context, table string, row Row) error {
	if err := m.enter(ctx, "Insert"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	t := m.tableLocked(table)
	if _, exists := t[row.ID()]; exists {
		return NewBackendError("Insert", 409, "duplicate key").WithTable(table).WithRecordID(row.ID())
	}
	t[row.ID()] = row.Clone()
	return nil
}

func (m *MockRemote) Update(ctx context.Context, table string, id string, row Row) error {
	if err := m.enter(ctx, "Update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	t := m.tableLocked(table)
	existing, ok := t[id]
	if !ok {
		return NewBackendError("Update", 404, "record not found").WithTable(table).WithRecordID(id)
	}
	merged := existing.Clone()
	for k, v := range row {
		merged[k] = v
	}
	t[id] = merged
	return nil
}

func (m *MockRemote) Delete(ctx context.Context, table string, id string) error {
	if err := m.enter(ctx, "Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.tableLocked(table), id)
	return nil
}

func (m *MockRemote) Subscribe(ctx context.Context, table string, handler ChangeHandler) (Subscription, error) {
	if err := m.enter(ctx, "Subscribe"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	sub := &MockSubscription{handler: handler, done: make(chan struct{})}
	m.subs[table] = append(m.subs[table], sub)
	return sub, nil
}

func (m *MockRemote) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, subs := range m.subs {
		for _, s := range subs {
			s.finish(nil)
		}
	}
	return nil
}

// Emit delivers an event to every live subscription on its table
func (m *MockRemote) Emit(event ChangeEvent) {
	m.mu.Lock()
	subs := append([]*MockSubscription(nil), m.subs[event.Table]...)
	m.mu.Unlock()
	for _, s := range subs {
		s.deliver(event)
	}
}

// Subscriptions returns the subscriptions opened for a table, oldest first
func (m *MockRemote) Subscriptions(table string) []*MockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSubscription(nil), m.subs[table]...)
}

// MockSubscription is the Subscription handed out by MockRemote
type MockSubscription struct {
	mu      sync.Mutex
	handler ChangeHandler
	done    chan struct{}
	closed  bool
	err     error
}

func (s *MockSubscription) deliver(event ChangeEvent) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.handler(event)
	}
}

func (s *MockSubscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

// Kill ends the subscription as if the channel had dropped
func (s *MockSubscription) Kill(err error) { s.finish(err) }

func (s *MockSubscription) Done() <-chan struct{} { return s.done }

func (s *MockSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MockSubscription) Close() error {
	s.finish(nil)
	return nil
}
