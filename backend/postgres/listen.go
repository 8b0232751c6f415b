package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"clinicsync/backend"

	"github.com/jackc/pgx/v5"
)

type notification struct {
	Table  string      `json:"table"`
	Type   string      `json:"type"`
	Record backend.Row `json:"record"`
}

// listener owns one dedicated connection that LISTENs on NotifyChannel
// and fans notifications out to per-table subscriptions
type listener struct {
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	subs map[*subscription]struct{}
	dead bool
}

// Subscribe delivers change events for table until ctx ends, Close is called,
// or the listening connection is lost
func (c *Client) Subscribe(ctx context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	if _, err := backend.LookupTable(table); err != nil {
		return nil, err
	}
	ln, err := c.listener(ctx)
	if err != nil {
		return nil, wrap("Subscribe", table, "", err)
	}

	s := &subscription{ln: ln, table: table, handler: handler, done: make(chan struct{})}
	ln.mu.Lock()
	if ln.dead {
		ln.mu.Unlock()
		return nil, backend.NewBackendError("Subscribe", 0, "listener connection lost").WithTable(table)
	}
	ln.subs[s] = struct{}{}
	ln.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.end(nil)
		case <-s.done:
		}
	}()
	return s, nil
}

// listener returns the running listener, starting a new one if there is none
func (c *Client) listener(ctx context.Context) (*listener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ln != nil {
		c.ln.mu.Lock()
		dead := c.ln.dead
		c.ln.mu.Unlock()
		if !dead {
			return c.ln, nil
		}
	}

	conn, err := pgx.ConnectConfig(ctx, c.pool.Config().ConnConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to open listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	lnCtx, cancel := context.WithCancel(context.Background())
	ln := &listener{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[*subscription]struct{}),
	}
	go ln.run(lnCtx)
	c.ln = ln
	return ln, nil
}

func (l *listener) run(ctx context.Context) {
	defer close(l.done)
	defer l.conn.Close(context.Background())
	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.stop(nil)
			} else {
				l.stop(fmt.Errorf("listen connection lost: %w", err))
			}
			return
		}
		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil || msg.Record.ID() == "" {
			continue
		}
		ev := backend.ChangeEvent{Table: msg.Table, Kind: backend.EventKind(msg.Type), Record: msg.Record}

		l.mu.Lock()
		targets := make([]*subscription, 0, len(l.subs))
		for s := range l.subs {
			if s.table == msg.Table {
				targets = append(targets, s)
			}
		}
		l.mu.Unlock()
		for _, s := range targets {
			s.handler(ev)
		}
	}
}

// stop ends every subscription with err. run closes the connection on its way out.
func (l *listener) stop(err error) {
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		return
	}
	l.dead = true
	subs := l.subs
	l.subs = make(map[*subscription]struct{})
	l.mu.Unlock()

	l.cancel()
	for s := range subs {
		s.end(err)
	}
}

func (l *listener) remove(s *subscription) {
	l.mu.Lock()
	delete(l.subs, s)
	l.mu.Unlock()
}

type subscription struct {
	ln      *listener
	table   string
	handler backend.ChangeHandler
	done    chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.ln.remove(s)
		close(s.done)
	})
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.end(nil)
	return nil
}
