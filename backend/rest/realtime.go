package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"clinicsync/backend"

	"github.com/coder/websocket"
)

// phoenixMessage is one frame of the realtime channel protocol
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type changePayload struct {
	Record    backend.Row `json:"record"`
	OldRecord backend.Row `json:"old_record"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

func topicFor(table string) string {
	return "realtime:public:" + table
}

// realtimeURL maps http(s)://host/base to ws(s)://host/base/realtime/v1/websocket
func (c *Client) realtimeURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.baseURL.Path + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {c.accessKey}, "vsn": {"1.0.0"}}.Encode()
	return u.String()
}

// Subscribe opens a realtime socket, joins the table's channel and delivers
// INSERT, UPDATE and DELETE events to handler until ctx ends or Close is called.
func (c *Client) Subscribe(ctx context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	if _, err := backend.LookupTable(table); err != nil {
		return nil, err
	}
	if c.KeyExpired() {
		return nil, backend.NewBackendError("Subscribe", 0, "access key expired").WithTable(table)
	}

	conn, _, err := websocket.Dial(ctx, c.realtimeURL(), nil)
	if err != nil {
		return nil, backend.NewBackendError("Subscribe", 0, "").WithTable(table).WithError(err)
	}
	conn.SetReadLimit(1 << 20)

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client:  c,
		conn:    conn,
		table:   table,
		topic:   topicFor(table),
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if err := s.join(subCtx, c.JoinTimeout); err != nil {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil, backend.NewBackendError("Subscribe", 0, "").WithTable(table).WithError(err)
	}

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	s.wg.Add(2)
	go s.readLoop(subCtx)
	go s.heartbeat(subCtx, c.HeartbeatInterval)
	go func() {
		s.wg.Wait()
		c.mu.Lock()
		delete(c.subs, s)
		c.mu.Unlock()
		close(s.done)
	}()
	return s, nil
}

type subscription struct {
	client  *Client
	conn    *websocket.Conn
	table   string
	topic   string
	handler backend.ChangeHandler
	cancel  context.CancelFunc

	ref atomic.Int64

	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
	closing atomic.Bool
	mu      sync.Mutex
	err     error
}

func (s *subscription) nextRef() string {
	return strconv.FormatInt(s.ref.Add(1), 10)
}

func (s *subscription) send(ctx context.Context, topic, event string) (string, error) {
	ref := s.nextRef()
	data, err := json.Marshal(phoenixMessage{
		Topic:   topic,
		Event:   event,
		Payload: json.RawMessage(`{}`),
		Ref:     &ref,
	})
	if err != nil {
		return "", err
	}
	return ref, s.conn.Write(ctx, websocket.MessageText, data)
}

// join sends phx_join and waits for an ok reply
func (s *subscription) join(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ref, err := s.send(ctx, s.topic, "phx_join")
	if err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("no join reply: %w", err)
		}
		var msg phoenixMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event != "phx_reply" || msg.Ref == nil || *msg.Ref != ref {
			continue
		}
		var reply replyPayload
		_ = json.Unmarshal(msg.Payload, &reply)
		if reply.Status != "ok" {
			return fmt.Errorf("join %s rejected: %s %s", s.topic, reply.Status, string(reply.Response))
		}
		return nil
	}
}

func (s *subscription) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.finish(fmt.Errorf("realtime channel %s closed: %w", s.topic, err))
			return
		}
		var msg phoenixMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Topic != s.topic {
			continue
		}
		switch msg.Event {
		case string(backend.EventInsert), string(backend.EventUpdate), string(backend.EventDelete):
			s.dispatch(msg)
		case "phx_error", "phx_close":
			s.finish(fmt.Errorf("realtime channel %s ended by server: %s", s.topic, msg.Event))
			return
		}
	}
}

func (s *subscription) dispatch(msg phoenixMessage) {
	var p changePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return
	}
	kind := backend.EventKind(msg.Event)
	record := p.Record
	if kind == backend.EventDelete && record.ID() == "" {
		record = p.OldRecord
	}
	if record.ID() == "" {
		return
	}
	s.handler(backend.ChangeEvent{Table: s.table, Kind: kind, Record: record})
}

func (s *subscription) heartbeat(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.send(ctx, "phoenix", "heartbeat"); err != nil {
				s.finish(fmt.Errorf("heartbeat failed on %s: %w", s.topic, err))
				return
			}
		}
	}
}

// finish records why the feed ended and tears the socket down
func (s *subscription) finish(err error) {
	s.once.Do(func() {
		if !s.closing.Load() {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close leaves the channel and waits for the feed goroutines to exit
func (s *subscription) Close() error {
	s.closing.Store(true)
	s.finish(nil)
	<-s.done
	return nil
}
