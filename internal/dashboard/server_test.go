package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/events"

	"github.com/coder/websocket"
)

func createTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	s := NewServer(Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s, func() { s.Stop() }
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	var hello events.Event
	readEvent(t, conn, &hello)
	if hello.Name != "hello" {
		t.Fatalf("first message = %+v", hello)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, ev *events.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		t.Fatalf("bad JSON %s: %v", data, err)
	}
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", s.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestFanOut tests that a bus event reaches every connected client
func TestFanOut(t *testing.T) {
	s, cleanup := createTestServer(t)
	defer cleanup()

	bus := events.NewBus()
	defer bus.Close()
	s.Attach(bus)

	a := dial(t, s)
	defer a.Close(websocket.StatusNormalClosure, "")
	b := dial(t, s)
	defer b.Close(websocket.StatusNormalClosure, "")
	waitClients(t, s, 2)

	bus.Publish(events.Event{
		Name:      events.DataUpdate,
		Table:     backend.TablePatients,
		EventType: backend.EventUpdate,
		Record:    backend.Row{"id": "p-1"},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		var ev events.Event
		readEvent(t, conn, &ev)
		if ev.Name != events.DataUpdate || ev.Table != backend.TablePatients || ev.Record.ID() != "p-1" {
			t.Errorf("received %+v", ev)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	s, cleanup := createTestServer(t)
	defer cleanup()

	conn := dial(t, s)
	waitClients(t, s, 1)
	conn.Close(websocket.StatusNormalClosure, "bye")
	waitClients(t, s, 0)
}

func TestHealth(t *testing.T) {
	s, cleanup := createTestServer(t)
	defer cleanup()

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := NewServer(Config{Logger: log.New(io.Discard, "", 0)})
	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
