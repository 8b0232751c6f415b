package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"clinicsync/backend"
	backendsync "clinicsync/backend/sync"
	"clinicsync/internal/events"
	engine "clinicsync/internal/sync"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// TestNewModel verifies model initialization
func TestNewModel(t *testing.T) {
	m := newModel(Options{})
	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d", m.width, m.height)
	}
	if m.syncing || m.probed {
		t.Error("fresh model should be idle and unprobed")
	}
	if m.Init() == nil {
		t.Error("Init should start the spinner")
	}
}

func TestUpdate_Quit(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		updated, cmd := newModel(Options{}).Update(k)
		m := updated.(watchModel)
		if !m.quitting {
			t.Errorf("%s did not quit", k)
		}
		if cmd == nil {
			t.Errorf("%s returned no quit command", k)
		}
		if m.View() != "" {
			t.Error("View should be empty after quitting")
		}
	}
}

// TestUpdate_ManualSync tests that s runs one pass and ignores repeats while syncing
func TestUpdate_ManualSync(t *testing.T) {
	calls := 0
	opts := Options{Sync: func(context.Context) engine.SyncReport {
		calls++
		return engine.SyncReport{Success: true, Results: []backendsync.TableResult{
			{Table: backend.TableUsers, Uploaded: 2},
			{Table: backend.TableChat, Downloaded: 1, Err: errors.New("boom")},
		}}
	}}

	updated, cmd := newModel(opts).Update(key("s"))
	m := updated.(watchModel)
	if !m.syncing || cmd == nil {
		t.Fatal("s should start a sync")
	}

	again, cmd2 := m.Update(key("s"))
	if cmd2 != nil {
		t.Error("second s while syncing should do nothing")
	}
	m = again.(watchModel)

	msg := cmd()
	updated, _ = m.Update(msg)
	m = updated.(watchModel)
	if calls != 1 {
		t.Errorf("Sync called %d times", calls)
	}
	if m.syncing {
		t.Error("syncing should clear after the report")
	}
	if m.last == nil || !m.online {
		t.Error("successful report should be recorded and mark online")
	}
	view := m.View()
	if !strings.Contains(view, "2 up, 1 down") || !strings.Contains(view, "failed: chat") {
		t.Errorf("view missing report:\n%s", view)
	}
}

func TestUpdate_OfflineReport(t *testing.T) {
	m := newModel(Options{})
	updated, _ := m.Update(syncDoneMsg(engine.SyncReport{Success: false, Message: engine.MsgOffline}))
	m = updated.(watchModel)
	if m.online || !m.probed {
		t.Error("offline report should mark the model offline")
	}
	if !strings.Contains(m.View(), "sync skipped: offline") {
		t.Errorf("view:\n%s", m.View())
	}
}

// TestUpdate_Events tests that bus events are rendered and the next read is queued
func TestUpdate_Events(t *testing.T) {
	ch := make(chan events.Event, 2)
	m := newModel(Options{Events: ch})

	ch <- events.Event{Name: events.DataUpdate, Table: backend.TablePatients, EventType: backend.EventInsert, Record: backend.Row{"id": "p-9"}}
	msg := m.waitEvent()()
	updated, cmd := m.Update(msg)
	m = updated.(watchModel)
	if cmd == nil {
		t.Error("expected the next event read to be queued")
	}

	updated, _ = m.Update(eventMsg(events.Event{Name: events.NewMessage, Record: backend.Row{"sender_id": "a", "receiver_id": "b", "message_text": "results ready"}}))
	m = updated.(watchModel)

	view := m.View()
	if !strings.Contains(view, "INSERT  patients/p-9") {
		t.Errorf("data update missing:\n%s", view)
	}
	if !strings.Contains(view, "results ready") {
		t.Errorf("chat message missing:\n%s", view)
	}

	close(ch)
	if _, ok := m.waitEvent()().(eventsClosedMsg); !ok {
		t.Error("closed channel should yield eventsClosedMsg")
	}
}

// TestUpdate_SyncCompleteEvents tests auto-sync reports and the manual-pass duplicate filter
func TestUpdate_SyncCompleteEvents(t *testing.T) {
	report := engine.SyncReport{Success: true, Results: []backendsync.TableResult{{Table: backend.TableTests, Downloaded: 3}}}
	ev := eventMsg(events.Event{Name: events.SyncComplete, Payload: report})

	m := newModel(Options{})
	updated, _ := m.Update(ev)
	m = updated.(watchModel)
	if m.last == nil {
		t.Error("auto-sync report should be recorded")
	}
	if !strings.Contains(m.View(), "0 up, 3 down") {
		t.Errorf("view missing auto-sync report:\n%s", m.View())
	}

	busy := newModel(Options{})
	busy.syncing = true
	updated, _ = busy.Update(ev)
	busy = updated.(watchModel)
	if len(busy.lines) != 0 {
		t.Errorf("report of a manual pass should not be logged twice, got %v", busy.lines)
	}
}

func TestUpdate_Online(t *testing.T) {
	m := newModel(Options{User: "amina"})
	if !strings.Contains(m.View(), "checking") {
		t.Error("unprobed view should say checking")
	}
	updated, cmd := m.Update(onlineMsg(true))
	m = updated.(watchModel)
	if cmd == nil {
		t.Error("probe result should schedule the next probe")
	}
	view := m.View()
	if !strings.Contains(view, "online") || !strings.Contains(view, "as amina") {
		t.Errorf("view:\n%s", view)
	}
}

func TestLogIsBounded(t *testing.T) {
	m := newModel(Options{})
	for i := 0; i < maxLogLines+50; i++ {
		m.appendLine("x")
	}
	if len(m.lines) != maxLogLines {
		t.Errorf("lines = %d, want %d", len(m.lines), maxLogLines)
	}
}

func TestShort(t *testing.T) {
	id := backend.NewID()
	if got := short(id); got != id[:8] {
		t.Errorf("short(uuid) = %q", got)
	}
	if got := short("3"); got != "3" {
		t.Errorf("short(3) = %q", got)
	}
}
