package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"clinicsync/backend"
	"clinicsync/backend/sqlite"
)

func createTestStore(t *testing.T) (*sqlite.Store, func()) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "clinic.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store, func() { store.Close() }
}

func seedUser(t *testing.T, store *sqlite.Store, username string) backend.User {
	t.Helper()
	u := backend.User{Meta: backend.NewMeta(), Username: username, FullName: "Dr " + username, Role: "doctor"}
	row, err := backend.EncodeRecord(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.Upsert(context.Background(), backend.TableUsers, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return u
}

// TestLoginLogout tests the session lifecycle
func TestLoginLogout(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	want := seedUser(t, store, "amina")

	h, err := Login(context.Background(), store, "amina")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	got, err := h.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if got.ID != want.ID || got.Role != "doctor" {
		t.Errorf("Current() = %+v", got)
	}
	if h.UserID() != want.ID {
		t.Errorf("UserID() = %q", h.UserID())
	}
	if h.Since().IsZero() {
		t.Error("Since() should be set")
	}

	h.Logout()
	h.Logout()
	if _, err := h.Current(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Current after logout = %v", err)
	}
	if h.UserID() != "" {
		t.Error("UserID should be empty after logout")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()

	if _, err := Login(context.Background(), store, "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Login(ghost) = %v, want ErrUnknownUser", err)
	}
}

func TestNilHolder(t *testing.T) {
	var h *Holder
	if _, err := h.Current(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("nil holder Current = %v", err)
	}
	h.Logout()
}

// TestNewCopiesUser tests that the holder does not alias the caller's struct
func TestNewCopiesUser(t *testing.T) {
	u := &backend.User{Meta: backend.NewMeta(), Username: "kofi"}
	h := New(u)
	u.Username = "changed"
	got, _ := h.Current()
	if got.Username != "kofi" {
		t.Errorf("holder aliased the user: %q", got.Username)
	}
}
