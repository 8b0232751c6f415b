// Package session holds the logged-in clinic user for the lifetime of a login.
// There is no process-wide current user: a Holder is created at login and
// passed to whatever needs to act on the user's behalf.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicsync/backend"
)

var (
	// ErrNotLoggedIn is returned by Current after Logout or before Login
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrUnknownUser is returned when no local user has the username
	ErrUnknownUser = errors.New("unknown user")
)

// UserLookup finds users in the local store
type UserLookup interface {
	QueryOne(ctx context.Context, query string, args ...any) (backend.Row, error)
}

// Holder is the current user of one session
type Holder struct {
	mu      sync.RWMutex
	user    *backend.User
	started time.Time
}

// Login looks up username in the local store and opens a session for it
func Login(ctx context.Context, users UserLookup, username string) (*Holder, error) {
	row, err := users.QueryOne(ctx, "SELECT * FROM users WHERE username = ?", username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, username)
	}

	t, err := backend.LookupTable(backend.TableUsers)
	if err != nil {
		return nil, err
	}
	rec, err := t.Decode(row)
	if err != nil {
		return nil, err
	}
	return New(rec.(*backend.User)), nil
}

// New opens a session for an already loaded user
func New(user *backend.User) *Holder {
	u := *user
	return &Holder{user: &u, started: time.Now()}
}

// Current returns the logged-in user
func (h *Holder) Current() (backend.User, error) {
	if h == nil {
		return backend.User{}, ErrNotLoggedIn
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return backend.User{}, ErrNotLoggedIn
	}
	return *h.user, nil
}

// UserID returns the logged-in user's id, or "" after logout
func (h *Holder) UserID() string {
	u, err := h.Current()
	if err != nil {
		return ""
	}
	return u.ID
}

// Since returns when the session was opened
func (h *Holder) Since() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// Logout clears the session. Safe to call more than once.
func (h *Holder) Logout() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.user = nil
	h.mu.Unlock()
}
