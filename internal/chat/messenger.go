// Package chat is the low-latency write path for direct messages: the local
// store is written first and the remote copy follows in the background.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/events"
	engine "clinicsync/internal/sync"
	"clinicsync/internal/utils"
)

var (
	// ErrMessageNotFound is returned when a message id is not in the local store
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotParticipant is returned when a user acts on a message they neither sent nor received
	ErrNotParticipant = errors.New("user is not a participant of this message")

	// ErrEmptyMessage is returned for a message with neither text nor attachment
	ErrEmptyMessage = errors.New("message has no text or attachment")
)

// Store is the local store as the messenger needs it
type Store interface {
	backend.LocalStore
	QueryAll(ctx context.Context, query string, args ...any) ([]backend.Row, error)
	Tombstone(ctx context.Context, table string, id string, at time.Time) error
	ClearTombstone(ctx context.Context, table string, id string) error
}

// SendOptions holds the optional parts of a message
type SendOptions struct {
	Attachment *string
	ReplyToID  *string
}

// Messenger sends and mutates chat messages
type Messenger struct {
	local  Store
	remote backend.RemoteStore
	prober *engine.Prober
	pub    events.Publisher

	// Background replications
	wg sync.WaitGroup
}

// NewMessenger creates a messenger. A nil remote keeps every message local
// until the next reconciliation with a configured remote.
func NewMessenger(local Store, remote backend.RemoteStore, pub events.Publisher) *Messenger {
	if pub == nil {
		pub = events.Discard
	}
	return &Messenger{
		local:  local,
		remote: remote,
		prober: engine.NewProber(remote),
		pub:    pub,
	}
}

// SendMessage stores a new message locally and returns once it is durable.
// The remote insert happens afterwards in the background; its failure does
// not fail the send.
func (m *Messenger) SendMessage(ctx context.Context, senderID, receiverID, text string, opts SendOptions) (backend.ChatMessage, error) {
	if senderID == "" || receiverID == "" {
		return backend.ChatMessage{}, fmt.Errorf("sender and receiver are required")
	}
	if strings.TrimSpace(text) == "" && (opts.Attachment == nil || *opts.Attachment == "") {
		return backend.ChatMessage{}, ErrEmptyMessage
	}

	msg := backend.ChatMessage{
		Meta:        backend.NewMeta(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		MessageText: text,
		Attachment:  opts.Attachment,
		Status:      backend.StatusUnread,
		ReplyToID:   opts.ReplyToID,
	}

	row, err := backend.EncodeRecord(msg)
	if err != nil {
		return backend.ChatMessage{}, err
	}
	if err := m.local.Upsert(ctx, backend.TableChat, row); err != nil {
		return backend.ChatMessage{}, fmt.Errorf("failed to store message: %w", err)
	}

	// Local echo, whatever happens remotely
	m.pub.Publish(events.Event{
		Name:      events.NewMessage,
		Table:     backend.TableChat,
		EventType: backend.EventInsert,
		Record:    row,
	})

	m.replicate("insert "+msg.ID, func(ctx context.Context) error {
		return m.remote.Insert(ctx, backend.TableChat, row)
	})
	return msg, nil
}

// MarkRead flags a message as read
func (m *Messenger) MarkRead(ctx context.Context, messageID string) (backend.ChatMessage, error) {
	msg, err := m.get(ctx, messageID)
	if err != nil {
		return backend.ChatMessage{}, err
	}
	if msg.Status == backend.StatusRead {
		return msg, nil
	}

	msg.Status = backend.StatusRead
	msg.Modified = backend.NowStamp()
	row, err := backend.EncodeRecord(msg)
	if err != nil {
		return backend.ChatMessage{}, err
	}
	if err := m.local.Upsert(ctx, backend.TableChat, row); err != nil {
		return backend.ChatMessage{}, fmt.Errorf("failed to update message: %w", err)
	}

	m.pub.Publish(events.Event{
		Name:      events.DataUpdate,
		Table:     backend.TableChat,
		EventType: backend.EventUpdate,
		Record:    row,
	})

	patch := backend.Row{"status": msg.Status, "updated_at": msg.Modified}
	m.replicate("mark read "+msg.ID, func(ctx context.Context) error {
		return m.remote.Update(ctx, backend.TableChat, msg.ID, patch)
	})
	return msg, nil
}

// DeleteMessage removes a message. Only its sender or receiver may do so.
// The deletion is remembered until the remote copy is gone, so a sync run
// before then deletes it remotely rather than restoring it.
func (m *Messenger) DeleteMessage(ctx context.Context, messageID, byUserID string) error {
	msg, err := m.get(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.Involves(byUserID) {
		return ErrNotParticipant
	}

	if err := m.local.Tombstone(ctx, backend.TableChat, msg.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	m.pub.Publish(events.Event{
		Name:      events.DataUpdate,
		Table:     backend.TableChat,
		EventType: backend.EventDelete,
		Record:    backend.Row{"id": msg.ID},
	})

	m.replicate("delete "+msg.ID, func(ctx context.Context) error {
		if err := m.remote.Delete(ctx, backend.TableChat, msg.ID); err != nil {
			return err
		}
		return m.local.ClearTombstone(ctx, backend.TableChat, msg.ID)
	})
	return nil
}

// Conversation returns the messages between two users, oldest first
func (m *Messenger) Conversation(ctx context.Context, userA, userB string) ([]backend.ChatMessage, error) {
	rows, err := m.local.QueryAll(ctx, `
		SELECT * FROM chat
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at, rowid`,
		userA, userB, userB, userA,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return decodeMessages(rows)
}

// Unread returns the unread messages addressed to a user, oldest first
func (m *Messenger) Unread(ctx context.Context, userID string) ([]backend.ChatMessage, error) {
	rows, err := m.local.QueryAll(ctx,
		"SELECT * FROM chat WHERE receiver_id = ? AND status = ? ORDER BY created_at, rowid",
		userID, backend.StatusUnread,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load unread messages: %w", err)
	}
	return decodeMessages(rows)
}

// Wait blocks until every background replication has finished
func (m *Messenger) Wait() {
	m.wg.Wait()
}

func (m *Messenger) get(ctx context.Context, messageID string) (backend.ChatMessage, error) {
	row, err := m.local.Get(ctx, backend.TableChat, messageID)
	if err != nil {
		return backend.ChatMessage{}, err
	}
	if row == nil {
		return backend.ChatMessage{}, ErrMessageNotFound
	}
	msgs, err := decodeMessages([]backend.Row{row})
	if err != nil {
		return backend.ChatMessage{}, err
	}
	return msgs[0], nil
}

// replicate pushes one change to the remote in the background. It probes
// first and gives up quietly when offline or on any remote error; the next
// reconciliation pass carries the change instead.
func (m *Messenger) replicate(what string, op func(ctx context.Context) error) {
	if m.remote == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				utils.Errorf("[Chat] panic replicating %s: %v", what, r)
			}
		}()

		// Detached from the caller: the send has already returned
		ctx := context.Background()
		if !m.prober.IsOnline(ctx) {
			utils.Debugf("[Chat] offline, %s left for the next sync", what)
			return
		}
		if err := op(ctx); err != nil {
			utils.Warnf("[Chat] remote %s failed, left for the next sync: %v", what, err)
			return
		}
		utils.Debugf("[Chat] replicated %s", what)
	}()
}

func decodeMessages(rows []backend.Row) ([]backend.ChatMessage, error) {
	t, err := backend.LookupTable(backend.TableChat)
	if err != nil {
		return nil, err
	}
	out := make([]backend.ChatMessage, 0, len(rows))
	for _, row := range rows {
		rec, err := t.Decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec.(*backend.ChatMessage))
	}
	return out, nil
}
