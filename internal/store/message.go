package store

import (
	"errors"
	"time"

	"github.com/tanderapp/tander/internal/model"
)

// ErrProvisionalID rejects caching a message that still carries a
// locally minted placeholder id.
var ErrProvisionalID = errors.New("store: refusing to cache a provisional message")

// UpsertMessage inserts or updates a confirmed message (idempotent on
// conversation_id + id). Replaying a stale page cannot move a message's
// delivery status backwards.
func (db *DB) UpsertMessage(m model.Message) error {
	if model.IsTempID(m.ID) {
		return ErrProvisionalID
	}
	var callKind, callOutcome string
	var callDuration int
	if m.Call != nil {
		callKind = m.Call.Kind
		callDuration = m.Call.DurationSec
		callOutcome = m.Call.Outcome
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, id, sender_id, mine, body, message_type, call_kind, call_duration_sec, call_outcome, timestamp, status, client_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, id) DO UPDATE SET
			body = excluded.body,
			status = CASE
				WHEN messages.status = 'read' THEN messages.status
				WHEN messages.status = 'delivered' AND excluded.status IN ('sending', 'sent') THEN messages.status
				ELSE excluded.status
			END`,
		m.ConversationID, m.ID, m.SenderID, m.Mine, m.Text, string(m.Type),
		callKind, callDuration, callOutcome, m.Timestamp, string(m.Status), m.ClientRef, now)
	return err
}

// ListMessages returns messages for a conversation using keyset
// pagination by timestamp, newest first.
func (db *DB) ListMessages(convID int64, beforeTS int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTS <= 0 {
		beforeTS = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, id, sender_id, mine, body, message_type, call_kind, call_duration_sec, call_outcome, timestamp, status, client_ref
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, convID, beforeTS, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessageDelivered advances one cached message from sent to
// delivered. Any other current status leaves the row untouched.
func (db *DB) MarkMessageDelivered(convID int64, msgID string) error {
	_, err := db.Exec(`
		UPDATE messages SET status = 'delivered'
		WHERE conversation_id = ? AND id = ? AND status = 'sent'`,
		convID, msgID)
	return err
}

// MarkConversationRead bulk-advances the account's own messages in a
// conversation to read, mirroring a read receipt.
func (db *DB) MarkConversationRead(convID int64) error {
	_, err := db.Exec(`
		UPDATE messages SET status = 'read'
		WHERE conversation_id = ? AND mine = 1 AND status IN ('sent', 'delivered')`,
		convID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (model.Message, error) {
	var m model.Message
	var msgType, status, callKind, callOutcome string
	var callDuration int
	if err := r.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.Mine, &m.Text, &msgType,
		&callKind, &callDuration, &callOutcome, &m.Timestamp, &status, &m.ClientRef); err != nil {
		return model.Message{}, err
	}
	m.Type = model.MessageType(msgType)
	m.Status = model.Status(status)
	if m.Type == model.MessageCallEvent {
		m.Call = &model.CallInfo{Kind: callKind, DurationSec: callDuration, Outcome: callOutcome}
	}
	return m, nil
}
