package store

import (
	"database/sql"
	"time"

	"github.com/tanderapp/tander/internal/model"
)

// UpsertConversation inserts or updates an inbox row.
func (db *DB) UpsertConversation(c model.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, peer_id, peer_name, peer_age, peer_city, peer_photo_url, last_message, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			peer_id = excluded.peer_id,
			peer_name = excluded.peer_name,
			peer_age = excluded.peer_age,
			peer_city = excluded.peer_city,
			peer_photo_url = excluded.peer_photo_url,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, c.Peer.ID, c.Peer.Name, c.Peer.Age, c.Peer.City, c.Peer.PhotoURL,
		c.LastMessage, c.LastMessageAt, c.UnreadCount, now)
	return err
}

// TouchConversation bumps a row's preview from an arriving message,
// creating a placeholder row when the conversation is new. Peer fields
// are left alone; the next snapshot upsert fills them. The preview only
// moves forward in time, so replaying an old batch cannot clobber a
// newer one.
func (db *DB) TouchConversation(convID int64, preview string, at int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, last_message, last_message_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message ELSE conversations.last_message END,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		convID, preview, at, now)
	return err
}

// ListConversations returns inbox rows sorted by last activity, newest
// first. Placeholder rows that never saw a snapshot (no peer yet) are
// skipped; they would render as empty cards.
func (db *DB) ListConversations() ([]model.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, peer_id, peer_name, peer_age, peer_city, peer_photo_url, last_message, last_message_at, unread_count
		FROM conversations
		WHERE peer_name != ''
		ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.Peer.ID, &c.Peer.Name, &c.Peer.Age, &c.Peer.City,
			&c.Peer.PhotoURL, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single row by id, nil when absent.
func (db *DB) GetConversation(convID int64) (*model.Conversation, error) {
	var c model.Conversation
	err := db.QueryRow(`
		SELECT id, peer_id, peer_name, peer_age, peer_city, peer_photo_url, last_message, last_message_at, unread_count
		FROM conversations
		WHERE id = ?`, convID).
		Scan(&c.ID, &c.Peer.ID, &c.Peer.Name, &c.Peer.Age, &c.Peer.City,
			&c.Peer.PhotoURL, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
