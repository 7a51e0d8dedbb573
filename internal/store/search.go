package store

import "github.com/tanderapp/tander/internal/model"

// SearchResult holds a cached message with a highlighted search snippet.
type SearchResult struct {
	Message model.Message
	Snippet string
}

// SearchMessages performs a full-text search on message bodies. A
// convID of zero searches every conversation.
func (db *DB) SearchMessages(query string, convID int64, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.conversation_id, m.id, m.sender_id, m.mine, m.body, m.message_type,
		       m.call_kind, m.call_duration_sec, m.call_outcome, m.timestamp, m.status, m.client_ref,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if convID > 0 {
		q += " AND m.conversation_id = ?"
		args = append(args, convID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var msgType, status, callKind, callOutcome string
		var callDuration int
		if err := rows.Scan(
			&r.Message.ConversationID, &r.Message.ID, &r.Message.SenderID, &r.Message.Mine,
			&r.Message.Text, &msgType, &callKind, &callDuration, &callOutcome,
			&r.Message.Timestamp, &status, &r.Message.ClientRef, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.Type = model.MessageType(msgType)
		r.Message.Status = model.Status(status)
		if r.Message.Type == model.MessageCallEvent {
			r.Message.Call = &model.CallInfo{Kind: callKind, DurationSec: callDuration, Outcome: callOutcome}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
