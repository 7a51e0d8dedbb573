package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tanderapp/tander/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func cachedMsg(convID int64, id string, ts int64, body string) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       2,
		Text:           body,
		Type:           model.MessageText,
		Timestamp:      ts,
		Status:         model.StatusSent,
	}
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + search)", result.Version)
	}
}

// TestMigrateSchemaHasRequiredColumns verifies the migration creates all
// columns the sync engine depends on.
func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert conversation", "INSERT INTO conversations (id, peer_id, peer_name, last_message, last_message_at, unread_count) VALUES (?, ?, ?, ?, ?, ?)", []any{1, 2, "Rosa", "hi", 1000, 0}},
		{"insert message", "INSERT INTO messages (conversation_id, id, sender_id, mine, body, message_type, timestamp, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", []any{1, "m1", 2, false, "hello", "text", 1000, "sent"}},
		{"set sync state", "INSERT INTO sync_state (key, value) VALUES (?, ?)", []any{"conv-1.high_water", "1000"}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}

	// Verify FTS5 works.
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages_fts WHERE messages_fts MATCH 'hello'").Scan(&count)
	if err != nil {
		t.Fatalf("FTS5 query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("FTS5 count = %d, want 1", count)
	}
}

func TestConversationUpsertAndList(t *testing.T) {
	db := testDB(t)

	c := model.Conversation{
		ID:            1,
		Peer:          model.User{ID: 2, Name: "Rosa", Age: 61, City: "Cebu City"},
		LastMessage:   "kumusta",
		LastMessageAt: 1000,
		UnreadCount:   1,
	}
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}

	c.LastMessage = "kain tayo"
	c.LastMessageAt = 2000
	c.UnreadCount = 0
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	got := convs[0]
	if got.LastMessage != "kain tayo" || got.UnreadCount != 0 || got.Peer.Name != "Rosa" {
		t.Errorf("upsert did not update row: %+v", got)
	}
}

func TestListConversationsOrderAndPlaceholders(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(model.Conversation{ID: 1, Peer: model.User{ID: 2, Name: "Rosa"}, LastMessageAt: 100}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(model.Conversation{ID: 2, Peer: model.User{ID: 3, Name: "Lito"}, LastMessageAt: 300}); err != nil {
		t.Fatal(err)
	}
	// A touched-but-never-snapshotted row has no peer yet.
	if err := db.TouchConversation(3, "hello?", 200); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d rows, want 2 (placeholder filtered)", len(convs))
	}
	if convs[0].ID != 2 || convs[1].ID != 1 {
		t.Errorf("order = [%d %d], want [2 1]", convs[0].ID, convs[1].ID)
	}
}

func TestTouchConversationKeepsNewerPreview(t *testing.T) {
	db := testDB(t)

	if err := db.TouchConversation(1, "newer", 2000); err != nil {
		t.Fatal(err)
	}
	// Replaying an older batch must not clobber the preview.
	if err := db.TouchConversation(1, "older", 1000); err != nil {
		t.Fatal(err)
	}

	var preview string
	var at int64
	if err := db.QueryRow("SELECT last_message, last_message_at FROM conversations WHERE id = 1").Scan(&preview, &at); err != nil {
		t.Fatal(err)
	}
	if preview != "newer" || at != 2000 {
		t.Errorf("preview = %q at %d, want newer at 2000", preview, at)
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	m := cachedMsg(1, "m1", 1000, "hello")
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Text = "hello updated"
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(1, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Text != "hello updated" {
		t.Errorf("body = %q, want hello updated", msgs[0].Text)
	}
}

func TestMessageUpsertRejectsProvisionalID(t *testing.T) {
	db := testDB(t)

	m := cachedMsg(1, "temp-1700000000000", 1000, "not yet confirmed")
	m.Status = model.StatusSending
	if err := db.UpsertMessage(m); !errors.Is(err, ErrProvisionalID) {
		t.Fatalf("err = %v, want ErrProvisionalID", err)
	}
}

func TestCachedStatusNeverRegresses(t *testing.T) {
	db := testDB(t)

	m := cachedMsg(1, "m1", 1000, "hi")
	m.Mine = true
	m.Status = model.StatusRead
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	// A stale page still says "sent".
	m.Status = model.StatusSent
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if msgs[0].Status != model.StatusRead {
		t.Errorf("status = %s after stale upsert, want read", msgs[0].Status)
	}
}

func TestMarkMessageDelivered(t *testing.T) {
	db := testDB(t)

	sent := cachedMsg(1, "m1", 1000, "a")
	sent.Mine = true
	if err := db.UpsertMessage(sent); err != nil {
		t.Fatal(err)
	}
	read := cachedMsg(1, "m2", 2000, "b")
	read.Mine = true
	read.Status = model.StatusRead
	if err := db.UpsertMessage(read); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkMessageDelivered(1, "m1"); err != nil {
		t.Fatal(err)
	}
	// Late delivery receipt for an already-read message is a no-op.
	if err := db.MarkMessageDelivered(1, "m2"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]model.Status{}
	for _, m := range msgs {
		byID[m.ID] = m.Status
	}
	if byID["m1"] != model.StatusDelivered {
		t.Errorf("m1 status = %s, want delivered", byID["m1"])
	}
	if byID["m2"] != model.StatusRead {
		t.Errorf("m2 status = %s, want read", byID["m2"])
	}
}

func TestMarkConversationRead(t *testing.T) {
	db := testDB(t)

	mine := cachedMsg(1, "m1", 1000, "a")
	mine.Mine = true
	if err := db.UpsertMessage(mine); err != nil {
		t.Fatal(err)
	}
	theirs := cachedMsg(1, "m2", 2000, "b")
	if err := db.UpsertMessage(theirs); err != nil {
		t.Fatal(err)
	}
	otherConv := cachedMsg(2, "m3", 3000, "c")
	otherConv.Mine = true
	if err := db.UpsertMessage(otherConv); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkConversationRead(1); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages(1, 0, 10)
	for _, m := range msgs {
		if m.ID == "m1" && m.Status != model.StatusRead {
			t.Errorf("own message status = %s, want read", m.Status)
		}
		if m.ID == "m2" && m.Status != model.StatusSent {
			t.Errorf("peer message status = %s, want sent untouched", m.Status)
		}
	}
	other, _ := db.ListMessages(2, 0, 10)
	if other[0].Status != model.StatusSent {
		t.Errorf("other conversation status = %s, want sent", other[0].Status)
	}
}

func TestListMessagesKeysetPagination(t *testing.T) {
	db := testDB(t)

	for i := 1; i <= 5; i++ {
		m := cachedMsg(1, string(rune('a'+i-1)), int64(i*100), "msg")
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	newest, err := db.ListMessages(1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 2 || newest[0].Timestamp != 500 || newest[1].Timestamp != 400 {
		t.Fatalf("newest page wrong: %+v", newest)
	}

	older, err := db.ListMessages(1, newest[1].Timestamp, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 || older[0].Timestamp != 300 || older[1].Timestamp != 200 {
		t.Fatalf("older page wrong: %+v", older)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(cachedMsg(1, "m1", 1000, "tara kain tayo sa labas")); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(cachedMsg(1, "m2", 2000, "sige po salamat")); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(cachedMsg(2, "m3", 3000, "kain na tayo mamaya")); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("kain", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results across conversations, want 2", len(results))
	}

	scoped, err := db.SearchMessages("kain", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].Message.ID != "m1" {
		t.Fatalf("scoped search wrong: %+v", scoped)
	}
	if scoped[0].Snippet == "" {
		t.Error("snippet missing")
	}
}

func TestSearchReflectsUpdatedBody(t *testing.T) {
	// The FTS triggers must track updates, or stale text keeps matching.
	db := testDB(t)

	if err := db.UpsertMessage(cachedMsg(1, "m1", 1000, "original wording")); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(cachedMsg(1, "m1", 1000, "edited wording")); err != nil {
		t.Fatal(err)
	}

	stale, err := db.SearchMessages("original", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale text still matches: %+v", stale)
	}
	fresh, err := db.SearchMessages("edited", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 {
		t.Fatalf("edited text not indexed: %+v", fresh)
	}
}
