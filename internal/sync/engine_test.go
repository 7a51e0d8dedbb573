package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func confirmed(convID int64, id string, ts int64, body string) model.Message {
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

func TestEngineIngestMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())

	ch, unsub := b.Subscribe("cache.", 10)
	defer unsub()

	if err := e.IngestMessage(confirmed(1, "m1", 1000, "hello")); err != nil {
		t.Fatal(err)
	}

	// Verify the conversation row was auto-created.
	conv, err := db.GetConversation(1)
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil {
		t.Fatal("conversation row not created")
	}
	if conv.LastMessage != "hello" || conv.LastMessageAt != 1000 {
		t.Errorf("preview = %q at %d, want hello at 1000", conv.LastMessage, conv.LastMessageAt)
	}

	// Verify the message stored.
	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Errorf("got %d messages, want 1 with body=hello", len(msgs))
	}

	// Verify the bus event published.
	select {
	case evt := <-ch:
		if evt.Kind != "cache.message_upserted" {
			t.Errorf("event kind = %q, want cache.message_upserted", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cache.message_upserted event")
	}
}

func TestEngineIngestMessageIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	m := confirmed(1, "m1", 1000, "v1")
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Text = "v2"
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Text != "v2" {
		t.Errorf("body = %q, want v2 (updated)", msgs[0].Text)
	}
}

func TestEngineSkipsProvisionalMessage(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	m := confirmed(1, model.NewTempID(time.Now()), 1000, "optimistic")
	m.Status = model.StatusSending
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("provisional message reached the cache: %+v", msgs)
	}
}

func TestEngineIngestHistoryBatch(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())

	ch, unsub := b.Subscribe("cache.history_mirrored", 10)
	defer unsub()

	batch := model.HistoryBatch{
		ConversationID: 1,
		Messages: []model.Message{
			confirmed(1, "m3", 3000, "three"),
			confirmed(1, "m1", 1000, "one"),
			confirmed(1, "m2", 2000, "two"),
		},
	}
	if err := e.IngestHistoryBatch(batch); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	// The preview comes from the newest message regardless of batch order.
	conv, err := db.GetConversation(1)
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil || conv.LastMessage != "three" || conv.LastMessageAt != 3000 {
		t.Errorf("conversation = %+v, want preview three at 3000", conv)
	}

	high, err := NewReconciler(db, zap.NewNop()).Watermark(1)
	if err != nil {
		t.Fatal(err)
	}
	if high != 3000 {
		t.Errorf("watermark = %d, want 3000", high)
	}

	select {
	case evt := <-ch:
		if evt.Kind != "cache.history_mirrored" {
			t.Errorf("event kind = %q, want cache.history_mirrored", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cache.history_mirrored event")
	}
}

func TestEngineHistoryBatchIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	batch := model.HistoryBatch{
		ConversationID: 1,
		Messages:       []model.Message{confirmed(1, "m1", 1000, "hello")},
	}

	// Ingest twice.
	if err := e.IngestHistoryBatch(batch); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestHistoryBatch(batch); err != nil {
		t.Fatal(err)
	}

	stored, _ := db.ListMessages(1, 0, 10)
	if len(stored) != 1 {
		t.Errorf("got %d messages, want 1 (idempotent batch)", len(stored))
	}
}

func TestEngineHistoryBatchSkipsProvisional(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	pending := confirmed(1, model.NewTempID(time.Now()), 2000, "not yet")
	pending.Status = model.StatusSending
	batch := model.HistoryBatch{
		ConversationID: 1,
		Messages:       []model.Message{confirmed(1, "m1", 1000, "hello"), pending},
	}
	if err := e.IngestHistoryBatch(batch); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages(1, 0, 10)
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("got %+v, want only m1 cached", msgs)
	}
}

// TestEngineWatermarkOnlyAdvances replays an older page after a newer one,
// the normal order during backward pagination.
func TestEngineWatermarkOnlyAdvances(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	newer := model.HistoryBatch{ConversationID: 1, Messages: []model.Message{confirmed(1, "m2", 3000, "new")}}
	older := model.HistoryBatch{ConversationID: 1, Messages: []model.Message{confirmed(1, "m1", 1000, "old")}}
	if err := e.IngestHistoryBatch(newer); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestHistoryBatch(older); err != nil {
		t.Fatal(err)
	}

	high, err := NewReconciler(db, zap.NewNop()).Watermark(1)
	if err != nil {
		t.Fatal(err)
	}
	if high != 3000 {
		t.Errorf("watermark = %d after older page, want 3000", high)
	}

	// The preview must also stay on the newer message.
	conv, _ := db.GetConversation(1)
	if conv.LastMessage != "new" {
		t.Errorf("preview = %q after older page, want new", conv.LastMessage)
	}
}

func TestReconcilerCheckpoints(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, zap.NewNop())

	if ts, err := r.Watermark(9); err != nil || ts != 0 {
		t.Fatalf("fresh watermark = %d, %v, want 0, nil", ts, err)
	}
	if err := r.UpdateCheckpoint("inbox.last_refresh", "12345"); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetCheckpoint("inbox.last_refresh")
	if err != nil {
		t.Fatal(err)
	}
	if got != "12345" {
		t.Errorf("checkpoint = %q, want 12345", got)
	}
}

// TestEngineBusSubscription verifies the engine processes events from the
// bus: the controllers publish, the cache follows.
func TestEngineBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())

	ctx := context.Background()
	e.Start(ctx)
	defer e.Stop()

	// A pushed message, as the gateway publishes it.
	mine := confirmed(5, "bm1", 5000, "from bus")
	mine.Mine = true
	mine.SenderID = 1
	b.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: mine})

	// Give the engine time to process.
	time.Sleep(100 * time.Millisecond)

	msgs, err := db.ListMessages(5, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "from bus" {
		t.Fatalf("got %d messages, want 1 with body 'from bus'", len(msgs))
	}

	// A delivery receipt for it.
	b.Publish(bus.Event{Kind: "chat.receipt", Timestamp: time.Now(), Payload: model.Receipt{
		Kind: model.ReceiptDelivered, ConversationID: 5, MessageID: "bm1", UserID: 2,
	}})
	time.Sleep(100 * time.Millisecond)

	msgs, _ = db.ListMessages(5, 0, 10)
	if msgs[0].Status != model.StatusDelivered {
		t.Errorf("status = %s after delivery receipt, want delivered", msgs[0].Status)
	}

	// A read receipt for the whole conversation.
	b.Publish(bus.Event{Kind: "chat.receipt", Timestamp: time.Now(), Payload: model.Receipt{
		Kind: model.ReceiptRead, ConversationID: 5, UserID: 2,
	}})
	time.Sleep(100 * time.Millisecond)

	msgs, _ = db.ListMessages(5, 0, 10)
	if msgs[0].Status != model.StatusRead {
		t.Errorf("status = %s after read receipt, want read", msgs[0].Status)
	}

	// An inbox snapshot fills in peer details.
	b.Publish(bus.Event{Kind: "conv.snapshot", Timestamp: time.Now(), Payload: []model.Conversation{
		{ID: 5, Peer: model.User{ID: 2, Name: "Rosa", Age: 61, City: "Cebu City"}, LastMessage: "from bus", LastMessageAt: 5000},
	}})
	time.Sleep(100 * time.Millisecond)

	convs, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].Peer.Name != "Rosa" {
		t.Fatalf("got %+v, want one row with peer Rosa", convs)
	}
}
