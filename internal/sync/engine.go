// Package sync mirrors confirmed chat traffic into the local cache. The
// engine listens to the same bus events the screen controllers consume,
// so neither side knows the cache exists. Provisional (optimistic)
// messages never reach the cache; their server-confirmed replacements do.
package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/store"
)

// Engine handles idempotent ingestion of confirmed chat state into the store.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	rec    *Reconciler
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new sync engine over an opened cache.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		rec:    NewReconciler(db, logger),
		logger: logger,
	}
}

// Start subscribes to chat traffic and inbox snapshots on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	chatCh, unsubChat := e.bus.Subscribe("chat.", 256)
	convCh, unsubConv := e.bus.Subscribe("conv.snapshot", 16)

	go func() {
		defer unsubChat()
		defer unsubConv()
		for {
			select {
			case evt := <-chatCh:
				e.handleEvent(evt)
			case evt := <-convCh:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "chat.message":
		msg, ok := evt.Payload.(model.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.ID))
		}
	case "chat.history":
		batch, ok := evt.Payload.(model.HistoryBatch)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(batch); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err),
				zap.Int64("conversation_id", batch.ConversationID),
				zap.Int("count", len(batch.Messages)))
		}
	case "chat.receipt":
		receipt, ok := evt.Payload.(model.Receipt)
		if !ok {
			return
		}
		if err := e.applyReceipt(receipt); err != nil {
			e.logger.Error("failed to apply receipt", zap.Error(err),
				zap.Int64("conversation_id", receipt.ConversationID))
		}
	case "conv.snapshot":
		convs, ok := evt.Payload.([]model.Conversation)
		if !ok {
			return
		}
		for _, c := range convs {
			if err := e.db.UpsertConversation(c); err != nil {
				e.logger.Error("failed to upsert conversation", zap.Error(err),
					zap.Int64("conversation_id", c.ID))
			}
		}
	}
}

// IngestMessage processes a single confirmed message into the store
// (idempotent). Messages still carrying a provisional id are skipped;
// the server echo with the real id lands shortly after.
func (e *Engine) IngestMessage(m model.Message) error {
	if model.IsTempID(m.ID) {
		return nil
	}

	if err := e.db.TouchConversation(m.ConversationID, truncate(m.Text, 100), m.Timestamp); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := e.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "cache.message_upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": strconv.FormatInt(m.ConversationID, 10),
			"msg_id":          m.ID,
		},
	})

	return nil
}

// IngestHistoryBatch processes a page of confirmed messages in a
// transaction, then advances the conversation's high-water mark.
func (e *Engine) IngestHistoryBatch(batch model.HistoryBatch) error {
	if len(batch.Messages) == 0 {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	var high int64
	var preview string
	count := 0

	for _, m := range batch.Messages {
		if model.IsTempID(m.ID) {
			continue
		}
		var callKind, callOutcome string
		var callDuration int
		if m.Call != nil {
			callKind = m.Call.Kind
			callDuration = m.Call.DurationSec
			callOutcome = m.Call.Outcome
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, id, sender_id, mine, body, message_type, call_kind, call_duration_sec, call_outcome, timestamp, status, client_ref, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, id) DO UPDATE SET
				body = excluded.body,
				status = CASE
					WHEN messages.status = 'read' THEN messages.status
					WHEN messages.status = 'delivered' AND excluded.status IN ('sending', 'sent') THEN messages.status
					ELSE excluded.status
				END`,
			batch.ConversationID, m.ID, m.SenderID, m.Mine, m.Text, string(m.Type),
			callKind, callDuration, callOutcome, m.Timestamp, string(m.Status), m.ClientRef, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
		if m.Timestamp >= high {
			high = m.Timestamp
			preview = m.Text
		}
		count++
	}

	if count > 0 {
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, last_message, last_message_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_message = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message ELSE conversations.last_message END,
				last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
				updated_at = excluded.updated_at`,
			batch.ConversationID, truncate(preview, 100), high, now); err != nil {
			return fmt.Errorf("touch conversation in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	if count == 0 {
		return nil
	}

	if err := e.rec.AdvanceWatermark(batch.ConversationID, high); err != nil {
		e.logger.Warn("watermark not advanced", zap.Error(err),
			zap.Int64("conversation_id", batch.ConversationID))
	}

	e.bus.Publish(bus.Event{
		Kind:      "cache.history_mirrored",
		Timestamp: time.Now(),
		Payload: map[string]int{
			"messages_count": count,
		},
	})

	return nil
}

// applyReceipt advances cached delivery statuses. The SQL refuses
// regressions, so late or duplicate receipts are harmless.
func (e *Engine) applyReceipt(r model.Receipt) error {
	switch r.Kind {
	case model.ReceiptDelivered:
		return e.db.MarkMessageDelivered(r.ConversationID, r.MessageID)
	case model.ReceiptRead:
		return e.db.MarkConversationRead(r.ConversationID)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
