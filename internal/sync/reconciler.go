package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/store"
)

// Reconciler manages history sync checkpoints: per-conversation
// high-water timestamps recording how far the cache has seen.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// UpdateCheckpoint sets a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// AdvanceWatermark raises a conversation's high-water timestamp. Older
// pages arrive after newer ones during backward pagination, so the value
// only ever moves forward.
func (r *Reconciler) AdvanceWatermark(convID int64, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE WHEN CAST(excluded.value AS INTEGER) > CAST(sync_state.value AS INTEGER) THEN excluded.value ELSE sync_state.value END,
			updated_at = excluded.updated_at`,
		watermarkKey(convID), strconv.FormatInt(ts, 10), now)
	return err
}

// Watermark returns a conversation's high-water timestamp, zero when the
// conversation was never synced.
func (r *Reconciler) Watermark(convID int64) (int64, error) {
	value, err := r.GetCheckpoint(watermarkKey(convID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt watermark %q: %w", value, err)
	}
	return ts, nil
}

func watermarkKey(convID int64) string {
	return fmt.Sprintf("conv-%d.high_water", convID)
}
