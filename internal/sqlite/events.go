package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/carechain/pkg/chain"
	"github.com/mesh-intelligence/carechain/pkg/types"
)

const careEventColumns = "event_id, batch_id, event_type, occurred_at, payload, image_url, hash, prev_hash, recorded_at"

// BatchEvents returns the batch's events in insertion order.
func (b *Backend) BatchEvents(ctx context.Context, batchID string) ([]*types.CareEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	return loadBatch(ctx, b.db, batchID)
}

func loadBatch(ctx context.Context, db *sql.DB, batchID string) ([]*types.CareEvent, error) {
	records, err := queryCareEvents(ctx, db, "WHERE batch_id = ?", batchID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.CareEvent, 0, len(records))
	for _, r := range records {
		evt, err := r.toType()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", r.EventID, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

// batchHead returns the batch's last event in verification order, or nil
// for an empty batch. Imported events may have been stored out of time
// order, so insertion order alone does not identify the head.
func batchHead(ctx context.Context, db *sql.DB, batchID string) (*types.CareEvent, error) {
	events, err := loadBatch(ctx, db, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading batch head: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	ordered := chain.Order(events)
	return ordered[len(ordered)-1], nil
}

// AppendEvent links evt to the head of its batch and stores it. The event
// type must exist in the catalog; its canonical name is recorded. The head
// is the last event in occurredAt order, and evt may not predate it.
// A zero OccurredAt is stamped with the current time and an empty payload
// is stored as "{}".
func (b *Backend) AppendEvent(ctx context.Context, evt *types.CareEvent) (*types.CareEvent, error) {
	if evt == nil {
		return nil, types.ErrInvalidData
	}
	batchID := strings.TrimSpace(evt.BatchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", types.ErrInvalidData)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	var typeName string
	err := b.db.QueryRowContext(ctx, "SELECT name FROM event_types WHERE name = ?", strings.TrimSpace(evt.EventType)).Scan(&typeName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event type %q: %w", evt.EventType, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying event type: %w", err)
	}

	now := b.now()
	out := &types.CareEvent{
		BatchID:    batchID,
		EventType:  typeName,
		OccurredAt: evt.OccurredAt.UTC(),
		Payload:    evt.Payload,
		ImageURL:   strings.TrimSpace(evt.ImageURL),
		PrevHash:   types.GenesisHash,
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = now.UTC()
	}
	if strings.TrimSpace(out.Payload) == "" {
		out.Payload = "{}"
	}

	head, err := batchHead(ctx, b.db, batchID)
	if err != nil {
		return nil, err
	}
	if head != nil {
		if out.OccurredAt.Before(head.OccurredAt) {
			return nil, fmt.Errorf("%w: occurredAt %s precedes batch head at %s",
				types.ErrInvalidData, formatTime(out.OccurredAt), formatTime(head.OccurredAt))
		}
		out.PrevHash = head.Hash
	}

	if out.ID, err = newID(); err != nil {
		return nil, err
	}
	if out.Hash, err = mintHash(out); err != nil {
		return nil, err
	}

	if _, err := b.db.ExecContext(ctx,
		"INSERT INTO care_events ("+careEventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		out.ID, out.BatchID, out.EventType, formatTime(out.OccurredAt), out.Payload,
		out.ImageURL, out.Hash, out.PrevHash, formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("inserting care event: %w", err)
	}
	if err := persistCareEvents(ctx, b.db, b.config.DataDir); err != nil {
		return nil, err
	}

	b.logger.Info("care event appended",
		zap.String("batch", out.BatchID),
		zap.String("event", out.ID),
		zap.String("event_type", out.EventType),
		zap.String("hash", out.Hash))
	return out, nil
}

// ImportEvents stores events exactly as given, hash links included, in
// slice order. Events whose ID is already stored are skipped. The whole
// import is one transaction.
func (b *Backend) ImportEvents(ctx context.Context, events []*types.CareEvent) (int, error) {
	for i, evt := range events {
		if evt == nil || strings.TrimSpace(evt.ID) == "" {
			return 0, fmt.Errorf("event %d: %w", i, types.ErrInvalidID)
		}
		if strings.TrimSpace(evt.BatchID) == "" {
			return 0, fmt.Errorf("event %s: %w: batch id is required", evt.ID, types.ErrInvalidData)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return 0, types.ErrStoreDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO care_events ("+careEventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(event_id) DO NOTHING")
	if err != nil {
		return 0, fmt.Errorf("preparing import: %w", err)
	}
	defer stmt.Close()

	recordedAt := formatTime(b.now())
	imported := 0
	for _, evt := range events {
		res, err := stmt.ExecContext(ctx,
			evt.ID, evt.BatchID, evt.EventType, formatTime(evt.OccurredAt), evt.Payload,
			evt.ImageURL, evt.Hash, evt.PrevHash, recordedAt)
		if err != nil {
			return 0, fmt.Errorf("importing event %s: %w", evt.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	if err := persistCareEvents(ctx, b.db, b.config.DataDir); err != nil {
		return 0, err
	}

	b.logger.Info("care events imported",
		zap.Int("imported", imported), zap.Int("skipped", len(events)-imported))
	return imported, nil
}

func queryCareEvents(ctx context.Context, db *sql.DB, where string, args ...any) ([]careEventJSON, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+careEventColumns+" FROM care_events "+where+" ORDER BY seq", args...)
	if err != nil {
		return nil, fmt.Errorf("querying care events: %w", err)
	}
	defer rows.Close()

	var out []careEventJSON
	for rows.Next() {
		var r careEventJSON
		if err := rows.Scan(&r.EventID, &r.BatchID, &r.EventType, &r.OccurredAt,
			&r.Payload, &r.ImageURL, &r.Hash, &r.PrevHash, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning care event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// persistCareEvents rewrites care_events.jsonl from the table in insertion
// order, so a reload rebuilds the same seq order.
func persistCareEvents(ctx context.Context, db *sql.DB, dataDir string) error {
	records, err := queryCareEvents(ctx, db, "")
	if err != nil {
		return err
	}
	lines, err := marshalRecords(records)
	if err != nil {
		return fmt.Errorf("encoding care events: %w", err)
	}
	if err := writeJSONL(filepath.Join(dataDir, careEventsJSONL), lines); err != nil {
		return fmt.Errorf("writing %s: %w", careEventsJSONL, err)
	}
	return nil
}
