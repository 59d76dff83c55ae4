package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

var errMissingKey = errors.New("missing event_id or batch_id")

// loadStats counts what one attach read from disk.
type loadStats struct {
	eventTypes int
	events     int
	skipped    int
}

// loadAllJSONL reads every JSONL file in dataDir into db inside one
// transaction: either all files load or the database stays empty.
// Malformed lines, records missing their id, and records that violate a
// constraint are skipped and counted. Unknown fields are ignored.
func loadAllJSONL(db *sql.DB, dataDir string, logger *zap.Logger) (loadStats, error) {
	var stats loadStats

	tx, err := db.Begin()
	if err != nil {
		return stats, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	records, skipped, err := readJSONL(filepath.Join(dataDir, eventTypesJSONL))
	if err != nil {
		return stats, err
	}
	stats.skipped += skipped
	n, bad, err := loadEventTypes(tx, records, logger)
	if err != nil {
		return stats, err
	}
	stats.eventTypes, stats.skipped = n, stats.skipped+bad

	records, skipped, err = readJSONL(filepath.Join(dataDir, careEventsJSONL))
	if err != nil {
		return stats, err
	}
	stats.skipped += skipped
	n, bad, err = loadCareEvents(tx, records, logger)
	if err != nil {
		return stats, err
	}
	stats.events, stats.skipped = n, stats.skipped+bad

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("committing load transaction: %w", err)
	}
	return stats, nil
}

func loadEventTypes(tx *sql.Tx, records []json.RawMessage, logger *zap.Logger) (loaded, skipped int, err error) {
	stmt, err := tx.Prepare(`INSERT INTO event_types
		(event_type_id, name, description, payload_fields, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing event type insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		var r eventTypeJSON
		if err := json.Unmarshal(rec, &r); err != nil || r.EventTypeID == "" || r.Name == "" {
			logger.Warn("skipping event type record", zap.Int("record", i), zap.Error(err))
			skipped++
			continue
		}
		if _, err := stmt.Exec(r.EventTypeID, r.Name, r.Description, r.PayloadFields, r.CreatedAt); err != nil {
			logger.Warn("skipping event type record",
				zap.Int("record", i), zap.String("event_type_id", r.EventTypeID), zap.Error(err))
			skipped++
			continue
		}
		loaded++
	}
	return loaded, skipped, nil
}

func loadCareEvents(tx *sql.Tx, records []json.RawMessage, logger *zap.Logger) (loaded, skipped int, err error) {
	stmt, err := tx.Prepare(`INSERT INTO care_events
		(event_id, batch_id, event_type, occurred_at, payload, image_url, hash, prev_hash, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing care event insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		var r careEventJSON
		err := json.Unmarshal(rec, &r)
		if err == nil && (r.EventID == "" || r.BatchID == "") {
			err = errMissingKey
		}
		if err == nil {
			_, err = parseTime(r.OccurredAt)
		}
		if err == nil {
			_, err = stmt.Exec(r.EventID, r.BatchID, r.EventType, r.OccurredAt,
				r.Payload, r.ImageURL, r.Hash, r.PrevHash, r.RecordedAt)
		}
		if err != nil {
			logger.Warn("skipping care event record",
				zap.Int("record", i), zap.String("event_id", r.EventID), zap.Error(err))
			skipped++
			continue
		}
		loaded++
	}
	return loaded, skipped, nil
}
