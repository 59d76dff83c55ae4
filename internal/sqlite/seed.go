package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// builtInEventType is an event type seeded on first attach. Descriptors are
// in the legacy label-only form, where every label is a required text field.
type builtInEventType struct {
	name        string
	description string
	labels      []string
}

var builtInEventTypes = []builtInEventType{
	{"Irrigation", "Water applied to the batch", []string{"Water volume (l)", "Duration (min)"}},
	{"Fertilization", "Fertilizer applied to the batch", []string{"Product", "Rate"}},
	{"Spraying", "Plant protection product sprayed", []string{"Product", "Dose (l/ha)"}},
	{"Sowing", "Seed sown for the batch", []string{"Variety", "Seed quantity (kg)"}},
	{"Harvest", "Produce harvested from the batch", []string{"Yield (kg)", "Quality"}},
	{"Pruning", "Plants pruned or trained", []string{"Method"}},
}

// seedEventTypes inserts the built-in event types when the catalog is
// empty and writes them to event_types.jsonl. A catalog with any entry,
// seeded or not, is left alone.
func seedEventTypes(ctx context.Context, db *sql.DB, dataDir string, now time.Time) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_types").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting event types: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := formatTime(now)
	for _, bt := range builtInEventTypes {
		fields, err := json.Marshal(bt.labels)
		if err != nil {
			return 0, fmt.Errorf("encoding labels for %s: %w", bt.name, err)
		}
		id, err := newID()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_types (event_type_id, name, description, payload_fields, created_at) VALUES (?, ?, ?, ?, ?)",
			id, bt.name, bt.description, string(fields), createdAt,
		); err != nil {
			return 0, fmt.Errorf("seeding event type %s: %w", bt.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed transaction: %w", err)
	}

	if err := persistEventTypes(ctx, db, dataDir); err != nil {
		return 0, fmt.Errorf("persisting seeded event types: %w", err)
	}
	return len(builtInEventTypes), nil
}
