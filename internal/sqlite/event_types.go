package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/carechain/pkg/schema"
	"github.com/mesh-intelligence/carechain/pkg/types"
)

const eventTypeColumns = "event_type_id, name, description, payload_fields, created_at"

// EventTypes returns the catalog ordered by name.
func (b *Backend) EventTypes(ctx context.Context) ([]*types.EventType, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	records, err := queryEventTypes(ctx, b.db)
	if err != nil {
		return nil, err
	}
	out := make([]*types.EventType, 0, len(records))
	for _, r := range records {
		out = append(out, r.toType())
	}
	return out, nil
}

// EventType returns the catalog entry with the given ID.
func (b *Backend) EventType(ctx context.Context, id string) (*types.EventType, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.scanEventType(ctx, "SELECT "+eventTypeColumns+" FROM event_types WHERE event_type_id = ?", id)
}

// EventTypeByName returns the catalog entry with the given name, compared
// case-insensitively.
func (b *Backend) EventTypeByName(ctx context.Context, name string) (*types.EventType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.ErrInvalidName
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.scanEventType(ctx, "SELECT "+eventTypeColumns+" FROM event_types WHERE name = ?", name)
}

// PutEventType creates or replaces a catalog entry. The descriptor must
// parse; names are unique ignoring case.
func (b *Backend) PutEventType(ctx context.Context, et *types.EventType) (string, error) {
	if et == nil {
		return "", types.ErrInvalidData
	}
	name := strings.TrimSpace(et.Name)
	if name == "" {
		return "", types.ErrInvalidName
	}
	if _, err := schema.Parse(et.PayloadFields); err != nil {
		return "", fmt.Errorf("event type %q: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return "", types.ErrStoreDetached
	}

	id := et.ID
	if id == "" {
		var err error
		if id, err = newID(); err != nil {
			return "", err
		}
	}

	var owner string
	err := b.db.QueryRowContext(ctx, "SELECT event_type_id FROM event_types WHERE name = ?", name).Scan(&owner)
	switch {
	case err == nil && owner != id:
		return "", fmt.Errorf("event type %q: %w", name, types.ErrDuplicateName)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("checking event type name: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `INSERT INTO event_types (`+eventTypeColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_type_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			payload_fields = excluded.payload_fields`,
		id, name, et.Description, et.PayloadFields, formatTime(b.now()))
	if err != nil {
		return "", fmt.Errorf("saving event type %q: %w", name, err)
	}
	if err := persistEventTypes(ctx, b.db, b.config.DataDir); err != nil {
		return "", err
	}

	b.logger.Info("event type saved", zap.String("event_type_id", id), zap.String("name", name))
	return id, nil
}

func (b *Backend) scanEventType(ctx context.Context, query string, arg string) (*types.EventType, error) {
	var r eventTypeJSON
	err := b.db.QueryRowContext(ctx, query, arg).
		Scan(&r.EventTypeID, &r.Name, &r.Description, &r.PayloadFields, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event type: %w", err)
	}
	return r.toType(), nil
}

func queryEventTypes(ctx context.Context, db *sql.DB) ([]eventTypeJSON, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+eventTypeColumns+" FROM event_types ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying event types: %w", err)
	}
	defer rows.Close()

	var out []eventTypeJSON
	for rows.Next() {
		var r eventTypeJSON
		if err := rows.Scan(&r.EventTypeID, &r.Name, &r.Description, &r.PayloadFields, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event type: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// persistEventTypes rewrites event_types.jsonl from the table.
func persistEventTypes(ctx context.Context, db *sql.DB, dataDir string) error {
	records, err := queryEventTypes(ctx, db)
	if err != nil {
		return err
	}
	lines, err := marshalRecords(records)
	if err != nil {
		return fmt.Errorf("encoding event types: %w", err)
	}
	if err := writeJSONL(filepath.Join(dataDir, eventTypesJSONL), lines); err != nil {
		return fmt.Errorf("writing %s: %w", eventTypesJSONL, err)
	}
	return nil
}
