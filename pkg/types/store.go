package types

import "context"

// Source is the read side of the external catalog and event store. The
// provenance service consumes it; any failure it returns is reported to
// callers as an UpstreamError.
type Source interface {
	// EventTypes returns every catalog entry, ordered by name.
	EventTypes(ctx context.Context) ([]*EventType, error)

	// EventType returns the catalog entry with the given ID.
	// Returns ErrNotFound if no such entry exists.
	EventType(ctx context.Context, id string) (*EventType, error)

	// EventTypeByName returns the catalog entry with the given name.
	// Returns ErrNotFound if no such entry exists.
	EventTypeByName(ctx context.Context, name string) (*EventType, error)

	// BatchEvents returns the batch's events in insertion order. An unknown
	// batch yields an empty slice, not an error.
	BatchEvents(ctx context.Context, batchID string) ([]*CareEvent, error)
}

// Store is a Source that can also record catalog entries and events.
type Store interface {
	Source

	// Attach connects the store to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent.
	// After Detach, operations return ErrStoreDetached.
	Detach() error

	// PutEventType creates or updates a catalog entry. When et.ID is empty
	// a new UUID v7 is generated. Returns the ID used.
	PutEventType(ctx context.Context, et *EventType) (string, error)

	// AppendEvent links evt to its batch's current head, mints its hash,
	// and persists it. ID, Hash, and PrevHash on input are ignored.
	AppendEvent(ctx context.Context, evt *CareEvent) (*CareEvent, error)

	// ImportEvents stores externally minted events verbatim, keeping their
	// hash links untouched. Events whose ID already exists are skipped.
	// Returns the number of events stored.
	ImportEvents(ctx context.Context, events []*CareEvent) (int, error)
}
