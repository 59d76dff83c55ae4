package sqlite

// Table DDL. The care_events seq column records insertion order, which is
// the order chains are extended in.
const (
	createEventTypes = `CREATE TABLE event_types (
    event_type_id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    description TEXT NOT NULL DEFAULT '',
    payload_fields TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createCareEvents = `CREATE TABLE care_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL UNIQUE,
    batch_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    occurred_at TEXT NOT NULL,
    payload TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);`
)

const (
	idxCareEventsBatch = `CREATE INDEX idx_care_events_batch ON care_events(batch_id, seq);`
	idxCareEventsType  = `CREATE INDEX idx_care_events_type ON care_events(event_type);`
)

var schemaDDL = []string{
	createEventTypes,
	createCareEvents,
}

var indexDDL = []string{
	idxCareEventsBatch,
	idxCareEventsType,
}

// JSONL files in DataDir, one per table.
const (
	eventTypesJSONL = "event_types.jsonl"
	careEventsJSONL = "care_events.jsonl"
)

var jsonlFiles = []string{eventTypesJSONL, careEventsJSONL}

// dbFileName is the query cache rebuilt from JSONL on every attach.
const dbFileName = "carechain.db"
