package sqlite

import (
	"time"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// Record shapes of the JSONL files. Field names are the column names, so a
// record loads straight into its table.

// eventTypeJSON is one line of event_types.jsonl.
type eventTypeJSON struct {
	EventTypeID   string `json:"event_type_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PayloadFields string `json:"payload_fields"`
	CreatedAt     string `json:"created_at"`
}

// careEventJSON is one line of care_events.jsonl.
type careEventJSON struct {
	EventID    string `json:"event_id"`
	BatchID    string `json:"batch_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Payload    string `json:"payload"`
	ImageURL   string `json:"image_url,omitempty"`
	Hash       string `json:"hash"`
	PrevHash   string `json:"prev_hash"`
	RecordedAt string `json:"recorded_at"`
}

func (r eventTypeJSON) toType() *types.EventType {
	return &types.EventType{
		ID:            r.EventTypeID,
		Name:          r.Name,
		Description:   r.Description,
		PayloadFields: r.PayloadFields,
	}
}

func (r careEventJSON) toType() (*types.CareEvent, error) {
	at, err := parseTime(r.OccurredAt)
	if err != nil {
		return nil, err
	}
	return &types.CareEvent{
		ID:         r.EventID,
		BatchID:    r.BatchID,
		EventType:  r.EventType,
		OccurredAt: at,
		Payload:    r.Payload,
		ImageURL:   r.ImageURL,
		Hash:       r.Hash,
		PrevHash:   r.PrevHash,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
