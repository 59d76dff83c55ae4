package sqlite

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// hashEnvelope is the content a care event's hash commits to.
type hashEnvelope struct {
	BatchID    string `json:"batchId"`
	EventType  string `json:"eventType"`
	OccurredAt string `json:"occurredAt"`
	Payload    string `json:"payload"`
	ImageURL   string `json:"imageUrl"`
	PrevHash   string `json:"prevHash"`
}

// mintHash returns "0x" + hex SHA-256 of the RFC 8785 canonical form of
// evt's envelope. evt.PrevHash must already be set.
func mintHash(evt *types.CareEvent) (string, error) {
	raw, err := json.Marshal(hashEnvelope{
		BatchID:    evt.BatchID,
		EventType:  evt.EventType,
		OccurredAt: formatTime(evt.OccurredAt),
		Payload:    evt.Payload,
		ImageURL:   evt.ImageURL,
		PrevHash:   evt.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("encoding hash envelope: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing hash envelope: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "0x" + hex.EncodeToString(sum[:]), nil
}
