package types

import "time"

// GenesisHash is the reserved predecessor hash of a batch's first event:
// "0x" followed by 64 zero hex digits.
const GenesisHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

// CareEvent is a stored, append-only record of an agricultural action on a
// product batch. Payload holds canonical JSON text, though legacy records
// may be double-encoded.
type CareEvent struct {
	ID         string    `json:"id"`
	BatchID    string    `json:"batchId"`
	EventType  string    `json:"eventType"` // Event type name, not ID.
	OccurredAt time.Time `json:"occurredAt"`
	Payload    string    `json:"payload"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Hash       string    `json:"hash"`
	PrevHash   string    `json:"prevHash"`
}

// ChainState is the verifier's state while walking a batch's events.
type ChainState int

const (
	ChainGenesis ChainState = iota // No event seen yet.
	ChainLinked                    // Every event so far links to its predecessor.
	ChainBroken                    // Terminal: a discontinuity was found.
)

func (s ChainState) String() string {
	switch s {
	case ChainGenesis:
		return "genesis"
	case ChainLinked:
		return "linked"
	case ChainBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// ChainReport is the outcome of verifying one batch's hash chain.
// BrokenAtEventID is nil when the chain is valid.
type ChainReport struct {
	Valid            bool    `json:"valid"`
	BrokenAtEventID  *string `json:"brokenAtEventId"`
	Length           int     `json:"length"`
	Head             string  `json:"head"`
	ExpectedPrevHash string  `json:"expectedPrevHash,omitempty"`
	FoundPrevHash    string  `json:"foundPrevHash,omitempty"`
}

// Err returns nil for a valid chain, otherwise an error wrapping
// ErrChainBroken that names the first discontinuous event.
func (r ChainReport) Err() error {
	if r.Valid {
		return nil
	}
	id := ""
	if r.BrokenAtEventID != nil {
		id = *r.BrokenAtEventID
	}
	return &ChainError{EventID: id, Expected: r.ExpectedPrevHash, Found: r.FoundPrevHash}
}
