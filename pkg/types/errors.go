package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Schema errors.
var (
	ErrInvalidDescriptor = errors.New("invalid payload field descriptor")
	ErrDuplicateFieldKey = errors.New("duplicate payload field key")
)

// Payload errors.
var (
	ErrUndecodable = errors.New("payload is not a decodable JSON object")
)

// Chain errors.
var (
	ErrChainBroken = errors.New("hash chain broken")
)

// Store errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidID       = errors.New("invalid entity ID")
	ErrInvalidData     = errors.New("invalid entity data")
	ErrInvalidName     = errors.New("invalid name")
	ErrDuplicateName   = errors.New("name already exists")
)

// ValidationKind classifies a field-level validation failure.
type ValidationKind string

const (
	MissingField  ValidationKind = "missing_field"
	NotANumber    ValidationKind = "not_a_number"
	OutOfRange    ValidationKind = "out_of_range"
	InvalidOption ValidationKind = "invalid_option"
	InvalidEmail  ValidationKind = "invalid_email"
	InvalidDate   ValidationKind = "invalid_date"
)

// ValidationError is a single field's validation failure.
type ValidationError struct {
	Field   string         `json:"field"`
	Kind    ValidationKind `json:"kind"`
	Message string         `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds every failing field of one payload, keyed by field
// key. A form renders each entry next to its field.
type ValidationErrors map[string]ValidationError

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, v[k].Error())
	}
	return "invalid payload: " + strings.Join(msgs, "; ")
}

// ChainError describes the first discontinuity of a broken chain.
// errors.Is(err, ErrChainBroken) holds for every ChainError.
type ChainError struct {
	EventID  string
	Expected string
	Found    string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%v at event %s: expected prevHash %s, found %s", ErrChainBroken, e.EventID, e.Expected, e.Found)
}

func (e *ChainError) Is(target error) bool {
	return target == ErrChainBroken
}

// UpstreamError reports that fetching events or schemas failed, so there
// was nothing to verify. It must not be confused with a broken chain.
type UpstreamError struct {
	Op      string // e.g. "fetch events", "fetch event type"
	BatchID string // empty when not batch-scoped
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.BatchID != "" {
		return fmt.Sprintf("upstream %s for batch %s: %v", e.Op, e.BatchID, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
