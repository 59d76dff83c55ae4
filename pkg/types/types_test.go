package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisHashShape(t *testing.T) {
	assert.Len(t, GenesisHash, 66)
	assert.Equal(t, "0x", GenesisHash[:2])
	for _, r := range GenesisHash[2:] {
		assert.Equal(t, '0', r)
	}
}

func TestIsValidFieldType(t *testing.T) {
	for _, ft := range []FieldType{
		FieldTypeText, FieldTypeNumber, FieldTypeEmail,
		FieldTypeDate, FieldTypeTextarea, FieldTypeSelect,
	} {
		assert.True(t, IsValidFieldType(ft), "%s should be valid", ft)
	}
	for _, ft := range []FieldType{"", "boolean", "Number"} {
		assert.False(t, IsValidFieldType(ft), "%q should be invalid", ft)
	}
}

func TestFieldSpecHasOption(t *testing.T) {
	f := FieldSpec{Options: []Option{{Label: "Drip", Value: "drip"}, {Label: "Flood", Value: "flood"}}}
	assert.True(t, f.HasOption("drip"))
	assert.False(t, f.HasOption("Drip"))
	assert.False(t, FieldSpec{}.HasOption(""))
}

func TestChainReportErr(t *testing.T) {
	assert.NoError(t, ChainReport{Valid: true}.Err())

	id := "evt-3"
	err := ChainReport{Valid: false, BrokenAtEventID: &id, ExpectedPrevHash: "h1", FoundPrevHash: "WRONG"}.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChainBroken)

	var ce *ChainError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "evt-3", ce.EventID)
	assert.Contains(t, err.Error(), "WRONG")
}

func TestUpstreamErrorIsDistinctFromBrokenChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("report: %w", &UpstreamError{Op: "fetch events", BatchID: "b1", Err: cause})

	assert.True(t, IsUpstream(err))
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrChainBroken)
	assert.Contains(t, err.Error(), "batch b1")

	assert.False(t, IsUpstream(ChainReport{}.Err()))
}

func TestValidationErrorsMessageIsSorted(t *testing.T) {
	v := ValidationErrors{
		"rate":   {Field: "rate", Kind: NotANumber, Message: "must be a number"},
		"amount": {Field: "amount", Kind: MissingField, Message: "is required"},
	}
	assert.Equal(t, "invalid payload: amount: is required; rate: must be a number", v.Error())
}

func TestResourceSummaryMerge(t *testing.T) {
	a := ResourceSummary{
		"Irrigation": {Total: 10, Unit: "l", EventCount: 1},
	}
	b := ResourceSummary{
		"Irrigation": {Total: 5, Unit: "gal", EventCount: 2},
		"Harvest":    {Total: 3, Unit: "kg", EventCount: 1},
	}

	got := a.Merge(b)
	assert.Equal(t, ResourceTotal{Total: 15, Unit: "l", EventCount: 3}, got["Irrigation"])
	assert.Equal(t, ResourceTotal{Total: 3, Unit: "kg", EventCount: 1}, got["Harvest"])
	assert.Equal(t, []string{"Harvest", "Irrigation"}, got.Names())

	// Inputs are untouched.
	assert.Equal(t, 10.0, a["Irrigation"].Total)
}

func TestChainStateString(t *testing.T) {
	assert.Equal(t, "genesis", ChainGenesis.String())
	assert.Equal(t, "linked", ChainLinked.String())
	assert.Equal(t, "broken", ChainBroken.String())
	assert.Equal(t, "unknown", ChainState(42).String())
}
