// Package chain verifies the hash links between a batch's care events.
//
// The verifier consumes hashes; it never derives them from payload content.
// Minting is the event store's job. Verification only checks that each
// event's prevHash names the hash of the event before it, and that the
// first event names the genesis sentinel.
package chain

import (
	"sort"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// Walker is the per-batch verification state machine. The zero value is
// ready to use and starts in ChainGenesis.
type Walker struct {
	state    types.ChainState
	head     string
	length   int
	brokenAt *string
	expected string
	found    string
}

// State returns the current state.
func (w *Walker) State() types.ChainState {
	return w.state
}

// Step feeds the next event in chain order and returns the new state. Once
// broken, the walker stays broken and ignores further events.
func (w *Walker) Step(evt *types.CareEvent) types.ChainState {
	if w.state == types.ChainBroken {
		return w.state
	}

	want := types.GenesisHash
	if w.state == types.ChainLinked {
		want = w.head
	}
	if evt.PrevHash != want {
		id := evt.ID
		w.state = types.ChainBroken
		w.brokenAt = &id
		w.expected = want
		w.found = evt.PrevHash
		return w.state
	}

	w.state = types.ChainLinked
	w.head = evt.Hash
	w.length++
	return w.state
}

// Report summarizes the walk so far. Length counts linked events before the
// break; Head is the last linked hash, or the genesis sentinel if none.
func (w *Walker) Report() types.ChainReport {
	head := w.head
	if w.length == 0 {
		head = types.GenesisHash
	}
	r := types.ChainReport{
		Valid:  w.state != types.ChainBroken,
		Length: w.length,
		Head:   head,
	}
	if w.state == types.ChainBroken {
		r.BrokenAtEventID = w.brokenAt
		r.ExpectedPrevHash = w.expected
		r.FoundPrevHash = w.found
	}
	return r
}

// Order returns the events sorted by OccurredAt. Events with equal
// timestamps keep their input order. The input slice is not modified.
func Order(events []*types.CareEvent) []*types.CareEvent {
	out := make([]*types.CareEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

// Verify orders one batch's events and walks their links. An empty list is
// valid. The report is always returned; a broken chain is a finding, not a
// failure.
func Verify(events []*types.CareEvent) types.ChainReport {
	var w Walker
	for _, evt := range Order(events) {
		if w.Step(evt) == types.ChainBroken {
			break
		}
	}
	return w.Report()
}

// VerifyBatches groups events by batch and verifies each batch's chain.
func VerifyBatches(events []*types.CareEvent) map[string]types.ChainReport {
	byBatch := make(map[string][]*types.CareEvent)
	for _, evt := range events {
		byBatch[evt.BatchID] = append(byBatch[evt.BatchID], evt)
	}
	reports := make(map[string]types.ChainReport, len(byBatch))
	for batch, evts := range byBatch {
		reports[batch] = Verify(evts)
	}
	return reports
}
