package provenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/carechain/pkg/types"
	"github.com/mesh-intelligence/carechain/pkg/units"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves canned catalog entries and batches. Batches listed in
// failing return errUnavailable.
type fakeSource struct {
	mu         sync.Mutex
	eventTypes map[string]*types.EventType
	batches    map[string][]*types.CareEvent
	failing    map[string]bool
	inFlight   int32
	maxFlight  int32
	delay      time.Duration
}

var errUnavailable = errors.New("503 service unavailable")

func (f *fakeSource) EventTypes(ctx context.Context) ([]*types.EventType, error) {
	var out []*types.EventType
	for _, et := range f.eventTypes {
		out = append(out, et)
	}
	return out, nil
}

func (f *fakeSource) EventType(ctx context.Context, id string) (*types.EventType, error) {
	et, ok := f.eventTypes[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return et, nil
}

func (f *fakeSource) EventTypeByName(ctx context.Context, name string) (*types.EventType, error) {
	for _, et := range f.eventTypes {
		if et.Name == name {
			return et, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeSource) BatchEvents(ctx context.Context, batchID string) ([]*types.CareEvent, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	f.mu.Lock()
	if n > f.maxFlight {
		f.maxFlight = n
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failing[batchID] {
		return nil, errUnavailable
	}
	return f.batches[batchID], nil
}

var t0 = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

func careEvent(batch, id, eventType, payload, hash, prev string, offset time.Duration) *types.CareEvent {
	return &types.CareEvent{
		ID: id, BatchID: batch, EventType: eventType, OccurredAt: t0.Add(offset),
		Payload: payload, Hash: hash, PrevHash: prev,
	}
}

func newFake() *fakeSource {
	return &fakeSource{
		eventTypes: map[string]*types.EventType{
			"et-irr": {ID: "et-irr", Name: "Irrigation", PayloadFields: `["Water volume (l)", "Duration (min)"]`},
			"et-bad": {ID: "et-bad", Name: "Broken", PayloadFields: `{oops`},
		},
		batches: map[string][]*types.CareEvent{
			"lot-1": {
				// Stored out of order on purpose.
				careEvent("lot-1", "e2", "Fertilization", `"{\"rate\":\"10 g/ha\"}"`, "h1", "h0", time.Hour),
				careEvent("lot-1", "e1", "Irrigation", `{"water_volume_(l)":"120 l","duration_(min)":"30"}`, "h0", types.GenesisHash, 0),
				careEvent("lot-1", "e3", "Harvest", "picked by hand", "h2", "h1", 2*time.Hour),
			},
			"lot-2": {
				careEvent("lot-2", "f1", "Irrigation", `{"water_volume_(l)":"5"}`, "g0", types.GenesisHash, 0),
				careEvent("lot-2", "f2", "Irrigation", `{"water_volume_(l)":"5"}`, "g1", "g0", time.Hour),
				careEvent("lot-2", "f3", "Irrigation", `{"water_volume_(l)":"5"}`, "g2", "WRONG", 2*time.Hour),
			},
		},
		failing: map[string]bool{"lot-down": true},
	}
}

func TestReport(t *testing.T) {
	svc := NewService(newFake(), WithLogger(zap.NewNop()))

	r, err := svc.Report(context.Background(), "lot-1")
	require.NoError(t, err)

	assert.Equal(t, "lot-1", r.BatchID)
	require.Len(t, r.Entries, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{r.Entries[0].Event.ID, r.Entries[1].Event.ID, r.Entries[2].Event.ID})

	assert.True(t, r.Entries[0].Decoded)
	assert.Equal(t, types.DecodedPayload{"water_volume_(l)": "120 l", "duration_(min)": "30"}, r.Entries[0].Payload)
	assert.True(t, r.Entries[1].Decoded)
	assert.Equal(t, types.DecodedPayload{"rate": "10 g/ha"}, r.Entries[1].Payload)
	assert.False(t, r.Entries[2].Decoded)
	assert.Equal(t, "picked by hand", r.Entries[2].Description)

	assert.True(t, r.Chain.Valid)
	assert.Equal(t, 3, r.Chain.Length)

	assert.Equal(t, types.ResourceSummary{
		"Irrigation":    {Total: 120, Unit: "l", EventCount: 1},
		"Fertilization": {Total: 10, Unit: "g/ha", EventCount: 1},
	}, r.Resources)
}

func TestReportBrokenChainIsNotAnError(t *testing.T) {
	r, err := NewService(newFake()).Report(context.Background(), "lot-2")
	require.NoError(t, err)

	assert.False(t, r.Chain.Valid)
	require.NotNil(t, r.Chain.BrokenAtEventID)
	assert.Equal(t, "f3", *r.Chain.BrokenAtEventID)
	assert.ErrorIs(t, r.Chain.Err(), types.ErrChainBroken)
	assert.False(t, types.IsUpstream(r.Chain.Err()))

	// Resources still cover every event.
	assert.Equal(t, 3, r.Resources["Irrigation"].EventCount)
}

func TestReportUpstreamFailure(t *testing.T) {
	r, err := NewService(newFake()).Report(context.Background(), "lot-down")
	assert.Nil(t, r)

	var ue *types.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "lot-down", ue.BatchID)
	assert.ErrorIs(t, err, errUnavailable)
	assert.NotErrorIs(t, err, types.ErrChainBroken)
}

func TestReportUnknownBatchIsEmptyAndValid(t *testing.T) {
	r, err := NewService(newFake()).Report(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, r.Entries)
	assert.True(t, r.Chain.Valid)
	assert.Empty(t, r.Resources)
}

func TestReportUsesResolverOverrides(t *testing.T) {
	src := newFake()
	src.batches["lot-3"] = []*types.CareEvent{
		careEvent("lot-3", "p1", "Pruning", `{"branches":"14"}`, "x0", types.GenesisHash, 0),
	}
	r := units.NewResolver(map[string]units.Rule{"Pruning": {AmountLabels: []string{"Branches"}, DefaultUnit: "pcs"}})

	rep, err := NewService(src, WithResolver(r)).Report(context.Background(), "lot-3")
	require.NoError(t, err)
	assert.Equal(t, types.ResourceTotal{Total: 14, Unit: "pcs", EventCount: 1}, rep.Resources["Pruning"])
}

func TestReportMany(t *testing.T) {
	src := newFake()
	src.delay = 5 * time.Millisecond
	for i := 0; i < 10; i++ {
		src.batches[fmt.Sprintf("bulk-%d", i)] = nil
	}
	ids := []string{"lot-1", "lot-down", "lot-2"}
	for i := 0; i < 10; i++ {
		ids = append(ids, fmt.Sprintf("bulk-%d", i))
	}

	results, err := NewService(src, WithConcurrency(2)).ReportMany(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, results, len(ids))

	for i, res := range results {
		assert.Equal(t, ids[i], res.BatchID, "results keep input order")
	}
	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Report.Chain.Valid)

	assert.Nil(t, results[1].Report)
	assert.True(t, types.IsUpstream(results[1].Err))

	assert.NoError(t, results[2].Err)
	assert.False(t, results[2].Report.Chain.Valid)

	assert.LessOrEqual(t, src.maxFlight, int32(2))
}

func TestReportManyCancelled(t *testing.T) {
	src := newFake()
	src.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewService(src).ReportMany(ctx, []string{"lot-1", "lot-2"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestPrepare(t *testing.T) {
	svc := NewService(newFake())
	ctx := context.Background()

	got, err := svc.Prepare(ctx, "et-irr", map[string]string{
		"duration_(min)":   "45",
		"water_volume_(l)": "300 l",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"water_volume_(l)":"300 l","duration_(min)":"45"}`, got)

	_, err = svc.Prepare(ctx, "et-irr", map[string]string{"water_volume_(l)": "300 l"})
	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, types.MissingField, verrs["duration_(min)"].Kind)
}

func TestPrepareDegradesOnBadDescriptor(t *testing.T) {
	got, err := NewService(newFake()).Prepare(context.Background(), "et-bad", map[string]string{"x": "1"})
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestPrepareUnknownEventType(t *testing.T) {
	_, err := NewService(newFake()).Prepare(context.Background(), "nope", nil)
	assert.True(t, types.IsUpstream(err))
	assert.ErrorIs(t, err, types.ErrNotFound)
}
