// Package provenance turns a batch's stored care events into a traceability
// report: ordered entries with decoded payloads, the hash-chain verdict, and
// resource totals. It also prepares canonical payloads for submission.
//
// The service reads through a types.Source. A failed read is reported as a
// *types.UpstreamError so callers can tell "could not load" apart from
// "chain broken".
package provenance

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/carechain/pkg/chain"
	"github.com/mesh-intelligence/carechain/pkg/payload"
	"github.com/mesh-intelligence/carechain/pkg/resources"
	"github.com/mesh-intelligence/carechain/pkg/schema"
	"github.com/mesh-intelligence/carechain/pkg/types"
	"github.com/mesh-intelligence/carechain/pkg/units"
)

// DefaultConcurrency is the number of batches ReportMany fetches at once.
const DefaultConcurrency = 4

// Entry is one event of a report, with its payload decoded when possible.
type Entry struct {
	Event       *types.CareEvent     `json:"event"`
	Payload     types.DecodedPayload `json:"payload,omitempty"`
	Description string               `json:"description,omitempty"` // Raw payload text when undecodable.
	Decoded     bool                 `json:"decoded"`
}

// Report is the traceability view of one batch.
type Report struct {
	BatchID   string                `json:"batchId"`
	Entries   []Entry               `json:"entries"`
	Chain     types.ChainReport     `json:"chain"`
	Resources types.ResourceSummary `json:"resources"`
}

// BatchResult pairs a batch with its report or its load failure.
type BatchResult struct {
	BatchID string
	Report  *Report
	Err     error
}

// Service builds reports over a Source.
type Service struct {
	source      types.Source
	aggregator  *resources.Aggregator
	logger      *zap.Logger
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l == nil {
			l = zap.NewNop()
		}
		s.logger = l
	}
}

// WithResolver sets the unit resolver used for resource totals.
func WithResolver(r *units.Resolver) Option {
	return func(s *Service) {
		s.aggregator = resources.NewAggregator(r)
	}
}

// WithConcurrency bounds parallel fetches in ReportMany. Values below 1
// are ignored.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService returns a Service reading from source.
func NewService(source types.Source, opts ...Option) *Service {
	s := &Service{
		source:      source,
		aggregator:  resources.NewAggregator(nil),
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report fetches one batch's events and builds its report. A fetch failure
// returns a *types.UpstreamError and no report. A broken chain is not an
// error: it is recorded in Report.Chain.
func (s *Service) Report(ctx context.Context, batchID string) (*Report, error) {
	events, err := s.source.BatchEvents(ctx, batchID)
	if err != nil {
		s.logger.Warn("fetch batch events failed", zap.String("batch", batchID), zap.Error(err))
		return nil, &types.UpstreamError{Op: "fetch events", BatchID: batchID, Err: err}
	}
	return s.build(batchID, events), nil
}

// ReportMany builds reports for several batches, fetching up to the
// configured concurrency at once. Results come back in input order. One
// batch failing to load does not stop the others; only cancellation of ctx
// does.
func (s *Service) ReportMany(ctx context.Context, batchIDs []string) ([]BatchResult, error) {
	results := make([]BatchResult, len(batchIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, id := range batchIDs {
		results[i].BatchID = id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.Report(gctx, id)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i].Report = r
			results[i].Err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Prepare validates form values against the event type's schema and
// returns the canonical payload to submit. An unreadable descriptor
// degrades to an event type with no fields. Validation failures come back
// as types.ValidationErrors.
func (s *Service) Prepare(ctx context.Context, eventTypeID string, values map[string]string) (string, error) {
	et, err := s.source.EventType(ctx, eventTypeID)
	if err != nil {
		return "", &types.UpstreamError{Op: "fetch event type", Err: err}
	}
	specs, err := schema.ParseEventType(et)
	if err != nil {
		s.logger.Warn("event type descriptor unusable; treating as fieldless",
			zap.String("event_type", et.Name), zap.Error(err))
	}
	return payload.Encode(specs, values)
}

func (s *Service) build(batchID string, events []*types.CareEvent) *Report {
	ordered := chain.Order(events)

	entries := make([]Entry, 0, len(ordered))
	for _, evt := range ordered {
		p, desc, ok := payload.Describe(evt.Payload)
		if !ok {
			s.logger.Debug("payload undecodable; keeping raw text",
				zap.String("batch", batchID), zap.String("event", evt.ID))
		}
		entries = append(entries, Entry{Event: evt, Payload: p, Description: desc, Decoded: ok})
	}

	report := &Report{
		BatchID:   batchID,
		Entries:   entries,
		Chain:     chain.Verify(ordered),
		Resources: s.aggregator.Aggregate(ordered),
	}
	if !report.Chain.Valid {
		s.logger.Warn("hash chain broken",
			zap.String("batch", batchID),
			zap.String("event", *report.Chain.BrokenAtEventID))
	}
	return report
}
