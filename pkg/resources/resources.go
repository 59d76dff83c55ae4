// Package resources totals the quantities recorded in a batch's care
// events (litres of water, kilograms harvested) per event type.
package resources

import (
	"math"
	"regexp"
	"strconv"

	"github.com/mesh-intelligence/carechain/pkg/payload"
	"github.com/mesh-intelligence/carechain/pkg/types"
	"github.com/mesh-intelligence/carechain/pkg/units"
)

// magnitudePattern matches an unsigned decimal number followed by optional
// unit text: "12.5 kg", ".5l", "10 g/ha".
var magnitudePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?|\.\d+)\s*(.*?)\s*$`)

// Aggregator sums event quantities. It holds no mutable state and is safe
// for concurrent use.
type Aggregator struct {
	resolver *units.Resolver
}

// NewAggregator returns an Aggregator using r to find quantity fields. A
// nil r uses the built-in table.
func NewAggregator(r *units.Resolver) *Aggregator {
	if r == nil {
		r = units.NewResolver(nil)
	}
	return &Aggregator{resolver: r}
}

// Aggregate totals quantities per event type name. An event contributes
// only when at least one of its amount fields yields a positive magnitude.
// Events with undecodable payloads or no numeric amount fields are left
// out of the totals.
func (a *Aggregator) Aggregate(events []*types.CareEvent) types.ResourceSummary {
	summary := make(types.ResourceSummary)
	for _, evt := range events {
		amount, unit, ok := a.eventAmount(evt)
		if !ok {
			continue
		}
		cur := summary[evt.EventType]
		cur.Total += amount
		cur.EventCount++
		if cur.Unit == "" {
			cur.Unit = unit
		}
		summary[evt.EventType] = cur
	}
	return summary
}

// eventAmount returns the summed magnitude of evt's amount fields and the
// unit to report them in.
func (a *Aggregator) eventAmount(evt *types.CareEvent) (float64, string, bool) {
	res := a.resolver.Resolve(evt.EventType)
	if len(res.AmountFieldKeys) == 0 {
		return 0, "", false
	}
	p, err := payload.Decode(evt.Payload)
	if err != nil {
		return 0, "", false
	}

	var sum float64
	var positive bool
	var valueUnit string
	for i, key := range res.AmountFieldKeys {
		v, ok := p[key]
		if !ok {
			// Older payloads were keyed by label.
			v, ok = p[res.AmountLabels[i]]
		}
		if !ok {
			continue
		}
		mag, suffix, ok := Magnitude(v)
		if !ok {
			continue
		}
		sum += mag
		if mag > 0 {
			positive = true
		}
		if valueUnit == "" {
			valueUnit = suffix
		}
	}
	if !positive {
		return 0, "", false
	}

	unit := res.Unit
	if unit == "" {
		unit = valueUnit
	}
	return sum, unit, true
}

// Magnitude extracts the leading number of a payload value and any unit
// text after it. JSON numbers are taken as is. Signed, non-finite, and
// non-numeric values report ok=false.
func Magnitude(v any) (mag float64, unit string, ok bool) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val < 0 {
			return 0, "", false
		}
		return val, "", true
	case string:
		m := magnitudePattern.FindStringSubmatch(val)
		if m == nil {
			return 0, "", false
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", false
		}
		return n, m[2], true
	default:
		return 0, "", false
	}
}
