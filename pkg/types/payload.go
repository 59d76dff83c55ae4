package types

import "sort"

// DecodedPayload maps a payload field key to its scalar value: a string or
// a float64. It is rebuilt on every read and never persisted.
type DecodedPayload map[string]any

// ResourceTotal is the running quantity for one event type.
type ResourceTotal struct {
	Total      float64 `json:"total"`
	Unit       string  `json:"unit"`
	EventCount int     `json:"eventCount"`
}

// ResourceSummary maps an event type name to its aggregated quantity.
type ResourceSummary map[string]ResourceTotal

// Names returns the event type names in the summary, sorted.
func (s ResourceSummary) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new summary holding the totals of s followed by other.
// Totals and counts add; a unit already set in s wins over other's.
func (s ResourceSummary) Merge(other ResourceSummary) ResourceSummary {
	out := make(ResourceSummary, len(s)+len(other))
	for name, t := range s {
		out[name] = t
	}
	for name, t := range other {
		cur := out[name]
		cur.Total += t.Total
		cur.EventCount += t.EventCount
		if cur.Unit == "" {
			cur.Unit = t.Unit
		}
		out[name] = cur
	}
	return out
}
