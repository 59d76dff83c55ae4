// Package types defines the entity types, store interfaces, and standard
// error types for the carechain provenance engine: event-type descriptors
// and their payload field specs, care events with their hash links, chain
// verification reports, and resource usage summaries.
package types
