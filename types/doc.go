// Package types defines the shared data model of the SwarmIntel coordination
// layer: intelligence results, queries, priority ranking, and the structured
// error type used across all packages.
//
// Everything in this package is a plain value type with no behavior beyond
// validation and normalization, so it can be shared freely between the
// transport, aggregation, and stigmergy layers without import cycles.
package types
