package types

import (
	"fmt"
	"strings"
)

// Severity classifies how dangerous a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Priority ranks. Lower is more urgent. The table is fixed: a result's
// priority is assigned once by its owning source and never recomputed
// downstream except for sort order.
const (
	// PriorityKnownExploited marks findings confirmed exploited in the wild.
	PriorityKnownExploited = 1
	// PriorityCritical is a critical-CVSS finding without exploitation evidence.
	PriorityCritical = 2
	// PriorityHigh is a high-CVSS finding.
	PriorityHigh = 3
	// PriorityExploitIndexed is the base rank for findings backed by an
	// indexed exploit or module (4-6 depending on maturity).
	PriorityExploitIndexed = 4
	// PriorityMedium and below are informational ranks (7+).
	PriorityMedium = 7
	PriorityLow    = 8
	PriorityInfo   = 9
)

// RankPriority assigns the fixed priority rank for a finding.
func RankPriority(sev Severity, knownExploited, exploitIndexed bool) int {
	if knownExploited {
		return PriorityKnownExploited
	}
	if exploitIndexed {
		return PriorityExploitIndexed
	}
	switch sev {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	case SeverityLow:
		return PriorityLow
	default:
		return PriorityInfo
	}
}

// IntelResult is one immutable intelligence finding produced by a source.
type IntelResult struct {
	// Source is the stable id of the originating source.
	Source string `json:"source"`

	// CVEID may be empty for non-CVE findings.
	CVEID string `json:"cve_id,omitempty"`

	Severity Severity `json:"severity"`

	// ExploitAvailable is true when a working exploit is known to exist.
	ExploitAvailable bool `json:"exploit_available"`

	// ExploitPath is an optional path or module reference.
	ExploitPath string `json:"exploit_path,omitempty"`

	// Confidence in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// Priority rank, lower = more urgent. Assigned by the owning source.
	Priority int `json:"priority"`

	// Metadata is an open mapping of scalar annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the result against the source contract. Invalid items are
// dropped individually during aggregation; the rest of a source's results
// survive.
func (r *IntelResult) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("result missing source")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return fmt.Errorf("confidence %v out of [0,1]", r.Confidence)
	}
	if r.Priority < 1 {
		return fmt.Errorf("priority %d below 1", r.Priority)
	}
	return nil
}

// Query identifies one intelligence lookup.
type Query struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// Validate rejects caller programming errors. Only the empty service name
// fails a query; everything downstream is absorbed into metrics.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Service) == "" {
		return NewError(ErrInvalidQuery, "service name must not be empty")
	}
	return nil
}

// Key returns the normalized cache key for this query.
func (q Query) Key() string {
	return NormalizeKey(q.Service, q.Version)
}

// NormalizeKey derives the case-insensitive, trimmed cache key shared by the
// local query path and incoming swarm announcements. Both sides must derive
// the same key or announcements would never coalesce with local entries.
func NormalizeKey(service, version string) string {
	return strings.ToLower(strings.TrimSpace(service)) + ":" +
		strings.ToLower(strings.TrimSpace(version))
}
