package model

import (
	"errors"
	"fmt"
)

var (
	// ErrOracleUnavailable marks a similarity partition that could not be evaluated.
	ErrOracleUnavailable = errors.New("similarity oracle unavailable")
	// ErrInconsistentJudgment marks duplicate judgments that reference unknown records or overlap.
	ErrInconsistentJudgment = errors.New("inconsistent similarity judgment")
	// ErrEmptyPartition marks a country partition with no records on one side.
	ErrEmptyPartition = errors.New("empty partition")
	// ErrSchemaViolation marks a record failing the shared schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrGlobalInjectivity is raised when a record id survives in two combined rows.
	ErrGlobalInjectivity = errors.New("global injectivity violation")
	// ErrCacheMiss is raised in cached-only mode when a pairwise table was never computed.
	ErrCacheMiss = errors.New("cache miss")
)

// Severity indicates issue impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	case "fatal":
		*s = SeverityFatal
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Issue kinds reported in diagnostics.
const (
	KindDroppedRecord    = "dropped_record"
	KindSkippedPartition = "skipped_partition"
	KindEmptyPartition   = "empty_partition"
	KindDroppedEdge      = "dropped_edge"
	KindAmbiguousClique  = "ambiguous_clique"
	KindForceResolved    = "force_resolved"
	KindUnranked         = "unranked_source"
	KindStaleCache       = "stale_cache"
)

// Issue is one diagnostics entry.
type Issue struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Source   string   `json:"source,omitempty"`
	Partner  string   `json:"partner,omitempty"`
	Country  string   `json:"country,omitempty"`
	RecordID string   `json:"record_id,omitempty"`
	Detail   string   `json:"detail"`
}

func (i Issue) Error() string {
	if i.RecordID != "" {
		return fmt.Sprintf("[%s] %s: %s (%s/%s)", i.Severity, i.Kind, i.Detail, i.Source, i.RecordID)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Kind, i.Detail)
}
