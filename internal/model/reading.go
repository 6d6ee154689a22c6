// Package model defines the records that flow through an ingestion cycle.
package model

import "time"

// ErrorKind classifies why a reading or a storage operation degraded.
// The empty value means no error.
type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorNavigationFailed  ErrorKind = "navigation_failed"
	ErrorTimeout           ErrorKind = "timeout"
	ErrorPartialExtraction ErrorKind = "partial_extraction"
	ErrorUnparsable        ErrorKind = "unparsable"
	ErrorStorageFault      ErrorKind = "storage_fault"
)

// Failed reports whether the kind means the source contributed nothing
// usable this cycle. Partial extractions still loaded the page.
func (k ErrorKind) Failed() bool {
	switch k {
	case ErrorNavigationFailed, ErrorTimeout:
		return true
	default:
		return false
	}
}

// Range is a low/high pair where either side may be missing.
type Range struct {
	Low  *float64 `json:"low" yaml:"low"`
	High *float64 `json:"high" yaml:"high"`
}

// SourceReading is one source's view of the indicator for a single cycle.
// Nil numeric fields mean the value was absent or unparsable.
type SourceReading struct {
	SourceID       string        `json:"source_id" yaml:"source_id"`
	Value          *float64      `json:"value" yaml:"value"`
	ChangeAbsolute *float64      `json:"change_absolute" yaml:"change_absolute"`
	ChangePercent  *float64      `json:"change_percent" yaml:"change_percent"`
	PreviousClose  *float64      `json:"previous_close" yaml:"previous_close"`
	Open           *float64      `json:"open" yaml:"open"`
	Range          *Range        `json:"range" yaml:"range"`
	ObservedAt     time.Time     `json:"observed_at" yaml:"observed_at"`
	RelatedItems   []ContentItem `json:"related_items,omitempty" yaml:"related_items,omitempty"`
	Error          ErrorKind     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorDetail    string        `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
}

// Succeeded reports whether the source page was reached.
func (r SourceReading) Succeeded() bool {
	return !r.Error.Failed()
}

// FailedReading builds a reading that carries only an error.
func FailedReading(sourceID string, kind ErrorKind, detail string, at time.Time) SourceReading {
	return SourceReading{
		SourceID:    sourceID,
		ObservedAt:  at,
		Error:       kind,
		ErrorDetail: detail,
	}
}
