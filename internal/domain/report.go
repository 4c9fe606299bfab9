package domain

import "fmt"

// RowFailure names a single row that could not be ingested.
type RowFailure struct {
	ID          string // empty when the row never got an ID
	Description string
	Reason      string
}

// BatchReport is the per-batch outcome of a dual-store write. Row failures
// accumulate here and never abort the batch on their own.
type BatchReport struct {
	BatchID    string
	SourceFile string
	Succeeded  int
	Skipped    int // already stored, identical content
	Failed     int
	Failures   []RowFailure
}

// AddFailure records a failed row.
func (r *BatchReport) AddFailure(id, description, reason string) {
	r.Failed++
	r.Failures = append(r.Failures, RowFailure{ID: id, Description: description, Reason: reason})
}

// Summary renders a one-line outcome for logs and the CLI.
func (r *BatchReport) Summary() string {
	return fmt.Sprintf("%s: %d succeeded, %d skipped, %d failed",
		r.SourceFile, r.Succeeded, r.Skipped, r.Failed)
}
