package domain

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaInferenceError means a required canonical field could not be mapped
// from the CSV header. Fatal for the whole file: a transaction record is
// meaningless without date, description and amount.
type SchemaInferenceError struct {
	File    string
	Missing []string
}

func (e *SchemaInferenceError) Error() string {
	return fmt.Sprintf("schema inference failed for %s: unmappable field(s): %s",
		e.File, strings.Join(e.Missing, ", "))
}

// EnrichmentError marks a failed merchant lookup. Recoverable: the record
// proceeds unenriched.
type EnrichmentError struct {
	Description string
	Err         error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed for %q: %v", e.Description, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// StoreUnavailableError means a storage backend is unreachable. Fatal for
// the whole batch; the partial report produced so far is still returned.
type StoreUnavailableError struct {
	Store string // "relational" or "vector"
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ConsistencyError means the vector-store write failed after the relational
// write succeeded. The relational row is rolled back (compensating delete)
// to keep the cross-store invariant.
type ConsistencyError struct {
	ID  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cross-store consistency violated for %s: %v", e.ID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// ToolInputError means a tool rejected a malformed structured query. The
// router retries with corrected parameters or falls back to the other tool.
type ToolInputError struct {
	Tool   string
	Reason string
}

func (e *ToolInputError) Error() string {
	return fmt.Sprintf("tool %s rejected input: %s", e.Tool, e.Reason)
}

// ErrStepLimit signals the router hit its step cap. Non-fatal: the answer
// produced is flagged partial instead.
var ErrStepLimit = errors.New("router step limit reached")
