package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidExecContext   = errors.New("invalid database execution context")
	ErrReadDatabaseRow      = errors.New("failed to read database row")
	ErrJobTerminal          = errors.New("job already in a terminal state")
	ErrJobLocked            = errors.New("job is owned by another worker")
	ErrInvalidTransition    = errors.New("invalid job status transition")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrParseFailure         = errors.New("document text extraction failed")
	ErrRetrievalUnavailable = errors.New("reference index empty or unreachable")
)

// LLMExhaustedError is returned when the LLM client has used up its retry
// budget. Attempts counts every call made, including the first.
type LLMExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *LLMExhaustedError) Error() string {
	return fmt.Sprintf("llm call exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *LLMExhaustedError) Unwrap() error { return e.LastErr }

// SchemaValidationError marks an LLM response that parsed but violated the
// declared output shape (missing field, score out of range). The stage
// re-prompts a bounded number of times before giving up.
type SchemaValidationError struct {
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation: field %q %s", e.Field, e.Reason)
}

// StageError ties a failure to the pipeline stage that produced it so the
// orchestrator can record which stage sank the job.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
