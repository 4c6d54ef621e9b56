package service

import (
	"errors"
	"fmt"

	"fileflow/internal/analyzer"
	"fileflow/internal/model"
)

var (
	// ErrValidation marks caller input the pipeline refuses; nothing is persisted.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateDelivery marks a delivery whose job was already settled or never existed.
	ErrDuplicateDelivery = errors.New("duplicate delivery")
	ErrNotFound          = errors.New("file not found")
	ErrNotArchived       = errors.New("file is not archived")
	ErrNotRedispatchable = errors.New("file is not awaiting dispatch")
)

// TransientError is a failure expected to go away on retry: store, broker or archive trouble.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RetryExhaustedError is recorded on a job after its last transient failure.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Reason is the text recorded on the job. The cause stays in the logs.
func (e *RetryExhaustedError) Reason() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempts", e.Attempts)
}

// Kind groups errors by how the pipeline reacts to them.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindAnalysis   Kind = "analysis"
	KindDuplicate  Kind = "duplicate"
	KindExhausted  Kind = "exhausted"
	KindNotFound   Kind = "not_found"
	KindUnknown    Kind = "unknown"
)

// Classify maps err to its Kind.
func Classify(err error) Kind {
	var (
		te *TransientError
		re *RetryExhaustedError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation), errors.Is(err, model.ErrMalformedMessage):
		return KindValidation
	case errors.As(err, &re):
		return KindExhausted
	case errors.As(err, &te):
		return KindTransient
	case analyzer.IsAnalysisError(err):
		return KindAnalysis
	case errors.Is(err, ErrDuplicateDelivery):
		return KindDuplicate
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindUnknown
}
