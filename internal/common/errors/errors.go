// Package errors provides standardized error handling for the resolution pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Terminal lookup outcomes: the case fails, no retry.
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeParseFailed ErrorCode = "PARSE_FAILED"

	// Transient infrastructure errors: retried at the queue level.
	ErrCodeLookupTimeout      ErrorCode = "LOOKUP_TIMEOUT"
	ErrCodeVinDecodeTimeout   ErrorCode = "VIN_DECODE_TIMEOUT"
	ErrCodeCatalogUnavailable ErrorCode = "CATALOG_UNAVAILABLE"
	ErrCodeDatabaseFailed     ErrorCode = "DATABASE_FAILED"
	ErrCodeSnapshotWriteFail  ErrorCode = "SNAPSHOT_WRITE_FAILED"

	// Degradable errors: absorbed at the call site, never fail the job.
	ErrCodeSearchSourceFailed ErrorCode = "SEARCH_SOURCE_FAILED"
	ErrCodeLLMParseFailed     ErrorCode = "LLM_PARSE_FAILED"
	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeSecretUnavailable  ErrorCode = "SECRET_UNAVAILABLE"

	ErrCodeSuggestionDeliveryFailed ErrorCode = "SUGGESTION_DELIVERY_FAILED"
)

// PipelineError represents a structured application error.
type PipelineError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("PipelineError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the pipeline error code from err, or "" when err is not
// a PipelineError.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRetryable reports whether the queue should retry a job that failed
// with err. Unknown errors are treated as retryable technical failures.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNotFoundError creates the terminal catalog-has-no-record error.
func NewNotFoundError(idType, value string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeNotFound,
		Message:   "Catalog has no record for the identifier",
		Details:   fmt.Sprintf("idType: %s, value: %s", idType, value),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewParseFailedError creates the terminal no-identifying-data error.
func NewParseFailedError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeParseFailed,
		Message:   "Catalog responded but yielded neither OEM nor model",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLookupTimeoutError creates a retryable catalog timeout error.
func NewLookupTimeoutError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeLookupTimeout,
		Message:   "Catalog lookup timeout",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogUnavailableError creates a retryable catalog transport error,
// for connection-level failures that never produced an HTTP response.
func NewCatalogUnavailableError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeCatalogUnavailable,
		Message:   "Catalog is unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewVinDecodeTimeoutError creates a retryable VIN decode timeout error.
func NewVinDecodeTimeoutError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeVinDecodeTimeout,
		Message:   "VIN decode service timeout",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable database error.
func NewDatabaseError(op string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSnapshotWriteError creates a retryable snapshot persistence error.
func NewSnapshotWriteError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSnapshotWriteFail,
		Message:   "Price snapshot write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchSourceError marks a single price source failure. The cascade
// absorbs it and advances to the next stage instead of failing.
func NewSearchSourceError(source string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSearchSourceFailed,
		Message:   fmt.Sprintf("Price source '%s' failed", source),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMParseError marks an unparseable LLM response. Never propagated as a
// job failure; callers resolve it to the documented low-confidence fallback.
func NewLLMParseError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeLLMParseFailed,
		Message:   "LLM returned unparseable output",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates an LLM timeout error.
func NewLLMTimeoutError() *PipelineError {
	return &PipelineError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM call exceeded timeout threshold",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSecretUnavailableError marks a missing credential. Downgrades the paid
// branch rather than failing the job.
func NewSecretUnavailableError(scope, key string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSecretUnavailable,
		Message:   "Credential unavailable, branch skipped",
		Details:   fmt.Sprintf("scope: %s, key: %s", scope, key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSuggestionDeliveryError creates a retryable delivery error.
func NewSuggestionDeliveryError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSuggestionDeliveryFailed,
		Message:   "Suggestion delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the queue-level retry budget for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseFailed,
		ErrCodeSnapshotWriteFail,
		ErrCodeSuggestionDeliveryFailed:
		return 3 // Retryable technical errors

	case ErrCodeLookupTimeout,
		ErrCodeVinDecodeTimeout,
		ErrCodeCatalogUnavailable:
		return 2 // Partial retry for timeouts and unreachable upstreams

	default:
		return 0 // Terminal and degradable errors: no queue retry
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "LLM"):
		return "AI"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "SNAPSHOT"):
		return "DATABASE"
	case strings.Contains(codeStr, "SECRET"):
		return "CREDENTIALS"
	case strings.Contains(codeStr, "TIMEOUT"):
		return "TIMEOUT"
	case strings.Contains(codeStr, "SUGGESTION"):
		return "DELIVERY"
	default:
		return "LOOKUP"
	}
}
