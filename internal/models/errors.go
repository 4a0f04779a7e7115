package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for state-machine violations.
var (
	// ErrJobTerminal is returned when mutating a job in an absorbing state.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrJobNotFound is returned when a job id resolves to nothing.
	ErrJobNotFound = errors.New("job not found")
)

// ErrorTag is the taxonomy tag carried to the operator and the logs.
type ErrorTag string

const (
	TagSourceUnsupported       ErrorTag = "validation.source_unsupported"
	TagCodecContainerMismatch  ErrorTag = "validation.codec_container_mismatch"
	TagProxyProfileMismatch    ErrorTag = "validation.proxy_profile_mismatch"
	TagSourceMissing           ErrorTag = "validation.source_missing_or_not_file"
	TagNamingTemplateAmbiguous ErrorTag = "validation.naming_template_ambiguous"
	TagResolveAvailability     ErrorTag = "validation.resolve_availability"
	TagResolvePresetMissing    ErrorTag = "validation.resolve_preset_missing"
	TagEditionMismatch         ErrorTag = "validation.edition_mismatch"
	TagEngineFailure           ErrorTag = "execution.engine_failure"
	TagInterruptedByRestart    ErrorTag = "execution.interrupted_by_restart"
	TagCancelled               ErrorTag = "execution.cancelled"
	TagWorkerLimitExceeded     ErrorTag = "license.worker_limit_exceeded"
)

// ValidationError is surfaced to the caller; nothing is persisted when one is
// raised. The tag travels through logs and HTTP responses.
type ValidationError struct {
	Tag               ErrorTag
	Message           string
	RecommendedAction string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.RecommendedAction != "" {
		return fmt.Sprintf("%s: %s (recommended: %s)", e.Tag, e.Message, e.RecommendedAction)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

// NewValidationError constructs a tagged validation error.
func NewValidationError(tag ErrorTag, format string, args ...any) *ValidationError {
	return &ValidationError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches a recommended action and returns the error.
func (e *ValidationError) WithAction(action string) *ValidationError {
	e.RecommendedAction = action
	return e
}

// AsValidationError unwraps err to a ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// ExecutionFailure renders a task failure reason with its taxonomy tag.
func ExecutionFailure(tag ErrorTag, detail string) string {
	if detail == "" {
		return string(tag)
	}
	return fmt.Sprintf("%s: %s", tag, detail)
}
