package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProbe         = errors.New("probe error")
	ErrValidation    = errors.New("validation error")
	ErrNormalize     = errors.New("normalize error")
	ErrEncode        = errors.New("encode error")
	ErrVerification  = errors.New("verification error")
	ErrPublish       = errors.New("publish error")
	ErrCleanup       = errors.New("cleanup error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the error represents a transient fault that the
// runner may retry within the owning stage's budget. Probe and validation
// failures are deterministic source-data faults and never retry.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNormalize),
		errors.Is(err, ErrEncode),
		errors.Is(err, ErrVerification),
		errors.Is(err, ErrPublish),
		errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

// Kind returns the taxonomy name for the error's sentinel marker, suitable for
// persistence in queue rows and structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProbe):
		return "probe"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNormalize):
		return "normalize"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrVerification):
		return "verification"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrCleanup):
		return "cleanup"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient"
	}
}

// ErrorDetails carries the structured view of a wrapped stage error.
type ErrorDetails struct {
	Kind    string
	Message string
	Cause   error
}

// Details extracts structured failure information from a wrapped error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Kind:    Kind(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
