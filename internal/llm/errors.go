package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
)

// ErrorType is a coarse classification of upstream failures.
type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate_limit"
	ErrorContext   ErrorType = "context_length"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

// UpstreamServiceError wraps a failed embedding, completion or vector-store call.
type UpstreamServiceError struct {
	Service    string
	Type       ErrorType
	StatusCode int
	Err        error
}

func (e *UpstreamServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s service error (%s, status %d): %v", e.Service, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s service error (%s): %v", e.Service, e.Type, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

// UpstreamTimeoutError is returned when an upstream call exceeded its deadline.
type UpstreamTimeoutError struct {
	Service string
	Err     error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s service timed out: %v", e.Service, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// ClassifyError maps a raw provider error onto UpstreamServiceError or
// UpstreamTimeoutError. Cancellation is passed through untouched.
func ClassifyError(service string, err error) error {
	if err == nil {
		return nil
	}

	var svcErr *UpstreamServiceError
	var timeoutErr *UpstreamTimeoutError
	if errors.As(err, &svcErr) || errors.As(err, &timeoutErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamTimeoutError{Service: service, Err: err}
	}

	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}

	return &UpstreamServiceError{
		Service:    service,
		Type:       classify(status, err),
		StatusCode: status,
		Err:        err,
	}
}

func classify(status int, err error) ErrorType {
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "insufficient_quota"), strings.Contains(e, "quota"):
		return ErrorQuota
	case status == 429, isRateLimitError(err):
		return ErrorRate
	case strings.Contains(e, "context_length"), strings.Contains(e, "too long"), strings.Contains(e, "maximum context"):
		return ErrorContext
	case status >= 500, strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"), strings.Contains(e, "connection reset"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// IsUpstreamError reports whether err is one of the upstream error types.
func IsUpstreamError(err error) bool {
	var svcErr *UpstreamServiceError
	var timeoutErr *UpstreamTimeoutError
	return errors.As(err, &svcErr) || errors.As(err, &timeoutErr)
}
