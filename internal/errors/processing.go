package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ProcessingKind identifies why an analysis failed. The kind is assigned by the
// component that detected the failure and persisted alongside the job.
type ProcessingKind string

const (
	KindInvalidRepositoryURL ProcessingKind = "INVALID_REPOSITORY_URL"
	KindUnsupportedProvider  ProcessingKind = "UNSUPPORTED_PROVIDER"
	KindRepoNotFound         ProcessingKind = "REPO_NOT_FOUND"
	KindRepoAccessDenied     ProcessingKind = "REPO_ACCESS_DENIED"
	KindAnalysisRejected     ProcessingKind = "ANALYSIS_REJECTED"
	KindNetworkError         ProcessingKind = "NETWORK_ERROR"
	KindRateLimited          ProcessingKind = "RATE_LIMITED"
	KindProcessingTimeout    ProcessingKind = "PROCESSING_TIMEOUT"
	KindProviderError        ProcessingKind = "PROVIDER_ERROR"
	KindWorkerLost           ProcessingKind = "WORKER_LOST"
	KindCancelled            ProcessingKind = "CANCELLED"
	KindUnknown              ProcessingKind = "UNKNOWN_ERROR"
)

type kindInfo struct {
	retryable   bool
	userMessage string
}

var kinds = map[ProcessingKind]kindInfo{
	KindInvalidRepositoryURL: {false, "The repository URL is not valid."},
	KindUnsupportedProvider:  {false, "This repository host is not supported."},
	KindRepoNotFound:         {false, "The repository could not be found. Check the URL and that it is public."},
	KindRepoAccessDenied:     {false, "The repository is private or access was denied."},
	KindAnalysisRejected:     {false, "The analysis provider rejected this repository."},
	KindNetworkError:         {true, "A network error occurred while contacting an upstream service. Please retry."},
	KindRateLimited:          {true, "An upstream service is rate limiting requests. Please retry later."},
	KindProcessingTimeout:    {true, "The analysis timed out. Please retry."},
	KindProviderError:        {true, "The analysis provider is temporarily unavailable. Please retry."},
	KindWorkerLost:           {true, "The analysis was interrupted before it finished. Please retry."},
	KindCancelled:            {true, "The analysis was cancelled."},
	KindUnknown:              {false, "An unexpected error occurred."},
}

// Valid reports whether k is a known kind.
func (k ProcessingKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Retryable reports whether failures of this kind may be retried. Unknown kinds are not retryable.
func (k ProcessingKind) Retryable() bool {
	return kinds[k].retryable
}

// UserMessage returns the caller-facing explanation for the kind.
func (k ProcessingKind) UserMessage() string {
	if info, ok := kinds[k]; ok {
		return info.userMessage
	}
	return kinds[KindUnknown].userMessage
}

// ParseProcessingKind normalizes a stored code. Unrecognized values map to KindUnknown.
func ParseProcessingKind(s string) ProcessingKind {
	k := ProcessingKind(strings.ToUpper(strings.TrimSpace(s)))
	if k.Valid() {
		return k
	}
	return KindUnknown
}

// ProcessingError is a tagged analysis failure. Retryable is fixed by the code
// that created the error, never inferred from Message.
type ProcessingError struct {
	Kind      ProcessingKind
	Retryable bool
	Message   string
	Cause     error
}

func (e *ProcessingError) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return string(e.Kind)
	}
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// Transient creates a retryable ProcessingError.
func Transient(kind ProcessingKind, cause error, format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: kind, Retryable: true, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Permanent creates a non-retryable ProcessingError.
func Permanent(kind ProcessingKind, cause error, format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: kind, Retryable: false, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AsProcessingError extracts a ProcessingError from err's chain.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// DeliveryError describes a failed webhook POST: either a non-2xx status or a transport error.
type DeliveryError struct {
	StatusCode int
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return "webhook delivery failed: " + e.Cause.Error()
	}
	return fmt.Sprintf("webhook delivery failed: unexpected status %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }
