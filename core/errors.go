package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind tags a provider failure so every layer can branch on the kind
// instead of on concrete provider error types.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// Retryable kinds.
	KindTimeout
	KindConnection
	KindRateLimited

	// Non-retryable kinds.
	KindInvalidRequest
	KindProviderFault
	KindAuthFailure
)

// String returns the kind's stable name.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	case KindProviderFault:
		return "provider_fault"
	case KindAuthFailure:
		return "auth_failure"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnection, KindRateLimited:
		return true
	default:
		return false
	}
}

// ProviderError is the single error type for failures of the external
// generation and embedding capabilities.
type ProviderError struct {
	Kind     ErrorKind
	Provider string

	// RetryAfter is the provider's requested delay for KindRateLimited,
	// zero when the provider gave no hint.
	RetryAfter time.Duration

	Err error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with a kind and provider name.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the error kind, KindUnknown for non-provider errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is a provider error worth retrying.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

var (
	// ErrNotFound is returned by document operations on an absent id.
	ErrNotFound = errors.New("document not found")

	// ErrDimensionMismatch is returned when an embedding's length disagrees
	// with the configured index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptySpread is returned by Interpret when no cards were given.
	ErrEmptySpread = errors.New("spread contains no cards")

	// ErrInterpretationUnavailable is the terminal failure surfaced to the
	// caller after every retry and fallback has been exhausted.
	ErrInterpretationUnavailable = errors.New("interpretation unavailable")
)
