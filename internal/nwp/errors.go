package nwp

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an upstream failure. The transient kinds are the
// ones worth retrying: the fetcher retries them inside its policy limit,
// and the fan-out reports whatever remains as per-model failures.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindRateLimited
	KindNetwork
	KindRequestFailed
	KindInvalidResponse
	KindDecode
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate limited"
	case KindNetwork:
		return "network error"
	case KindRequestFailed:
		return "request failed"
	case KindInvalidResponse:
		return "invalid response"
	case KindDecode:
		return "decode error"
	case KindUnavailable:
		return "service unavailable"
	default:
		return "unknown"
	}
}

// APIError is the failure surface of a single model fetch. Status is the
// HTTP status when one was received; RetryAfter is the server-requested
// delay on a 429, zero when absent.
type APIError struct {
	Model      string
	Kind       ErrorKind
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("model %s: %s", e.Model, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether a retry could plausibly succeed: timeouts,
// rate limiting, network resets, upstream unavailability, and 5xx
// responses. Client errors, API error envelopes, and undecodable payloads
// are fatal.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindNetwork, KindUnavailable:
		return true
	case KindRequestFailed:
		return e.Status >= 500
	default:
		return false
	}
}

// Transient is the predicate form for callers that hold a plain error.
// Non-APIError values (including cancellation) are never transient.
func Transient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}
