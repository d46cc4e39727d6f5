package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/nwp"
)

// Kind classifies a pipeline failure. The CLI maps kinds to exit codes
// and the HTTP adapter maps them to status codes, so the set is closed.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindGeocoding
	KindAllModelsFailed
	KindAggregation
	KindTimeout
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindNotFound:
		return "location not found"
	case KindGeocoding:
		return "geocoding failed"
	case KindAllModelsFailed:
		return "model fetches failed"
	case KindAggregation:
		return "aggregation failed"
	case KindTimeout:
		return "timed out"
	case KindCanceled:
		return "canceled"
	default:
		return "internal error"
	}
}

// Error is the pipeline's failure surface. Op names the stage that
// failed; Err carries the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// AllModelsFailedError reports a fan-out that produced no usable
// forecasts, or too few to satisfy the configured minimum success rate.
// It carries the per-model failures for diagnostics.
type AllModelsFailedError struct {
	Requested int
	Successes int
	Rate      float64
	MinRate   float64
	Failures  []nwp.ModelFailure
}

func (e *AllModelsFailedError) Error() string {
	if e.Successes == 0 {
		return fmt.Sprintf("all %d models failed", e.Requested)
	}
	return fmt.Sprintf("only %d of %d models responded (%.0f%% < required %.0f%%)",
		e.Successes, e.Requested, e.Rate*100, e.MinRate*100)
}

// Classify maps any error surfaced by the pipeline to a Kind. Unknown
// errors classify as internal.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	var allFailed *AllModelsFailedError
	var notFound *geocode.NotFoundError
	var svcErr *geocode.ServiceError
	var incoherent *consensus.IncoherentError
	switch {
	case errors.As(err, &allFailed):
		return KindAllModelsFailed
	case errors.Is(err, geocode.ErrInvalidInput):
		return KindInvalidInput
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &svcErr):
		return KindGeocoding
	case errors.Is(err, consensus.ErrEmptyForecasts), errors.As(err, &incoherent):
		return KindAggregation
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// wrapGeocode classifies a geocoder failure. Cancellation and deadline
// errors keep their own kinds so callers can tell them from provider
// failures.
func wrapGeocode(op string, err error) error {
	kind := KindGeocoding
	var notFound *geocode.NotFoundError
	switch {
	case errors.Is(err, geocode.ErrInvalidInput):
		kind = KindInvalidInput
	case errors.As(err, &notFound):
		kind = KindNotFound
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
