package worker

import (
	"context"
	"errors"

	"github.com/alioptr7/the-first-sub000/internal/transfer"
)

// Outcome is how the scheduler treats one job run.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Result of one job run.
type Result struct {
	Outcome Outcome
	Err     error
	Summary string
}

func OK(summary string) Result { return Result{Outcome: OutcomeOK, Summary: summary} }

// Failed builds a Result whose outcome is derived from err.
func Failed(err error, summary string) Result {
	return Result{Outcome: Classify(err), Err: err, Summary: summary}
}

// Classify maps an error to an Outcome. Corrupt or unknown input is fatal;
// I/O, store and timeout errors are retryable.
func Classify(err error) Outcome {
	var (
		tio *transfer.TransientIOError
		se  *transfer.SchemaError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &tio):
		return OutcomeRetryable
	case errors.Is(err, context.Canceled),
		errors.Is(err, transfer.ErrUnknownKind),
		errors.Is(err, transfer.ErrChecksumMismatch),
		errors.Is(err, transfer.ErrMissingMetadata),
		errors.Is(err, transfer.ErrInvalidMetadata),
		errors.As(err, &se):
		return OutcomeFatal
	default:
		return OutcomeRetryable
	}
}
