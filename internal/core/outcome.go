package core

import (
	"errors"
	"fmt"
)

// ErrValidation marks input that was rejected before any store access.
var ErrValidation = errors.New("validation failed")

// Invalid wraps err so that errors.Is(err, ErrValidation) holds.
func Invalid(err error) error {
	if err == nil || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// Outcome is the user-facing category of a submission result.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeInvalidInput  Outcome = "invalid_input"
	OutcomeRemoteFailure Outcome = "remote_failure"
)

// Classify maps an operation error to an Outcome. Anything that is not a
// validation error is treated as a remote failure.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrValidation):
		return OutcomeInvalidInput
	default:
		return OutcomeRemoteFailure
	}
}

// Message returns the text shown to the donor for a donation outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return "Donation successful!"
	case OutcomeInvalidInput:
		return "Please enter a valid donation amount."
	default:
		return "We could not save your donation. Please try again."
	}
}
