package appliance

import (
	"errors"
	"fmt"
)

// Domain errors for the appliance package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, appliance.ErrUnauthorized) {
//	    // reject the request
//	}
var (
	// ErrUnauthorized is returned when the supplied secret does not match
	// the configured appliance password.
	ErrUnauthorized = errors.New("appliance: invalid password")

	// ErrInvalidPin is returned when a pin name is outside the board's
	// d0..d8 set. The concrete error is an *InvalidPinError carrying the
	// offending name.
	ErrInvalidPin = errors.New("appliance: invalid pin name")

	// ErrInvalidState is returned when a state token is not one of
	// on/off/high/low. The concrete error is an *InvalidStateError.
	ErrInvalidState = errors.New("appliance: invalid state")

	// ErrUnavailable is returned when the broker connection cannot be
	// established. The next request dials again.
	ErrUnavailable = errors.New("appliance: broker unavailable")

	// ErrPublish is returned when a command could not be delivered to
	// the broker.
	ErrPublish = errors.New("appliance: publish failed")
)

// InvalidPinError identifies the pin name that failed validation.
type InvalidPinError struct {
	Name string
}

func (e *InvalidPinError) Error() string {
	return fmt.Sprintf("appliance: invalid pin name %q (must be d0-d8)", e.Name)
}

// Unwrap makes errors.Is(err, ErrInvalidPin) work.
func (e *InvalidPinError) Unwrap() error {
	return ErrInvalidPin
}

// InvalidStateError identifies the state token that failed validation.
type InvalidStateError struct {
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("appliance: invalid state %q (must be on, off, high, or low)", e.State)
}

// Unwrap makes errors.Is(err, ErrInvalidState) work.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
