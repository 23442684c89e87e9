package ledger

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/rates"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrTripClosed blocks attaching a new entry to a closed trip.
	ErrTripClosed = errors.New("trip is closed")
	// ErrTripVehicleMismatch is wrapped by the ValidationError raised when an
	// entry references a trip of another vehicle.
	ErrTripVehicleMismatch = errors.New("trip belongs to another vehicle")
	// ErrInvalidTransition rejects a trip status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid trip status transition")

	ErrNotFound        = db.ErrNotFound
	ErrRateUnavailable = rates.ErrRateUnavailable

	errNoResolver = errors.New("no rate resolver configured")
)

// ValidationError reports a malformed draft or patch. It is raised before any
// I/O except for checks that need the referenced trip.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, db.ErrNotFound)
}

// rateUnavailable makes sure a resolver failure is reported as
// ErrRateUnavailable while keeping the cause.
func rateUnavailable(currency string, err error) error {
	if errors.Is(err, rates.ErrRateUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", rates.ErrRateUnavailable, currency, err)
}
