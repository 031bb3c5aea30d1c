package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSlot       = errors.New("time is not a bookable slot")
	ErrConflict          = errors.New("slot is no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")

	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)

	// ErrStaleSnapshot is returned by Store.Apply when another writer
	// committed after the snapshot the changes were validated against.
	ErrStaleSnapshot = errors.New("appointment snapshot is stale")
)

// TransitionError carries the offending statuses; it matches
// ErrInvalidTransition under errors.Is.
type TransitionError struct {
	ID   int64
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment %d: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
