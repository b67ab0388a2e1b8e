package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Caller-facing errors. All are recoverable; nothing in this package is fatal
// to the process.
var (
	// ErrSlotReserved means another holder currently holds a live reservation
	// for the slot.
	ErrSlotReserved = errors.New("this time slot is temporarily reserved by another user")
	// ErrSlotAlreadyBooked means an appointment already occupies the slot.
	ErrSlotAlreadyBooked = errors.New("this time slot is already booked")
	// ErrSlotTaken means the final insert lost a race: the storage-level
	// uniqueness constraint fired.
	ErrSlotTaken = errors.New("this practitioner already has an appointment at the selected time")
	// ErrSlotContended means the per-slot lock could not be acquired; the
	// caller should retry shortly.
	ErrSlotContended = errors.New("slot is currently being processed, please retry")

	ErrNoReservation        = errors.New("you must reserve a time slot before booking")
	ErrNotReservationHolder = errors.New("this time slot is reserved by another user")
	ErrReservationExpired   = errors.New("your reservation has expired, please select the time slot again")
	ErrNotOwner             = errors.New("you do not have permission to release this reservation")

	ErrPractitionerInactive    = errors.New("the selected practitioner is currently inactive")
	ErrPractitionerNotInClinic = errors.New("the selected practitioner does not belong to this clinic")
	ErrInvalidState            = errors.New("operation not permitted in the current appointment status")
	ErrUnauthorized            = errors.New("you do not have permission to perform this operation")
)

// Store-level sentinels, translated by the service into the taxonomy above.
var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrDuplicateSlot       = errors.New("slot uniqueness constraint violated")
	ErrDuplicateHolder     = errors.New("holder already has a reservation")
	ErrStaleStatus         = errors.New("appointment status changed concurrently")
)

// NotFoundError reports a missing referenced entity together with its kind.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError of any kind.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
