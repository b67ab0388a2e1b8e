package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/vet-booking/internal/directory"
	"github.com/vetdesk/vet-booking/internal/notify"
)

// LockStore persists slot reservations. Implementations must back the
// (practitioner_id, slot_time) pair and the holder with uniqueness
// constraints; Create reports violations as ErrDuplicateSlot or
// ErrDuplicateHolder.
type LockStore interface {
	Create(ctx context.Context, r SlotReservation) (*SlotReservation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*SlotReservation, error)
	FindBySlot(ctx context.Context, practitionerID uuid.UUID, slotTime time.Time) (*SlotReservation, error)
	FindByHolder(ctx context.Context, holderID uuid.UUID) (*SlotReservation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByHolder(ctx context.Context, holderID uuid.UUID) error

	// DeleteExpired removes every reservation with expires_at before now and
	// reports how many were swept.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// ListLiveForPractitioner returns unexpired reservations whose slot time
	// falls in [from, to).
	ListLiveForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to, now time.Time) ([]SlotReservation, error)
}

// Repository contains all appointment persistence needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ExistsActiveAt reports whether a PENDING or CONFIRMED appointment
	// occupies the slot.
	ExistsActiveAt(ctx context.Context, practitionerID uuid.UUID, at time.Time) (bool, error)

	// CreateFromReservation inserts the appointment and deletes the
	// reservation in one transaction. A uniqueness violation on the insert
	// surfaces as ErrDuplicateSlot and leaves the reservation in place.
	CreateFromReservation(ctx context.Context, a Appointment, reservationID uuid.UUID) (*Appointment, error)

	// UpdateStatus transitions only when the current status matches from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	Update(ctx context.Context, a Appointment) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Range reads, [from, to). ListForPractitioner is limited to PENDING and
	// CONFIRMED rows; the clinic and owner variants return all statuses.
	ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListForClinic(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	SearchPast(ctx context.Context, scope SearchScope, filter SearchFilter, page Page) (*AppointmentPage, error)
}

// Directory resolves the entities an appointment references. Implemented by
// directory.PgDirectory.
type Directory interface {
	PetByID(ctx context.Context, id uuid.UUID) (*directory.Pet, error)
	PractitionerByID(ctx context.Context, id uuid.UUID) (*directory.Practitioner, error)
	ClinicByID(ctx context.Context, id uuid.UUID) (*directory.Clinic, error)
}

// AccessChecker answers clinic staff/owner authorization questions.
type AccessChecker interface {
	HasClinicAccess(ctx context.Context, actor directory.Actor, clinicID uuid.UUID) (bool, error)
}

// Notifier delivers fire-and-forget notifications.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message)
}
