package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known appointment status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the appointment state machine. CANCELLED is terminal;
// CONFIRMED can only move to CANCELLED.
func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled
	}
	return false
}

// SlotReservation is a short-lived exclusive claim on a (practitioner, time)
// slot, held by a requesting party pending booking completion. It is never
// itself an appointment and is not historized.
type SlotReservation struct {
	ID              uuid.UUID
	PractitionerID  uuid.UUID
	SlotTime        time.Time
	HolderID        uuid.UUID
	ExpiresAt       time.Time
	DurationMinutes int
	CreatedAt       time.Time
}

// Live reports whether the reservation still blocks its slot at the given
// instant.
func (r *SlotReservation) Live(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

type Appointment struct {
	ID             uuid.UUID
	PetID          uuid.UUID
	PractitionerID uuid.UUID
	ClinicID       uuid.UUID
	ScheduledAt    time.Time
	Status         Status
	Notes          string
	Type           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppointmentRecord is an appointment joined with the pet and owner names,
// used by the past-appointment search.
type AppointmentRecord struct {
	Appointment
	PetName   string
	OwnerName string
}

type EntryKind string

const (
	EntryAppointment EntryKind = "APPOINTMENT"
	EntryLocked      EntryKind = "LOCKED"
)

// CalendarEntry is one row of a practitioner's merged calendar view. LOCKED
// entries come from live reservations and deliberately carry no pet or clinic
// identity so viewers cannot tell who is holding the slot.
type CalendarEntry struct {
	Kind            EntryKind
	AppointmentID   *uuid.UUID
	PetID           *uuid.UUID
	ClinicID        *uuid.UUID
	PractitionerID  uuid.UUID
	StartsAt        time.Time
	Status          string
	DurationMinutes int
}

type SearchScopeKind string

const (
	ScopeClinic       SearchScopeKind = "clinic"
	ScopePractitioner SearchScopeKind = "practitioner"
	ScopeOwner        SearchScopeKind = "owner"
)

type SearchScope struct {
	Kind SearchScopeKind
	ID   uuid.UUID
}

// SearchFilter narrows a past-appointment search. Name filters are
// case-insensitive substring matches; empty means no filter. The time window
// only applies when both bounds are set.
type SearchFilter struct {
	PetName   string
	OwnerName string
	From      *time.Time
	To        *time.Time
}

type Page struct {
	Number int // zero-based
	Size   int
}

type AppointmentPage struct {
	Items  []AppointmentRecord
	Total  int64
	Number int
	Size   int
}
