package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/vet-booking/internal/booking"
)

type ReserveRequest struct {
	PractitionerID  string    `json:"practitioner_id" validate:"required,uuid"`
	SlotTime        time.Time `json:"slot_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gte=5,lte=240"`
}

type ReservationResponse struct {
	ID              uuid.UUID `json:"id"`
	PractitionerID  uuid.UUID `json:"practitioner_id"`
	SlotTime        time.Time `json:"slot_time"`
	ExpiresAt       time.Time `json:"expires_at"`
	DurationMinutes int       `json:"duration_minutes"`
}

func toReservationResponse(r *booking.SlotReservation) ReservationResponse {
	return ReservationResponse{
		ID:              r.ID,
		PractitionerID:  r.PractitionerID,
		SlotTime:        r.SlotTime,
		ExpiresAt:       r.ExpiresAt,
		DurationMinutes: r.DurationMinutes,
	}
}

type BookAppointmentRequest struct {
	PetID          string    `json:"pet_id" validate:"required,uuid"`
	PractitionerID string    `json:"practitioner_id" validate:"required,uuid"`
	ClinicID       string    `json:"clinic_id" validate:"required,uuid"`
	SlotTime       time.Time `json:"slot_time" validate:"required"`
	Notes          string    `json:"notes" validate:"max=2000"`
	Type           string    `json:"type" validate:"required,max=64"`
}

type UpdateAppointmentRequest struct {
	ScheduledAt    *time.Time `json:"scheduled_at"`
	Notes          *string    `json:"notes" validate:"omitempty,max=2000"`
	Type           *string    `json:"type" validate:"omitempty,max=64"`
	PractitionerID *string    `json:"practitioner_id" validate:"omitempty,uuid"`
	Status         *string    `json:"status" validate:"omitempty,oneof=PENDING CONFIRMED CANCELLED"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	PetID          uuid.UUID `json:"pet_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	ClinicID       uuid.UUID `json:"clinic_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	Type           string    `json:"type"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PetID:          a.PetID,
		PractitionerID: a.PractitionerID,
		ClinicID:       a.ClinicID,
		ScheduledAt:    a.ScheduledAt,
		Status:         string(a.Status),
		Notes:          a.Notes,
		Type:           a.Type,
	}
}

type CalendarEntryResponse struct {
	Kind            string     `json:"kind"`
	AppointmentID   *uuid.UUID `json:"appointment_id,omitempty"`
	PetID           *uuid.UUID `json:"pet_id,omitempty"`
	ClinicID        *uuid.UUID `json:"clinic_id,omitempty"`
	PractitionerID  uuid.UUID  `json:"practitioner_id"`
	StartsAt        time.Time  `json:"starts_at"`
	Status          string     `json:"status"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

type PastAppointmentResponse struct {
	AppointmentResponse
	PetName   string `json:"pet_name"`
	OwnerName string `json:"owner_name"`
}

type PageResponse struct {
	Items  []PastAppointmentResponse `json:"items"`
	Total  int64                     `json:"total"`
	Number int                       `json:"page"`
	Size   int                       `json:"size"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
