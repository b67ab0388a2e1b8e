package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CalendarFor merges a practitioner's PENDING/CONFIRMED appointments in
// [from, to) with synthetic LOCKED entries for every live reservation in the
// window, regardless of holder. Appointment entries come first, then locks;
// callers needing one chronological order sort on their side.
func (s *Service) CalendarFor(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]CalendarEntry, error) {
	appts, err := s.appts.ListForPractitioner(ctx, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	entries := make([]CalendarEntry, 0, len(appts))
	for i := range appts {
		a := appts[i]
		entries = append(entries, CalendarEntry{
			Kind:           EntryAppointment,
			AppointmentID:  &a.ID,
			PetID:          &a.PetID,
			ClinicID:       &a.ClinicID,
			PractitionerID: a.PractitionerID,
			StartsAt:       a.ScheduledAt,
			Status:         string(a.Status),
		})
	}

	locks, err := s.locks.ListLiveForPractitioner(ctx, practitionerID, from, to, s.now())
	if err != nil {
		return nil, fmt.Errorf("list live reservations: %w", err)
	}

	for _, l := range locks {
		// No pet or clinic identity: viewers only learn the slot is held.
		entries = append(entries, CalendarEntry{
			Kind:            EntryLocked,
			PractitionerID:  l.PractitionerID,
			StartsAt:        l.SlotTime,
			Status:          string(EntryLocked),
			DurationMinutes: l.DurationMinutes,
		})
	}

	return entries, nil
}

// ClinicAppointments returns every appointment at the clinic in [from, to).
func (s *Service) ClinicAppointments(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return s.appts.ListForClinic(ctx, clinicID, from, to)
}

// OwnerAppointments returns every appointment for the owner's pets in
// [from, to).
func (s *Service) OwnerAppointments(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return s.appts.ListForOwner(ctx, ownerID, from, to)
}

// PastAppointments runs the paginated search for a clinic, practitioner, or
// owner scope.
func (s *Service) PastAppointments(ctx context.Context, scope SearchScope, filter SearchFilter, page Page) (*AppointmentPage, error) {
	return s.appts.SearchPast(ctx, scope, filter, page)
}
