package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/vet-booking/internal/directory"
	"github.com/vetdesk/vet-booking/internal/notify"
	redisclient "github.com/vetdesk/vet-booking/internal/redis"
)

// DefaultReservationTTL is how long a slot reservation blocks its slot.
const DefaultReservationTTL = 5 * time.Minute

const relatedAppointment = "APPOINTMENT"

type Service struct {
	appts    Repository
	locks    LockStore
	dir      Directory
	access   AccessChecker
	notifier Notifier
	locker   redisclient.SlotLocker

	holdTTL time.Duration
	now     func() time.Time
}

type Option func(*Service)

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithReservationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func NewService(appts Repository, locks LockStore, dir Directory, access AccessChecker, notifier Notifier, locker redisclient.SlotLocker, opts ...Option) *Service {
	s := &Service{
		appts:    appts,
		locks:    locks,
		dir:      dir,
		access:   access,
		notifier: notifier,
		locker:   locker,
		holdTTL:  DefaultReservationTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookRequest struct {
	PetID          uuid.UUID
	PractitionerID uuid.UUID
	ClinicID       uuid.UUID
	SlotTime       time.Time
	Notes          string
	Type           string
}

// Book converts the requester's reservation for (practitioner, slot) into a
// PENDING appointment. The reservation must exist, belong to the requester,
// and be unexpired. The appointment insert and the reservation delete happen
// in one transaction; on any failure no appointment exists and a still-valid
// reservation is untouched.
func (s *Service) Book(ctx context.Context, req BookRequest, requesterID uuid.UUID) (*Appointment, error) {
	slotTime := req.SlotTime.Truncate(time.Minute)

	var out *Appointment

	err := s.locker.WithSlotLock(ctx, req.PractitionerID, slotTime, func(lockCtx context.Context) error {
		res, err := s.locks.FindBySlot(lockCtx, req.PractitionerID, slotTime)
		if err != nil {
			if errors.Is(err, ErrReservationNotFound) {
				return ErrNoReservation
			}
			return fmt.Errorf("load reservation: %w", err)
		}

		if res.HolderID != requesterID {
			return ErrNotReservationHolder
		}
		if !res.Live(s.now()) {
			return ErrReservationExpired
		}

		pet, err := s.dir.PetByID(lockCtx, req.PetID)
		if err != nil {
			return asNotFound("pet", req.PetID, err)
		}
		prac, err := s.dir.PractitionerByID(lockCtx, req.PractitionerID)
		if err != nil {
			return asNotFound("practitioner", req.PractitionerID, err)
		}
		clinic, err := s.dir.ClinicByID(lockCtx, req.ClinicID)
		if err != nil {
			return asNotFound("clinic", req.ClinicID, err)
		}

		if !prac.Active {
			return ErrPractitionerInactive
		}

		a := Appointment{
			ID:             uuid.New(),
			PetID:          pet.ID,
			PractitionerID: prac.ID,
			ClinicID:       clinic.ID,
			ScheduledAt:    slotTime,
			Status:         StatusPending,
			Notes:          req.Notes,
			Type:           req.Type,
		}

		created, err := s.appts.CreateFromReservation(lockCtx, a, res.ID)
		if err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				return ErrSlotTaken
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		out = created
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return out, nil
}

// Confirm moves a PENDING appointment to CONFIRMED. Only the assigned
// practitioner may confirm. The pet owner is notified.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.PractitionerID != requesterID {
		return nil, ErrUnauthorized
	}
	if a.Status != StatusPending {
		return nil, ErrInvalidState
	}

	updated, err := s.appts.UpdateStatus(ctx, id, StatusPending, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.notifyConfirmed(ctx, updated)

	return updated, nil
}

// Cancel sets the appointment to CANCELLED. Permitted for the pet owner, the
// assigned practitioner, or clinic staff. The other party is notified: the
// practitioner (and clinic owner) when the owner cancels, the owner otherwise.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor directory.Actor) error {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pet, err := s.dir.PetByID(ctx, a.PetID)
	if err != nil {
		return asNotFound("pet", a.PetID, err)
	}

	isOwner := pet.OwnerID == actor.ID
	isPractitioner := a.PractitionerID == actor.ID

	allowed := isOwner || isPractitioner
	if !allowed {
		allowed, err = s.access.HasClinicAccess(ctx, actor, a.ClinicID)
		if err != nil {
			return fmt.Errorf("check clinic access: %w", err)
		}
	}
	if !allowed {
		return ErrUnauthorized
	}

	if a.Status == StatusCancelled {
		return ErrInvalidState
	}

	if _, err := s.appts.UpdateStatus(ctx, id, a.Status, StatusCancelled); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return ErrInvalidState
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	s.notifyCancelled(ctx, a, pet, isOwner)

	return nil
}

// ConfirmCancellation lets the assigned practitioner acknowledge a
// cancellation. It validates state and performs no further transition.
func (s *Service) ConfirmCancellation(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) error {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if a.PractitionerID != requesterID {
		return ErrUnauthorized
	}
	if a.Status != StatusCancelled {
		return ErrInvalidState
	}

	return nil
}

// Delete hard-deletes an appointment. Permitted for the owner, the assigned
// practitioner, any practitioner of the clinic, or clinic staff. CONFIRMED
// appointments cannot be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor directory.Actor) error {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pet, err := s.dir.PetByID(ctx, a.PetID)
	if err != nil {
		return asNotFound("pet", a.PetID, err)
	}
	clinic, err := s.dir.ClinicByID(ctx, a.ClinicID)
	if err != nil {
		return asNotFound("clinic", a.ClinicID, err)
	}

	allowed := pet.OwnerID == actor.ID ||
		a.PractitionerID == actor.ID ||
		clinic.HasMember(actor.ID)
	if !allowed {
		allowed, err = s.access.HasClinicAccess(ctx, actor, a.ClinicID)
		if err != nil {
			return fmt.Errorf("check clinic access: %w", err)
		}
	}
	if !allowed {
		return ErrUnauthorized
	}

	if a.Status == StatusConfirmed {
		return ErrInvalidState
	}

	if err := s.appts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.notifyDeleted(ctx, a, pet, clinic)

	return nil
}

// UpdatePatch holds optional appointment changes. Nil fields are untouched.
type UpdatePatch struct {
	ScheduledAt    *time.Time
	Notes          *string
	Type           *string
	PractitionerID *uuid.UUID
	Status         *Status
}

// Update edits an appointment. Same authorization set as Delete. Reassigning
// the practitioner requires an active member of the same clinic and notifies
// the new practitioner; an effective status change follows the state machine
// and emits the same notifications as Confirm/Cancel.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdatePatch, actor directory.Actor) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pet, err := s.dir.PetByID(ctx, a.PetID)
	if err != nil {
		return nil, asNotFound("pet", a.PetID, err)
	}
	clinic, err := s.dir.ClinicByID(ctx, a.ClinicID)
	if err != nil {
		return nil, asNotFound("clinic", a.ClinicID, err)
	}

	allowed := pet.OwnerID == actor.ID ||
		a.PractitionerID == actor.ID ||
		clinic.HasMember(actor.ID)
	if !allowed {
		allowed, err = s.access.HasClinicAccess(ctx, actor, a.ClinicID)
		if err != nil {
			return nil, fmt.Errorf("check clinic access: %w", err)
		}
	}
	if !allowed {
		return nil, ErrUnauthorized
	}

	if patch.ScheduledAt != nil {
		a.ScheduledAt = patch.ScheduledAt.Truncate(time.Minute)
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	if patch.Type != nil {
		a.Type = *patch.Type
	}

	var reassigned *directory.Practitioner
	if patch.PractitionerID != nil && *patch.PractitionerID != a.PractitionerID {
		newPrac, err := s.dir.PractitionerByID(ctx, *patch.PractitionerID)
		if err != nil {
			return nil, asNotFound("practitioner", *patch.PractitionerID, err)
		}
		if !clinic.HasMember(newPrac.ID) {
			return nil, ErrPractitionerNotInClinic
		}
		if !newPrac.Active {
			return nil, ErrPractitionerInactive
		}
		a.PractitionerID = newPrac.ID
		reassigned = newPrac
	}

	oldStatus := a.Status
	if patch.Status != nil {
		if !patch.Status.Valid() || !canTransition(oldStatus, *patch.Status) {
			return nil, ErrInvalidState
		}
		a.Status = *patch.Status
	}

	updated, err := s.appts.Update(ctx, *a)
	if err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if reassigned != nil {
		s.notifyReassigned(ctx, updated, pet, clinic, reassigned)
	}
	if updated.Status != oldStatus {
		switch updated.Status {
		case StatusConfirmed:
			s.notifyConfirmed(ctx, updated)
		case StatusCancelled:
			s.notifyCancelled(ctx, updated, pet, actor.ID == pet.OwnerID)
		}
	}

	return updated, nil
}

// asNotFound converts a directory miss into the caller-facing kind-tagged
// error, passing through anything else.
func asNotFound(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("resolve %s: %w", kind, err)
}

// Notification helpers. All lookups here are best effort: the state
// transition has already committed, so failures are logged and swallowed.

func (s *Service) appointmentModel(ctx context.Context, a *Appointment) (map[string]string, *directory.Pet, *directory.Practitioner, *directory.Clinic, bool) {
	pet, err := s.dir.PetByID(ctx, a.PetID)
	if err != nil {
		log.Printf("notification skipped appointment=%s: resolve pet: %v", a.ID, err)
		return nil, nil, nil, nil, false
	}
	prac, err := s.dir.PractitionerByID(ctx, a.PractitionerID)
	if err != nil {
		log.Printf("notification skipped appointment=%s: resolve practitioner: %v", a.ID, err)
		return nil, nil, nil, nil, false
	}
	clinic, err := s.dir.ClinicByID(ctx, a.ClinicID)
	if err != nil {
		log.Printf("notification skipped appointment=%s: resolve clinic: %v", a.ID, err)
		return nil, nil, nil, nil, false
	}

	model := map[string]string{
		"userName":        pet.OwnerName,
		"petName":         pet.Name,
		"vetName":         prac.Name,
		"clinicName":      clinic.Name,
		"appointmentDate": a.ScheduledAt.Format(time.RFC3339),
	}
	return model, pet, prac, clinic, true
}

func (s *Service) notifyConfirmed(ctx context.Context, a *Appointment) {
	model, pet, _, _, ok := s.appointmentModel(ctx, a)
	if !ok {
		return
	}
	s.notifier.Send(ctx, notify.Message{
		To:          pet.OwnerEmail,
		Subject:     "Appointment Confirmed",
		Template:    "appointment_confirmed",
		Model:       model,
		RelatedKind: relatedAppointment,
		RelatedID:   a.ID,
	})
}

func (s *Service) notifyCancelled(ctx context.Context, a *Appointment, pet *directory.Pet, cancelledByOwner bool) {
	model, _, prac, clinic, ok := s.appointmentModel(ctx, a)
	if !ok {
		return
	}

	msg := notify.Message{
		Subject:     "Appointment Cancelled",
		Template:    "appointment_cancelled",
		Model:       model,
		RelatedKind: relatedAppointment,
		RelatedID:   a.ID,
	}

	if cancelledByOwner {
		msg.To = prac.Email
		s.notifier.Send(ctx, msg)
		if clinic.OwnerEmail != "" {
			msg.To = clinic.OwnerEmail
			s.notifier.Send(ctx, msg)
		}
		return
	}

	msg.To = pet.OwnerEmail
	s.notifier.Send(ctx, msg)
}

func (s *Service) notifyDeleted(ctx context.Context, a *Appointment, pet *directory.Pet, clinic *directory.Clinic) {
	prac, err := s.dir.PractitionerByID(ctx, a.PractitionerID)
	if err != nil {
		log.Printf("notification skipped appointment=%s: resolve practitioner: %v", a.ID, err)
		return
	}

	s.notifier.Send(ctx, notify.Message{
		To:       prac.Email,
		Subject:  "Appointment Cancelled",
		Template: "appointment_cancelled",
		Model: map[string]string{
			"vetName":         prac.Name,
			"petName":         pet.Name,
			"clinicName":      clinic.Name,
			"appointmentDate": a.ScheduledAt.Format(time.RFC3339),
		},
		RelatedKind: relatedAppointment,
		RelatedID:   a.ID,
	})
}

func (s *Service) notifyReassigned(ctx context.Context, a *Appointment, pet *directory.Pet, clinic *directory.Clinic, prac *directory.Practitioner) {
	s.notifier.Send(ctx, notify.Message{
		To:       prac.Email,
		Subject:  "You have been assigned a new appointment",
		Template: "appointment_confirmed",
		Model: map[string]string{
			"vetName":         prac.Name,
			"petName":         pet.Name,
			"clinicName":      clinic.Name,
			"appointmentDate": a.ScheduledAt.Format(time.RFC3339),
		},
		RelatedKind: relatedAppointment,
		RelatedID:   a.ID,
	})
}
