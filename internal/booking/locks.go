package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/vetdesk/vet-booking/internal/redis"
)

// Reserve places a short-lived exclusive claim on (practitioner, slot) for
// the holder. A live reservation by another holder blocks with
// ErrSlotReserved; an occupied slot blocks with ErrSlotAlreadyBooked. The
// holder's own reservation at the slot, an expired reservation, and any other
// reservation the holder has anywhere are replaced.
func (s *Service) Reserve(ctx context.Context, practitionerID uuid.UUID, slotTime time.Time, holderID uuid.UUID, durationMinutes int) (*SlotReservation, error) {
	slotTime = slotTime.Truncate(time.Minute)

	var out *SlotReservation

	err := s.locker.WithSlotLock(ctx, practitionerID, slotTime, func(lockCtx context.Context) error {
		booked, err := s.appts.ExistsActiveAt(lockCtx, practitionerID, slotTime)
		if err != nil {
			return fmt.Errorf("check slot occupancy: %w", err)
		}
		if booked {
			return ErrSlotAlreadyBooked
		}

		existing, err := s.locks.FindBySlot(lockCtx, practitionerID, slotTime)
		if err != nil && !errors.Is(err, ErrReservationNotFound) {
			return fmt.Errorf("load reservation: %w", err)
		}
		if existing != nil {
			if existing.HolderID != holderID && existing.Live(s.now()) {
				return ErrSlotReserved
			}
			if err := s.locks.Delete(lockCtx, existing.ID); err != nil {
				return fmt.Errorf("replace reservation: %w", err)
			}
		}

		// One reservation per holder, anywhere.
		if err := s.locks.DeleteByHolder(lockCtx, holderID); err != nil {
			return fmt.Errorf("clear holder reservations: %w", err)
		}

		if _, err := s.dir.PractitionerByID(lockCtx, practitionerID); err != nil {
			return asNotFound("practitioner", practitionerID, err)
		}

		r := SlotReservation{
			ID:              uuid.New(),
			PractitionerID:  practitionerID,
			SlotTime:        slotTime,
			HolderID:        holderID,
			ExpiresAt:       s.now().Add(s.holdTTL),
			DurationMinutes: durationMinutes,
		}

		created, err := s.locks.Create(lockCtx, r)
		if err != nil {
			// Lost the race despite the lock (another replica, or a
			// concurrent acquire by the same holder elsewhere).
			if errors.Is(err, ErrDuplicateSlot) {
				return ErrSlotReserved
			}
			if errors.Is(err, ErrDuplicateHolder) {
				return ErrSlotContended
			}
			return fmt.Errorf("create reservation: %w", err)
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

// Release drops a reservation. A missing reservation is success: releasing
// twice is safe. A reservation held by someone else fails with ErrNotOwner.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID, holderID uuid.UUID) error {
	r, err := s.locks.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil
		}
		return fmt.Errorf("load reservation: %w", err)
	}

	if r.HolderID != holderID {
		return ErrNotOwner
	}

	if err := s.locks.Delete(ctx, r.ID); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}

	return nil
}

// CurrentReservation returns the holder's reservation, expired or not. The
// caller interprets ExpiresAt.
func (s *Service) CurrentReservation(ctx context.Context, holderID uuid.UUID) (*SlotReservation, error) {
	r, err := s.locks.FindByHolder(ctx, holderID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return r, nil
}
