package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetdesk/vet-booking/internal/directory"
)

func TestBookConvertsReservation(t *testing.T) {
	e := newTestEnv()

	a := e.book(t)

	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, e.petID, a.PetID)
	assert.Equal(t, e.vetID, a.PractitionerID)
	assert.Equal(t, e.clinicID, a.ClinicID)
	assert.True(t, a.ScheduledAt.Equal(e.slot))

	// The reservation is consumed atomically with the insert.
	assert.Equal(t, 0, e.locks.count())
}

func TestBookWithoutReservation(t *testing.T) {
	e := newTestEnv()

	_, err := e.svc.Book(context.Background(), BookRequest{
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)

	assert.ErrorIs(t, err, ErrNoReservation)
}

func TestBookNotReservationHolder(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	_, err := e.svc.Reserve(ctx, e.vetID, e.slot, uuid.New(), 30)
	require.NoError(t, err)

	_, err = e.svc.Book(ctx, BookRequest{
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)

	assert.ErrorIs(t, err, ErrNotReservationHolder)
}

func TestBookExpiredReservation(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	r, err := e.svc.Reserve(ctx, e.vetID, e.slot, e.ownerID, 30)
	require.NoError(t, err)

	e.now = r.ExpiresAt.Add(time.Second)

	_, err = e.svc.Book(ctx, BookRequest{
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)

	assert.ErrorIs(t, err, ErrReservationExpired)

	// The expired reservation is left for the reaper, not consumed.
	assert.Equal(t, 1, e.locks.count())
}

func TestBookInactivePractitioner(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.dir.practitioners[e.vetID].Active = false

	_, err := e.svc.Reserve(ctx, e.vetID, e.slot, e.ownerID, 30)
	require.NoError(t, err)

	_, err = e.svc.Book(ctx, BookRequest{
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)

	assert.ErrorIs(t, err, ErrPractitionerInactive)
}

func TestBookUnknownPet(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	_, err := e.svc.Reserve(ctx, e.vetID, e.slot, e.ownerID, 30)
	require.NoError(t, err)

	missing := uuid.New()
	_, err = e.svc.Book(ctx, BookRequest{
		PetID:          missing,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "pet", nf.Kind)
}

func TestBookSlotTakenOnInsertRace(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	_, err := e.svc.Reserve(ctx, e.vetID, e.slot, e.ownerID, 30)
	require.NoError(t, err)

	// Another appointment sneaks into the slot behind the reservation.
	taken := Appointment{
		ID:             uuid.New(),
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		ScheduledAt:    e.slot,
		Status:         StatusConfirmed,
		Type:           "SURGERY",
	}
	e.repo.appointments[taken.ID] = taken

	_, err = e.svc.Book(ctx, BookRequest{
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)

	assert.ErrorIs(t, err, ErrSlotTaken)

	// Failed booking must not consume the reservation.
	assert.Equal(t, 1, e.locks.count())
}

func TestConfirm(t *testing.T) {
	e := newTestEnv()
	a := e.book(t)

	updated, err := e.svc.Confirm(context.Background(), a.ID, e.vetID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	msgs := e.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sam@example.com", msgs[0].To)
	assert.Equal(t, "Appointment Confirmed", msgs[0].Subject)
	assert.Equal(t, a.ID, msgs[0].RelatedID)
}

func TestConfirmOnlyAssignedPractitioner(t *testing.T) {
	e := newTestEnv()
	a := e.book(t)

	_, err := e.svc.Confirm(context.Background(), a.ID, uuid.New())
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Not even the pet owner.
	_, err = e.svc.Confirm(context.Background(), a.ID, e.ownerID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConfirmRequiresPending(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	_, err := e.svc.Confirm(ctx, a.ID, e.vetID)
	require.NoError(t, err)

	_, err = e.svc.Confirm(ctx, a.ID, e.vetID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmMissingAppointment(t *testing.T) {
	e := newTestEnv()

	_, err := e.svc.Confirm(context.Background(), uuid.New(), e.vetID)
	assert.True(t, IsNotFound(err))
}

func TestCancelByOwnerNotifiesClinicSide(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	require.NoError(t, e.svc.Cancel(ctx, a.ID, owner))

	got, err := e.svc.appts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// Practitioner plus clinic owner, never the cancelling owner.
	assert.ElementsMatch(t,
		[]string{"ada@clinic.example.com", "boss@clinic.example.com"},
		e.notifier.recipients())
}

func TestCancelByPractitionerNotifiesOwner(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	vet := directory.Actor{ID: e.vetID, Kind: directory.ActorPractitioner}
	require.NoError(t, e.svc.Cancel(ctx, a.ID, vet))

	assert.Equal(t, []string{"sam@example.com"}, e.notifier.recipients())
}

func TestCancelByClinicStaff(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	staffID := uuid.New()
	e.access.allowed[staffID] = true

	staff := directory.Actor{ID: staffID, Kind: directory.ActorStaff}
	require.NoError(t, e.svc.Cancel(ctx, a.ID, staff))

	got, err := e.svc.appts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancelUnauthorized(t *testing.T) {
	e := newTestEnv()
	a := e.book(t)

	stranger := directory.Actor{ID: uuid.New(), Kind: directory.ActorOwner}
	err := e.svc.Cancel(context.Background(), a.ID, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCancelConfirmedAppointment(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	_, err := e.svc.Confirm(ctx, a.ID, e.vetID)
	require.NoError(t, err)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	require.NoError(t, e.svc.Cancel(ctx, a.ID, owner))
}

func TestCancelAlreadyCancelled(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	require.NoError(t, e.svc.Cancel(ctx, a.ID, owner))

	err := e.svc.Cancel(ctx, a.ID, owner)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmCancellation(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	// Not cancelled yet.
	err := e.svc.ConfirmCancellation(ctx, a.ID, e.vetID)
	assert.ErrorIs(t, err, ErrInvalidState)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	require.NoError(t, e.svc.Cancel(ctx, a.ID, owner))

	// Wrong practitioner.
	err = e.svc.ConfirmCancellation(ctx, a.ID, uuid.New())
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, e.svc.ConfirmCancellation(ctx, a.ID, e.vetID))

	// The acknowledgement changes nothing.
	got, err := e.svc.appts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestDeletePendingByOwner(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	require.NoError(t, e.svc.Delete(ctx, a.ID, owner))

	_, err := e.svc.appts.GetByID(ctx, a.ID)
	assert.True(t, IsNotFound(err))

	// The assigned practitioner learns the slot is free again.
	assert.Equal(t, []string{"ada@clinic.example.com"}, e.notifier.recipients())
}

func TestDeleteConfirmedRejected(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	_, err := e.svc.Confirm(ctx, a.ID, e.vetID)
	require.NoError(t, err)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	err = e.svc.Delete(ctx, a.ID, owner)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteByClinicPractitioner(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	// Another vet of the same clinic, not the assigned one.
	colleagueID := uuid.New()
	e.dir.clinics[e.clinicID].MemberIDs = append(e.dir.clinics[e.clinicID].MemberIDs, colleagueID)

	colleague := directory.Actor{ID: colleagueID, Kind: directory.ActorPractitioner}
	require.NoError(t, e.svc.Delete(ctx, a.ID, colleague))
}

func TestDeleteUnauthorized(t *testing.T) {
	e := newTestEnv()
	a := e.book(t)

	stranger := directory.Actor{ID: uuid.New(), Kind: directory.ActorPractitioner}
	err := e.svc.Delete(context.Background(), a.ID, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateFields(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	newTime := e.slot.Add(2 * time.Hour)
	notes := "bring vaccination booklet"
	kind := "VACCINATION"

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	updated, err := e.svc.Update(ctx, a.ID, UpdatePatch{
		ScheduledAt: &newTime,
		Notes:       &notes,
		Type:        &kind,
	}, owner)
	require.NoError(t, err)

	assert.True(t, updated.ScheduledAt.Equal(newTime))
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, kind, updated.Type)
	assert.Equal(t, StatusPending, updated.Status)
}

func TestUpdateReassignPractitioner(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	newVetID := uuid.New()
	e.dir.practitioners[newVetID] = &directory.Practitioner{
		ID:     newVetID,
		Name:   "Dr. Lin Okafor",
		Email:  "lin@clinic.example.com",
		Active: true,
	}
	e.dir.clinics[e.clinicID].MemberIDs = append(e.dir.clinics[e.clinicID].MemberIDs, newVetID)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	updated, err := e.svc.Update(ctx, a.ID, UpdatePatch{PractitionerID: &newVetID}, owner)
	require.NoError(t, err)

	assert.Equal(t, newVetID, updated.PractitionerID)

	msgs := e.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lin@clinic.example.com", msgs[0].To)
	assert.Equal(t, "You have been assigned a new appointment", msgs[0].Subject)
}

func TestUpdateReassignOutsideClinic(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	outsiderID := uuid.New()
	e.dir.practitioners[outsiderID] = &directory.Practitioner{
		ID:     outsiderID,
		Active: true,
	}

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	_, err := e.svc.Update(ctx, a.ID, UpdatePatch{PractitionerID: &outsiderID}, owner)
	assert.ErrorIs(t, err, ErrPractitionerNotInClinic)
}

func TestUpdateReassignInactivePractitioner(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	newVetID := uuid.New()
	e.dir.practitioners[newVetID] = &directory.Practitioner{ID: newVetID, Active: false}
	e.dir.clinics[e.clinicID].MemberIDs = append(e.dir.clinics[e.clinicID].MemberIDs, newVetID)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	_, err := e.svc.Update(ctx, a.ID, UpdatePatch{PractitionerID: &newVetID}, owner)
	assert.ErrorIs(t, err, ErrPractitionerInactive)
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	vet := directory.Actor{ID: e.vetID, Kind: directory.ActorPractitioner}

	a := e.book(t)

	confirmed := StatusConfirmed
	updated, err := e.svc.Update(ctx, a.ID, UpdatePatch{Status: &confirmed}, vet)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	// CONFIRMED cannot go back to PENDING.
	pending := StatusPending
	_, err = e.svc.Update(ctx, a.ID, UpdatePatch{Status: &pending}, vet)
	assert.ErrorIs(t, err, ErrInvalidState)

	cancelled := StatusCancelled
	updated, err = e.svc.Update(ctx, a.ID, UpdatePatch{Status: &cancelled}, vet)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)

	// CANCELLED is terminal.
	_, err = e.svc.Update(ctx, a.ID, UpdatePatch{Status: &confirmed}, vet)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateStatusChangeNotifies(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	vet := directory.Actor{ID: e.vetID, Kind: directory.ActorPractitioner}
	confirmed := StatusConfirmed
	_, err := e.svc.Update(ctx, a.ID, UpdatePatch{Status: &confirmed}, vet)
	require.NoError(t, err)

	msgs := e.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Appointment Confirmed", msgs[0].Subject)
	assert.Equal(t, "sam@example.com", msgs[0].To)
}

func TestUpdateCancelledByOwnerNotifiesClinicSide(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	cancelled := StatusCancelled
	_, err := e.svc.Update(ctx, a.ID, UpdatePatch{Status: &cancelled}, owner)
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"ada@clinic.example.com", "boss@clinic.example.com"},
		e.notifier.recipients())
}

func TestUpdateUnauthorized(t *testing.T) {
	e := newTestEnv()
	a := e.book(t)

	notes := "x"
	stranger := directory.Actor{ID: uuid.New(), Kind: directory.ActorOwner}
	_, err := e.svc.Update(context.Background(), a.ID, UpdatePatch{Notes: &notes}, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateRescheduleIntoTakenSlot(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	a := e.book(t)

	taken := e.slot.Add(time.Hour)
	other := Appointment{
		ID:             uuid.New(),
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		ScheduledAt:    taken,
		Status:         StatusPending,
		Type:           "CHECKUP",
	}
	e.repo.appointments[other.ID] = other

	owner := directory.Actor{ID: e.ownerID, Kind: directory.ActorOwner}
	_, err := e.svc.Update(ctx, a.ID, UpdatePatch{ScheduledAt: &taken}, owner)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusPending, StatusPending, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
