package booking

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/vet-booking/internal/directory"
	"github.com/vetdesk/vet-booking/internal/notify"
	redisclient "github.com/vetdesk/vet-booking/internal/redis"
)

// In-memory doubles for the service tests. memLockStore and memRepo enforce
// the same uniqueness rules as the Postgres implementations so the service's
// error translation can be exercised without a database.

type memLockStore struct {
	mu           sync.Mutex
	reservations map[uuid.UUID]SlotReservation
}

func newMemLockStore() *memLockStore {
	return &memLockStore{reservations: make(map[uuid.UUID]SlotReservation)}
}

func (s *memLockStore) Create(_ context.Context, r SlotReservation) (*SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reservations {
		if existing.PractitionerID == r.PractitionerID && existing.SlotTime.Equal(r.SlotTime) {
			return nil, ErrDuplicateSlot
		}
	}
	for _, existing := range s.reservations {
		if existing.HolderID == r.HolderID {
			return nil, ErrDuplicateHolder
		}
	}

	r.CreatedAt = time.Now()
	s.reservations[r.ID] = r
	out := r
	return &out, nil
}

func (s *memLockStore) FindByID(_ context.Context, id uuid.UUID) (*SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	out := r
	return &out, nil
}

func (s *memLockStore) FindBySlot(_ context.Context, practitionerID uuid.UUID, slotTime time.Time) (*SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reservations {
		if r.PractitionerID == practitionerID && r.SlotTime.Equal(slotTime) {
			out := r
			return &out, nil
		}
	}
	return nil, ErrReservationNotFound
}

func (s *memLockStore) FindByHolder(_ context.Context, holderID uuid.UUID) (*SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reservations {
		if r.HolderID == holderID {
			out := r
			return &out, nil
		}
	}
	return nil, ErrReservationNotFound
}

func (s *memLockStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservations, id)
	return nil
}

func (s *memLockStore) DeleteByHolder(_ context.Context, holderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reservations {
		if r.HolderID == holderID {
			delete(s.reservations, id)
		}
	}
	return nil
}

func (s *memLockStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.reservations {
		if !r.ExpiresAt.After(now) {
			delete(s.reservations, id)
			n++
		}
	}
	return n, nil
}

func (s *memLockStore) ListLiveForPractitioner(_ context.Context, practitionerID uuid.UUID, from, to, now time.Time) ([]SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SlotReservation
	for _, r := range s.reservations {
		if r.PractitionerID == practitionerID &&
			r.ExpiresAt.After(now) &&
			!r.SlotTime.Before(from) && r.SlotTime.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memLockStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

type memRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]Appointment
	records      map[uuid.UUID]AppointmentRecord
	owners       map[uuid.UUID]uuid.UUID // pet id -> owner id
	locks        *memLockStore
}

func newMemRepo(locks *memLockStore) *memRepo {
	return &memRepo{
		appointments: make(map[uuid.UUID]Appointment),
		records:      make(map[uuid.UUID]AppointmentRecord),
		owners:       make(map[uuid.UUID]uuid.UUID),
		locks:        locks,
	}
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, &NotFoundError{Kind: "appointment", ID: id}
	}
	out := a
	return &out, nil
}

func (r *memRepo) ExistsActiveAt(_ context.Context, practitionerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeAtLocked(practitionerID, at, uuid.Nil), nil
}

func (r *memRepo) activeAtLocked(practitionerID uuid.UUID, at time.Time, exclude uuid.UUID) bool {
	for _, a := range r.appointments {
		if a.ID != exclude &&
			a.PractitionerID == practitionerID &&
			a.ScheduledAt.Equal(at) &&
			(a.Status == StatusPending || a.Status == StatusConfirmed) {
			return true
		}
	}
	return false
}

func (r *memRepo) CreateFromReservation(ctx context.Context, a Appointment, reservationID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	if r.activeAtLocked(a.PractitionerID, a.ScheduledAt, uuid.Nil) {
		r.mu.Unlock()
		return nil, ErrDuplicateSlot
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.appointments[a.ID] = a
	r.mu.Unlock()

	if err := r.locks.Delete(ctx, reservationID); err != nil {
		return nil, err
	}

	out := a
	return &out, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	out := a
	return &out, nil
}

func (r *memRepo) Update(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[a.ID]; !ok {
		return nil, &NotFoundError{Kind: "appointment", ID: a.ID}
	}
	if (a.Status == StatusPending || a.Status == StatusConfirmed) &&
		r.activeAtLocked(a.PractitionerID, a.ScheduledAt, a.ID) {
		return nil, ErrDuplicateSlot
	}
	a.UpdatedAt = time.Now()
	r.appointments[a.ID] = a
	out := a
	return &out, nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.appointments, id)
	return nil
}

func (r *memRepo) ListForPractitioner(_ context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.PractitionerID == practitionerID &&
			(a.Status == StatusPending || a.Status == StatusConfirmed) &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListForClinic(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.ClinicID == clinicID && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListForOwner(_ context.Context, ownerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if r.owners[a.PetID] == ownerID && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) SearchPast(_ context.Context, scope SearchScope, filter SearchFilter, page Page) (*AppointmentPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []AppointmentRecord
	for _, rec := range r.records {
		switch scope.Kind {
		case ScopeClinic:
			if rec.ClinicID != scope.ID {
				continue
			}
		case ScopePractitioner:
			if rec.PractitionerID != scope.ID {
				continue
			}
		case ScopeOwner:
			if r.owners[rec.PetID] != scope.ID {
				continue
			}
		}
		if filter.PetName != "" && !strings.Contains(strings.ToLower(rec.PetName), strings.ToLower(filter.PetName)) {
			continue
		}
		if filter.OwnerName != "" && !strings.Contains(strings.ToLower(rec.OwnerName), strings.ToLower(filter.OwnerName)) {
			continue
		}
		matched = append(matched, rec)
	}

	size := page.Size
	if size <= 0 {
		size = 20
	}
	start := page.Number * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	return &AppointmentPage{
		Items:  matched[start:end],
		Total:  int64(len(matched)),
		Number: page.Number,
		Size:   size,
	}, nil
}

type dirStub struct {
	pets          map[uuid.UUID]*directory.Pet
	practitioners map[uuid.UUID]*directory.Practitioner
	clinics       map[uuid.UUID]*directory.Clinic
}

func newDirStub() *dirStub {
	return &dirStub{
		pets:          make(map[uuid.UUID]*directory.Pet),
		practitioners: make(map[uuid.UUID]*directory.Practitioner),
		clinics:       make(map[uuid.UUID]*directory.Clinic),
	}
}

func (d *dirStub) PetByID(_ context.Context, id uuid.UUID) (*directory.Pet, error) {
	p, ok := d.pets[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return p, nil
}

func (d *dirStub) PractitionerByID(_ context.Context, id uuid.UUID) (*directory.Practitioner, error) {
	p, ok := d.practitioners[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return p, nil
}

func (d *dirStub) ClinicByID(_ context.Context, id uuid.UUID) (*directory.Clinic, error) {
	c, ok := d.clinics[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return c, nil
}

type accessStub struct {
	allowed map[uuid.UUID]bool // actor id -> access
}

func (a *accessStub) HasClinicAccess(_ context.Context, actor directory.Actor, _ uuid.UUID) (bool, error) {
	return a.allowed[actor.ID], nil
}

type notifierStub struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (n *notifierStub) Send(_ context.Context, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *notifierStub) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Message, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *notifierStub) recipients() []string {
	var out []string
	for _, m := range n.messages() {
		out = append(out, m.To)
	}
	return out
}

// lockerStub serializes critical sections with a plain mutex, matching the
// exclusivity the Redis lock provides. With fail set it reports the lock as
// busy without running fn.
type lockerStub struct {
	mu   sync.Mutex
	fail bool
}

func (l *lockerStub) WithSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	if l.fail {
		return redisclient.ErrLockNotAcquired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

// testEnv wires a Service over the in-memory doubles with a controllable
// clock, plus one pre-registered owner/pet/vet/clinic quartet.
type testEnv struct {
	svc      *Service
	locks    *memLockStore
	repo     *memRepo
	dir      *dirStub
	access   *accessStub
	notifier *notifierStub
	locker   *lockerStub

	now time.Time

	ownerID  uuid.UUID
	petID    uuid.UUID
	vetID    uuid.UUID
	clinicID uuid.UUID
	slot     time.Time
}

func newTestEnv() *testEnv {
	e := &testEnv{
		locks:    newMemLockStore(),
		dir:      newDirStub(),
		access:   &accessStub{allowed: make(map[uuid.UUID]bool)},
		notifier: &notifierStub{},
		locker:   &lockerStub{},
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		ownerID:  uuid.New(),
		petID:    uuid.New(),
		vetID:    uuid.New(),
		clinicID: uuid.New(),
	}
	e.repo = newMemRepo(e.locks)
	e.slot = e.now.Add(24 * time.Hour)

	e.dir.pets[e.petID] = &directory.Pet{
		ID:         e.petID,
		Name:       "Rex",
		OwnerID:    e.ownerID,
		OwnerName:  "Sam Hill",
		OwnerEmail: "sam@example.com",
	}
	e.dir.practitioners[e.vetID] = &directory.Practitioner{
		ID:     e.vetID,
		Name:   "Dr. Ada Quist",
		Email:  "ada@clinic.example.com",
		Active: true,
	}
	e.dir.clinics[e.clinicID] = &directory.Clinic{
		ID:         e.clinicID,
		Name:       "North Paws",
		OwnerEmail: "boss@clinic.example.com",
		MemberIDs:  []uuid.UUID{e.vetID},
	}
	e.repo.owners[e.petID] = e.ownerID

	e.svc = NewService(e.repo, e.locks, e.dir, e.access, e.notifier, e.locker,
		WithClock(func() time.Time { return e.now }))
	return e
}

// book drives the full reserve-then-book path for the fixture quartet and
// fails the test on any error.
func (e *testEnv) book(t *testing.T) *Appointment {
	t.Helper()
	ctx := context.Background()

	if _, err := e.svc.Reserve(ctx, e.vetID, e.slot, e.ownerID, 30); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	a, err := e.svc.Book(ctx, BookRequest{
		PetID:          e.petID,
		PractitionerID: e.vetID,
		ClinicID:       e.clinicID,
		SlotTime:       e.slot,
		Type:           "CHECKUP",
	}, e.ownerID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}
