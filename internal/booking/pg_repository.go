package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, pet_id, practitioner_id, clinic_id, scheduled_at, status, COALESCE(notes, ''), type, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PetID,
		&a.PractitionerID,
		&a.ClinicID,
		&a.ScheduledAt,
		&a.Status,
		&a.Notes,
		&a.Type,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "appointment", ID: id}
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	return a, nil
}

func (r *PgRepository) ExistsActiveAt(ctx context.Context, practitionerID uuid.UUID, at time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE practitioner_id = $1
			  AND scheduled_at = $2
			  AND status IN ('PENDING', 'CONFIRMED')
		)
	`, practitionerID, at).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return exists, nil
}

// CreateFromReservation is the atomic unit of booking: the appointment insert
// and the reservation delete either both apply or neither does. When the
// insert hits the slot uniqueness index the transaction rolls back and the
// reservation is left for its holder or the reaper.
func (r *PgRepository) CreateFromReservation(ctx context.Context, a Appointment, reservationID uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, pet_id, practitioner_id, clinic_id, scheduled_at, status, notes, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PetID, a.PractitionerID, a.ClinicID, a.ScheduledAt, a.Status, a.Notes, a.Type)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateSlot
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM slot_reservations WHERE id = $1`, reservationID); err != nil {
		return nil, fmt.Errorf("release reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	return a, nil
}

func (r *PgRepository) Update(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET practitioner_id = $2,
		    scheduled_at = $3,
		    status = $4,
		    notes = $5,
		    type = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.PractitionerID, a.ScheduledAt, a.Status, a.Notes, a.Type)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "appointment", ID: a.ID}
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateSlot
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY scheduled_at
	`, practitionerID, from, to)
}

func (r *PgRepository) ListForClinic(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at
	`, clinicID, from, to)
}

func (r *PgRepository) ListForOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT a.id, a.pet_id, a.practitioner_id, a.clinic_id, a.scheduled_at, a.status, COALESCE(a.notes, ''), a.type, a.created_at, a.updated_at
		FROM appointments a
		JOIN pets p ON p.id = a.pet_id
		WHERE p.owner_id = $1
		  AND a.scheduled_at >= $2
		  AND a.scheduled_at < $3
		ORDER BY a.scheduled_at
	`, ownerID, from, to)
}

func (r *PgRepository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SearchPast(ctx context.Context, scope SearchScope, filter SearchFilter, page Page) (*AppointmentPage, error) {
	var scopeClause string
	switch scope.Kind {
	case ScopeClinic:
		scopeClause = "a.clinic_id = $1"
	case ScopePractitioner:
		scopeClause = "a.practitioner_id = $1"
	case ScopeOwner:
		scopeClause = "p.owner_id = $1"
	default:
		return nil, fmt.Errorf("unknown search scope %q", scope.Kind)
	}

	where := `
		FROM appointments a
		JOIN pets p ON p.id = a.pet_id
		JOIN users u ON u.id = p.owner_id
		WHERE ` + scopeClause + `
		  AND ($2 = '' OR TRIM(p.name) ILIKE '%' || TRIM($2) || '%')
		  AND ($3 = '' OR TRIM(u.full_name) ILIKE '%' || TRIM($3) || '%')
		  AND ($4::timestamptz IS NULL OR a.scheduled_at >= $4)
		  AND ($5::timestamptz IS NULL OR a.scheduled_at < $5)
	`
	args := []any{scope.ID, filter.PetName, filter.OwnerName, filter.From, filter.To}

	if page.Size <= 0 {
		page.Size = 20
	}
	if page.Size > 100 {
		page.Size = 100
	}
	if page.Number < 0 {
		page.Number = 0
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count past appointments: %w", err)
	}

	query := `
		SELECT a.id, a.pet_id, a.practitioner_id, a.clinic_id, a.scheduled_at, a.status, COALESCE(a.notes, ''), a.type, a.created_at, a.updated_at,
		       p.name, u.full_name
	` + where + `
		ORDER BY a.scheduled_at DESC
		LIMIT $6 OFFSET $7
	`
	rows, err := r.pool.Query(ctx, query, append(args, page.Size, page.Number*page.Size)...)
	if err != nil {
		return nil, fmt.Errorf("search past appointments: %w", err)
	}
	defer rows.Close()

	var items []AppointmentRecord
	for rows.Next() {
		var rec AppointmentRecord
		err := rows.Scan(
			&rec.ID,
			&rec.PetID,
			&rec.PractitionerID,
			&rec.ClinicID,
			&rec.ScheduledAt,
			&rec.Status,
			&rec.Notes,
			&rec.Type,
			&rec.CreatedAt,
			&rec.UpdatedAt,
			&rec.PetName,
			&rec.OwnerName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan past appointment: %w", err)
		}
		items = append(items, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &AppointmentPage{
		Items:  items,
		Total:  total,
		Number: page.Number,
		Size:   page.Size,
	}, nil
}
