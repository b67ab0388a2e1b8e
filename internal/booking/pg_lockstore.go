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

const uniqueViolation = "23505"

type PgLockStore struct {
	pool *pgxpool.Pool
}

func NewPgLockStore(pool *pgxpool.Pool) *PgLockStore {
	return &PgLockStore{pool: pool}
}

func scanReservation(row pgx.Row) (*SlotReservation, error) {
	var r SlotReservation

	err := row.Scan(
		&r.ID,
		&r.PractitionerID,
		&r.SlotTime,
		&r.HolderID,
		&r.ExpiresAt,
		&r.DurationMinutes,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	return &r, nil
}

func (s *PgLockStore) Create(ctx context.Context, r SlotReservation) (*SlotReservation, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO slot_reservations (id, practitioner_id, slot_time, holder_id, expires_at, duration_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, practitioner_id, slot_time, holder_id, expires_at, duration_minutes, created_at
	`, r.ID, r.PractitionerID, r.SlotTime, r.HolderID, r.ExpiresAt, r.DurationMinutes)

	created, err := scanReservation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "uq_reservations_holder" {
				return nil, ErrDuplicateHolder
			}
			return nil, ErrDuplicateSlot
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	return created, nil
}

func (s *PgLockStore) FindByID(ctx context.Context, id uuid.UUID) (*SlotReservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, slot_time, holder_id, expires_at, duration_minutes, created_at
		FROM slot_reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (s *PgLockStore) FindBySlot(ctx context.Context, practitionerID uuid.UUID, slotTime time.Time) (*SlotReservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, slot_time, holder_id, expires_at, duration_minutes, created_at
		FROM slot_reservations
		WHERE practitioner_id = $1 AND slot_time = $2
	`, practitionerID, slotTime)
	return scanReservation(row)
}

func (s *PgLockStore) FindByHolder(ctx context.Context, holderID uuid.UUID) (*SlotReservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, slot_time, holder_id, expires_at, duration_minutes, created_at
		FROM slot_reservations
		WHERE holder_id = $1
	`, holderID)
	return scanReservation(row)
}

func (s *PgLockStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM slot_reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

func (s *PgLockStore) DeleteByHolder(ctx context.Context, holderID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM slot_reservations WHERE holder_id = $1`, holderID)
	if err != nil {
		return fmt.Errorf("delete reservations by holder: %w", err)
	}
	return nil
}

func (s *PgLockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM slot_reservations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgLockStore) ListLiveForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to, now time.Time) ([]SlotReservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, practitioner_id, slot_time, holder_id, expires_at, duration_minutes, created_at
		FROM slot_reservations
		WHERE practitioner_id = $1
		  AND slot_time >= $2
		  AND slot_time < $3
		  AND expires_at > $4
		ORDER BY slot_time
	`, practitionerID, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("list live reservations: %w", err)
	}
	defer rows.Close()

	var result []SlotReservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
