package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) PetByID(ctx context.Context, id uuid.UUID) (*Pet, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT p.id, p.name, u.id, u.full_name, u.email, COALESCE(u.phone, '')
		FROM pets p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = $1
	`, id)

	var p Pet
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.OwnerName, &p.OwnerEmail, &p.OwnerPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load pet: %w", err)
	}

	return &p, nil
}

func (d *PgDirectory) PractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, full_name, email, active
		FROM vets
		WHERE id = $1
	`, id)

	var v Practitioner
	err := row.Scan(&v.ID, &v.Name, &v.Email, &v.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	return &v, nil
}

func (d *PgDirectory) ClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT c.id, c.name,
		       COALESCE((
		           SELECT u.email
		           FROM clinic_accounts ca
		           JOIN users u ON u.id = ca.user_id
		           WHERE ca.clinic_id = c.id AND ca.staff_role = 'OWNER'
		           LIMIT 1
		       ), '')
		FROM veterinary_clinics c
		WHERE c.id = $1
	`, id)

	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.OwnerEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	rows, err := d.pool.Query(ctx, `
		SELECT vet_id FROM vet_clinic_memberships WHERE clinic_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load clinic members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var vetID uuid.UUID
		if err := rows.Scan(&vetID); err != nil {
			return nil, fmt.Errorf("scan clinic member: %w", err)
		}
		c.MemberIDs = append(c.MemberIDs, vetID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read clinic members: %w", err)
	}

	return &c, nil
}

// HasClinicAccess answers whether the actor has staff or membership access to
// the clinic. The actor kind decides which relation is consulted.
func (d *PgDirectory) HasClinicAccess(ctx context.Context, actor Actor, clinicID uuid.UUID) (bool, error) {
	var query string

	switch actor.Kind {
	case ActorOwner, ActorStaff:
		query = `SELECT EXISTS (SELECT 1 FROM clinic_accounts WHERE user_id = $1 AND clinic_id = $2)`
	case ActorPractitioner:
		query = `SELECT EXISTS (SELECT 1 FROM vet_clinic_memberships WHERE vet_id = $1 AND clinic_id = $2)`
	default:
		return false, nil
	}

	var ok bool
	if err := d.pool.QueryRow(ctx, query, actor.ID, clinicID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check clinic access: %w", err)
	}

	return ok, nil
}
