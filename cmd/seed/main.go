package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetdesk/vet-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicIDs, err := seedClinics(context.Background(), pool, 10)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	if err := seedVets(context.Background(), pool, clinicIDs, 80); err != nil {
		log.Fatalf("seed vets: %v", err)
	}
	if err := seedOwnersAndPets(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed owners: %v", err)
	}
	if err := seedClinicStaff(context.Background(), pool, clinicIDs, 3); err != nil {
		log.Fatalf("seed clinic staff: %v", err)
	}

	log.Println("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinics", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Veterinary Clinic"
		addr := gofakeit.Address().Address

		_, err := tx.Exec(ctx, `
			INSERT INTO veterinary_clinics (id, name, address, created_at)
			VALUES ($1, $2, $3, now())
		`, id, name, addr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinics seeded")
	return ids, nil
}

func seedVets(ctx context.Context, pool *pgxpool.Pool, clinicIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d vets", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		email := gofakeit.Email()
		// A small fraction of vets are inactive to exercise the booking guard.
		active := gofakeit.Number(0, 9) != 0

		_, err := tx.Exec(ctx, `
			INSERT INTO vets (id, full_name, email, active, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, id, name, email, active)
		if err != nil {
			return err
		}

		clinic := clinicIDs[gofakeit.Number(0, len(clinicIDs)-1)]
		_, err = tx.Exec(ctx, `
			INSERT INTO vet_clinic_memberships (vet_id, clinic_id)
			VALUES ($1, $2)
		`, id, clinic)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("vets seeded")
	return nil
}

func seedOwnersAndPets(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d owners with pets", count)

	species := []string{"Dog", "Cat", "Rabbit", "Parrot", "Hamster", "Guinea Pig", "Turtle"}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			ownerID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, full_name, email, phone, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, ownerID, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			pets := gofakeit.Number(1, 3)
			for p := 0; p < pets; p++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO pets (id, owner_id, name, species, created_at)
					VALUES ($1, $2, $3, $4, now())
				`, uuid.New(), ownerID, gofakeit.PetName(), species[gofakeit.Number(0, len(species)-1)])
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("owners seeded: %d/%d", end, count)
	}

	log.Println("owners and pets seeded")
	return nil
}

func seedClinicStaff(ctx context.Context, pool *pgxpool.Pool, clinicIDs []uuid.UUID, perClinic int) error {
	log.Printf("seeding %d staff accounts per clinic", perClinic)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, clinicID := range clinicIDs {
		for i := 0; i < perClinic; i++ {
			userID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, full_name, email, phone, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, userID, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				return err
			}

			role := "STAFF"
			if i == 0 {
				role = "OWNER"
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO clinic_accounts (clinic_id, user_id, staff_role)
				VALUES ($1, $2, $3)
			`, clinicID, userID, role)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("clinic staff seeded")
	return nil
}
