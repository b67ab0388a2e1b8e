package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/vetdesk/vet-booking/internal/booking"
	"github.com/vetdesk/vet-booking/internal/config"
	"github.com/vetdesk/vet-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("lock-reaper starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running lock reaper in env=%s interval=%s", cfg.Env, cfg.ReaperInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	reaper := booking.NewReaper(booking.NewPgLockStore(pgPool), cfg.ReaperInterval)
	reaper.Run(rootCtx)

	log.Println("lock-reaper stopped")
}
