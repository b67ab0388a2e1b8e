package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vetdesk/vet-booking/internal/api"
	"github.com/vetdesk/vet-booking/internal/booking"
	"github.com/vetdesk/vet-booking/internal/config"
	"github.com/vetdesk/vet-booking/internal/db"
	"github.com/vetdesk/vet-booking/internal/directory"
	"github.com/vetdesk/vet-booking/internal/notify"
	redisclient "github.com/vetdesk/vet-booking/internal/redis"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s reservation_ttl=%s", cfg.Env, cfg.HTTPPort, cfg.ReservationTTL)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.SMTPAddr != "" {
		mailer = notify.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	}

	dir := directory.NewPgDirectory(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	notifier := notify.NewOutboxNotifier(pgPool, mailer)
	lockStore := booking.NewPgLockStore(pgPool)
	repo := booking.NewPgRepository(pgPool)

	svc := booking.NewService(repo, lockStore, dir, dir, notifier, locker,
		booking.WithReservationTTL(cfg.ReservationTTL))

	// The reaper also runs in-process; deletion is idempotent, so this is
	// safe alongside the standalone lock-reaper binary.
	reaper := booking.NewReaper(lockStore, cfg.ReaperInterval)
	go reaper.Run(rootCtx)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Auth:    api.NewAuth(cfg.JWTSecret),
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
