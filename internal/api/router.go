package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vetdesk/vet-booking/internal/booking"
)

type RouterConfig struct {
	Service BookingService
	Auth    *Auth
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)

		// Slot reservations
		r.Post("/reservations", reserveHandler(cfg.Service))
		r.Delete("/reservations/{id}", releaseHandler(cfg.Service))
		r.Get("/reservations/current", currentReservationHandler(cfg.Service))

		// Appointment lifecycle
		r.Post("/appointments", bookHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", confirmHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel/confirm", confirmCancellationHandler(cfg.Service))
		r.Patch("/appointments/{id}", updateHandler(cfg.Service))
		r.Delete("/appointments/{id}", deleteHandler(cfg.Service))

		// Calendars and searches
		r.Get("/practitioners/{id}/calendar", calendarHandler(cfg.Service))
		r.Get("/practitioners/{id}/appointments/past", pastAppointmentsHandler(cfg.Service, booking.ScopePractitioner))
		r.Get("/clinics/{id}/appointments", clinicAppointmentsHandler(cfg.Service))
		r.Get("/clinics/{id}/appointments/past", pastAppointmentsHandler(cfg.Service, booking.ScopeClinic))
		r.Get("/me/appointments", ownerAppointmentsHandler(cfg.Service))
		r.Get("/me/appointments/past", pastAppointmentsHandler(cfg.Service, booking.ScopeOwner))
	})

	return r
}
