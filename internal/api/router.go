package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/neiandria/clinic-scheduling/internal/appointment"
	"github.com/neiandria/clinic-scheduling/internal/records"
	"github.com/neiandria/clinic-scheduling/internal/session"
)

type RouterConfig struct {
	Manager    *appointment.Manager
	Directory  records.Directory
	Identities records.IdentityStore
	Wizards    *session.Registry

	WeekStart time.Weekday
	Location  *time.Location
	Now       func() time.Time

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/calendar", calendarHandler(cfg.WeekStart, cfg.Location, cfg.Now))
	r.Get("/slots", slotsHandler(cfg.Manager.Catalog()))

	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", listDoctorsHandler(cfg.Directory))
		r.Get("/specialties", specialtiesHandler(cfg.Directory))
		r.Get("/{id}/availability", availabilityHandler(cfg.Manager, cfg.Directory, cfg.Location))
		r.Get("/{id}/overview", doctorOverviewHandler(cfg.Manager, cfg.Directory, cfg.WeekStart))
	})

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", listPatientsHandler(cfg.Directory))
		r.Post("/", createPatientHandler(cfg.Directory, cfg.Location))
		r.Get("/{id}/history", patientHistoryHandler(cfg.Manager, cfg.Directory))
	})

	r.Get("/users", listUsersHandler(cfg.Directory))

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Manager, cfg.Location))
		r.Get("/", listAppointmentsHandler(cfg.Manager))
		r.Get("/{id}", getAppointmentHandler(cfg.Manager))
		r.Post("/{id}/cancel", transitionHandler(cfg.Manager.Cancel))
		r.Post("/{id}/start", transitionHandler(cfg.Manager.Start))
		r.Post("/{id}/complete", transitionHandler(cfg.Manager.ConfirmCompletion))
		r.Post("/{id}/reschedule", rescheduleHandler(cfg.Manager, cfg.Location))
	})

	r.Route("/identity", func(r chi.Router) {
		r.Post("/", signInHandler(cfg.Identities))
		r.Get("/", currentIdentityHandler(cfg.Identities))
		r.Delete("/", signOutHandler(cfg.Identities))
	})

	r.Route("/wizards", func(r chi.Router) {
		r.Post("/", startWizardHandler(cfg.Wizards))
		r.Get("/{id}", getWizardHandler(cfg.Wizards))
		r.Post("/{id}/{action}", wizardActionHandler(cfg.Wizards))
	})

	return r
}
