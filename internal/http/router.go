package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/rateLimit"
)

// SetupRouter wires the public API. rl may be nil, which disables rate
// limiting.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, perMinute int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if rl != nil && perMinute > 0 {
			r.Use(RateLimitMiddleware(rl, perMinute))
		}

		r.Get("/events/{slug}/availability", h.Availability)

		r.Route("/bookings", func(r chi.Router) {
			r.With(IdempotencyMiddleware).Post("/", h.CreateBooking)
			r.Get("/", h.ListBookings)
			r.Get("/by-code/{code}", h.GetBookingByCode)
			r.Get("/by-id/{id}", h.GetBookingByID)
			r.Get("/{ref}", h.GetBookingByCode)
			r.Patch("/{ref}", h.UpdateStatus)
			r.Post("/{ref}/send-ticket", h.SendTicket)
		})
	})

	return r
}
