package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/idempotency"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/reservation"
)

type BookingService interface {
	Reserve(ctx context.Context, req domain.ReserveRequest) (*reservation.Result, error)
	GetByCode(ctx context.Context, code string) (*domain.BookingView, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingView, error)
	List(ctx context.Context) ([]domain.BookingView, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*domain.BookingView, error)
	Availability(ctx context.Context, slug string) (*domain.Availability, error)
}

type TicketSender interface {
	SendTicket(ctx context.Context, bookingID uuid.UUID) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type readyCheck struct {
	name string
	p    Pinger
}

type Handlers struct {
	bookings     BookingService
	tickets      TicketSender
	ready        []readyCheck
	idemp        *idempotency.Idempotency
	redirectPath string
	logger       observability.Logger
}

type HandlerOption func(*Handlers)

// WithIdempotency enables Idempotency-Key handling on POST /bookings.
func WithIdempotency(i *idempotency.Idempotency) HandlerOption {
	return func(h *Handlers) { h.idemp = i }
}

// WithReadyCheck adds a dependency that must answer before /readyz reports
// ready.
func WithReadyCheck(name string, p Pinger) HandlerOption {
	return func(h *Handlers) { h.ready = append(h.ready, readyCheck{name: name, p: p}) }
}

func WithRedirectPath(path string) HandlerOption {
	return func(h *Handlers) {
		if path != "" {
			h.redirectPath = path
		}
	}
}

func NewHandlers(bookings BookingService, tickets TicketSender, ready Pinger, logger observability.Logger, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		bookings:     bookings,
		tickets:      tickets,
		ready:        []readyCheck{{name: "store", p: ready}},
		redirectPath: "/pages/booking-success.html",
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// flexInt accepts a JSON number or numeric string. Anything unparseable
// decodes to zero, which the reservation floor turns into one.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(int(v))
		return nil
	}
	*f = 0
	return nil
}

type createBookingRequest struct {
	Slug     string  `json:"slug"`
	Method   string  `json:"method"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Quantity flexInt `json:"quantity"`
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := LoggerFrom(ctx, h.logger)

	key := r.Header.Get(IdempotencyHeader)
	if key != "" && h.idemp != nil {
		replay, err := h.idemp.Begin(ctx, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeError(w, http.StatusConflict, "request_in_progress")
			return
		case errors.Is(err, idempotency.ErrInvalidKey):
			writeError(w, http.StatusBadRequest, "invalid_idempotency_key")
			return
		case err != nil:
			logger.WithError(err).Warn("idempotency unavailable, continuing without it")
			key = ""
		case replay != nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(replay.Status)
			_, _ = w.Write(replay.Body)
			return
		}
	} else {
		key = ""
	}

	status, body := h.createBooking(r)
	data := writeJSON(w, status, body)

	if key != "" {
		var err error
		if status >= http.StatusInternalServerError {
			err = h.idemp.Abandon(ctx, key)
		} else {
			err = h.idemp.Complete(ctx, key, idempotency.Response{Status: status, Body: data})
		}
		if err != nil {
			logger.WithError(err).Warn("store idempotent response")
		}
	}
}

func (h *Handlers) createBooking(r *http.Request) (int, any) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return http.StatusBadRequest, errorBody("missing_fields")
	}

	res, err := h.bookings.Reserve(r.Context(), domain.ReserveRequest{
		Slug:     req.Slug,
		Quantity: int(req.Quantity),
		Method:   req.Method,
		Contact:  domain.Contact{Name: req.Name, Email: req.Email, Phone: req.Phone},
	})
	if err != nil {
		return h.errorResponse(r, err)
	}

	return http.StatusCreated, map[string]any{
		"ok":       true,
		"code":     res.Code,
		"id":       res.BookingID,
		"redirect": h.redirectPath + "?code=" + url.QueryEscape(res.Code),
	}
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	views, err := h.bookings.List(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]bookingJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toBookingJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBookingByCode serves both /bookings/by-code/{code} and the
// /bookings/{code} alias.
func (h *Handlers) GetBookingByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		code = chi.URLParam(r, "ref")
	}
	v, err := h.bookings.GetByCode(r.Context(), code)
	if errors.Is(err, domain.ErrInvalidInput) {
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingJSON(*v))
}

func (h *Handlers) GetBookingByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	v, err := h.bookings.GetByID(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingJSON(*v))
}

func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "ref"))
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	v, err := h.bookings.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "booking": toBookingJSON(*v)})
}

func (h *Handlers) SendTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "ref"))
	if !ok {
		return
	}
	if err := h.tickets.SendTicket(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	a, err := h.bookings.Availability(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"capacity":  a.Capacity,
		"booked":    a.Booked,
		"remaining": a.Remaining,
		"unlimited": a.Unlimited,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, c := range h.ready {
		if err := c.p.Ping(ctx); err != nil {
			LoggerFrom(r.Context(), h.logger).WithError(err).WithField("check", c.name).Warn("readiness check failed")
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return uuid.Nil, false
	}
	return id, true
}
