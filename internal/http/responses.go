package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
)

type eventJSON struct {
	ID        uuid.UUID  `json:"id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Currency  string     `json:"currency"`
	VenueName string     `json:"venue_name"`
	City      string     `json:"city"`
}

type bookingJSON struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	Quantity      int        `json:"quantity"`
	AmountCents   int64      `json:"amount_cents"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SentAt        *time.Time `json:"sent_at"`
	Event         eventJSON  `json:"event"`
}

func toBookingJSON(v domain.BookingView) bookingJSON {
	return bookingJSON{
		ID:            v.ID,
		Code:          v.Code,
		Quantity:      v.Quantity,
		AmountCents:   v.AmountCents,
		Method:        v.Method,
		Status:        string(v.Status),
		CustomerName:  v.Customer.Name,
		CustomerEmail: v.Customer.Email,
		CustomerPhone: v.Customer.Phone,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		SentAt:        v.SentAt,
		Event: eventJSON{
			ID:        v.Event.ID,
			Slug:      v.Event.Slug,
			Title:     v.Event.Title,
			StartTime: v.Event.StartTime,
			EndTime:   v.Event.EndTime,
			Currency:  v.Event.Currency,
			VenueName: v.Event.VenueName,
			City:      v.Event.City,
		},
	}
}

func errorBody(code string) map[string]any {
	return map[string]any{"error": code}
}

// writeJSON writes v and returns the encoded body.
func writeJSON(w http.ResponseWriter, status int, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"server_error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody(code))
}

// errorResponse maps service errors onto the public error taxonomy.
// Unexpected errors are logged and hidden behind server_error.
func (h *Handlers) errorResponse(r *http.Request, err error) (int, any) {
	var soldOut *domain.SoldOutError
	switch {
	case errors.As(err, &soldOut):
		return http.StatusConflict, map[string]any{"error": "sold_out", "remaining": soldOut.Remaining}
	case errors.Is(err, domain.ErrQuantityTooLarge):
		return http.StatusBadRequest, errorBody("invalid_quantity")
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorBody("missing_fields")
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, errorBody("invalid_status")
	case errors.Is(err, domain.ErrNoEmail):
		return http.StatusBadRequest, errorBody("no_email")
	case errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound, errorBody("event_not_found")
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody("not_found")
	}
	LoggerFrom(r.Context(), h.logger).WithError(err).Error("request failed")
	return http.StatusInternalServerError, errorBody("server_error")
}

func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.errorResponse(r, err)
	writeJSON(w, status, body)
}
