package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ActionBookingCreated = "booking.created"
	ActionStatusChanged  = "booking.status_changed"
	ActionTicketSent     = "booking.ticket_sent"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
	now    func() time.Time
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return NewCollectionAuditLogger(db.Collection("audit_logs"), logger)
}

func NewCollectionAuditLogger(coll *mongo.Collection, logger observability.Logger) *AuditLogger {
	return &AuditLogger{coll: coll, logger: logger, now: time.Now}
}

var _ ports.Auditor = (*AuditLogger)(nil)

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID string    `bson:"booking_id"`
	Code      string    `bson:"code"`
	EventID   string    `bson:"event_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, b domain.Booking, data bson.M) error {
	entry := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		BookingID: b.ID.String(),
		Code:      b.Code,
		EventID:   b.EventID.String(),
		Timestamp: a.now(),
		Data:      data,
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) BookingCreated(ctx context.Context, b domain.Booking) error {
	return a.LogEvent(ctx, ActionBookingCreated, b, bson.M{
		"quantity":     b.Quantity,
		"amount_cents": b.AmountCents,
		"method":       b.Method,
		"status":       string(b.Status),
	})
}

func (a *AuditLogger) StatusChanged(ctx context.Context, v domain.BookingView) error {
	return a.LogEvent(ctx, ActionStatusChanged, v.Booking, bson.M{
		"status":     string(v.Status),
		"updated_at": v.UpdatedAt,
	})
}

func (a *AuditLogger) TicketSent(ctx context.Context, v domain.BookingView) error {
	return a.LogEvent(ctx, ActionTicketSent, v.Booking, bson.M{
		"to": v.Customer.Email,
	})
}
