package notify

import (
	"context"

	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

// LogTransport writes tickets to the log instead of sending them. It is the
// default transport for local runs.
type LogTransport struct {
	logger observability.Logger
}

func NewLogTransport(logger observability.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Deliver(ctx context.Context, ticket ports.Ticket) error {
	t.logger.
		WithField("to", ticket.To).
		WithField("code", ticket.Code).
		WithField("subject", ticket.Subject).
		Info(ticket.Text)
	return nil
}
