/*
Package events publishes domain events raised by the console services.

PURPOSE:
  Refund decisions, receipts, data-subject requests and reconciliation
  results are interesting to other platform services (rider support,
  finance exports). Services hand events to a Publisher and move on;
  a failed publish never fails the request that raised it.

IMPLEMENTATIONS:
  - AMQPPublisher: RabbitMQ topic exchange, routing key = event type
  - LogPublisher:  writes events to the zap logger (default in development)

USAGE:
  pub, err := events.NewAMQPPublisher(url, "console.events", logger)
  svc := payments.NewService(store, pub, auditLog, logger)

SEE ALSO:
  - amqp.go: RabbitMQ implementation
*/
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types.
const (
	PaymentRecorded         = "payment.recorded"
	RefundRequested         = "refund.requested"
	RefundApproved          = "refund.approved"
	RefundRejected          = "refund.rejected"
	ReconciliationCompleted = "reconciliation.completed"
	PayoutCreated           = "payout.created"
	ReceiptIssued           = "receipt.issued"
	ReceiptVoided           = "receipt.voided"
	SubjectRequestReceived  = "dsr.received"
	SubjectRequestUpdated   = "dsr.updated"
	AlertRaised             = "alert.raised"
)

// Event is a fact that already happened.
type Event struct {
	Type       string         `json:"type"`
	SubjectID  string         `json:"subject_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// New stamps an event with the current time.
func New(eventType, subjectID string, payload map[string]any) Event {
	return Event{Type: eventType, SubjectID: subjectID, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Emit publishes and logs failures. A nil publisher is a no-op.
func Emit(ctx context.Context, pub Publisher, log *zap.Logger, e Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil && log != nil {
		log.Warn("event publish failed",
			zap.String("event", e.Type),
			zap.String("subject_id", e.SubjectID),
			zap.Error(err))
	}
}

// =============================================================================
// LOG PUBLISHER
// =============================================================================

// LogPublisher writes events to a logger instead of a broker.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Info("event",
		zap.String("type", e.Type),
		zap.String("subject_id", e.SubjectID),
		zap.Time("occurred_at", e.OccurredAt),
		zap.Any("payload", e.Payload))
	return nil
}
