package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/events"
)

// EscalationService reacts to breach events. Actual email delivery belongs to
// a downstream notifier; this records the escalation intent so operators can
// see which address would have been paged.
type EscalationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewEscalationService creates the service.
func NewEscalationService(dispatcher events.Dispatcher, logger *zap.Logger) *EscalationService {
	return &EscalationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (e *EscalationService) RegisterHandlers() {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.Subscribe(events.EventBreachDetected, e.handleBreachDetected)
	e.dispatcher.Subscribe(events.EventScanCompleted, e.handleScanCompleted)
}

func (e *EscalationService) handleBreachDetected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.BreachDetectedPayload)
	if !ok {
		return nil
	}
	fields := []zap.Field{
		zap.String("owner_id", event.OwnerID),
		zap.String("ticket_number", payload.Breach.TicketNumber),
		zap.String("breach_type", string(payload.Breach.BreachType)),
		zap.String("policy", payload.Breach.PolicyName),
		zap.Int("expected_minutes", payload.Breach.ExpectedMinutes),
		zap.Int("actual_minutes", payload.Breach.ActualMinutes),
	}
	if payload.EscalationEmail != nil {
		fields = append(fields, zap.String("escalation_email", *payload.EscalationEmail))
	}
	e.logger.Warn("SLA breach detected", fields...)
	return nil
}

func (e *EscalationService) handleScanCompleted(ctx context.Context, event events.Event) error {
	e.logger.Debug("scan completed",
		zap.String("owner_id", event.OwnerID),
		zap.Any("payload", event.Payload))
	return nil
}
