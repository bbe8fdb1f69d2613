package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBreachDetected EventType = "breach_detected"
	EventScanCompleted  EventType = "scan_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	OwnerID   string      `json:"owner_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BreachDetectedPayload payload.
type BreachDetectedPayload struct {
	Breach          domain.BreachResult `json:"breach"`
	EscalationEmail *string             `json:"escalation_email,omitempty"`
}

// ScanCompletedPayload payload.
type ScanCompletedPayload struct {
	CheckedCount int `json:"checked_count"`
	BreachCount  int `json:"breach_count"`
	ErrorCount   int `json:"error_count"`
}
