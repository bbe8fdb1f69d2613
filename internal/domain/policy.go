package domain

import "time"

// BreachType identifies which SLA dimension a ticket violated.
type BreachType string

const (
	BreachFirstResponse BreachType = "first_response"
	BreachResolution    BreachType = "resolution"
)

// SlaPolicy defines response-time targets for one ticket priority.
// At most one policy per (owner, priority) may be active at a time.
type SlaPolicy struct {
	ID                   string
	OwnerID              string
	Name                 string
	Description          *string
	Priority             TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	BusinessHoursOnly    bool
	EscalationEmail      *string
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BreachResult describes a single breach detected during a scan.
// It is returned to the caller and published as an event; it is not persisted.
type BreachResult struct {
	TicketID        string     `json:"ticket_id"`
	TicketNumber    string     `json:"ticket_number"`
	PolicyName      string     `json:"policy_name"`
	BreachType      BreachType `json:"breach_type"`
	ExpectedMinutes int        `json:"expected_minutes"`
	ActualMinutes   int        `json:"actual_minutes"`
	BreachedAt      time.Time  `json:"breached_at"`
}
