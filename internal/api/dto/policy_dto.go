package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	Name                 string                `json:"name"`
	Description          *string               `json:"description"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	BusinessHoursOnly    *bool                 `json:"business_hours_only"`
	EscalationEmail      *string               `json:"escalation_email"`
}

// UpdatePolicyRequest payload; absent fields keep their current value.
type UpdatePolicyRequest struct {
	Name                 *string                `json:"name"`
	Description          *string                `json:"description"`
	Priority             *domain.TicketPriority `json:"priority"`
	FirstResponseMinutes *int                   `json:"first_response_minutes"`
	ResolutionMinutes    *int                   `json:"resolution_minutes"`
	BusinessHoursOnly    *bool                  `json:"business_hours_only"`
	EscalationEmail      *string                `json:"escalation_email"`
}

// PolicyResponse response.
type PolicyResponse struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Description          *string               `json:"description,omitempty"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	BusinessHoursOnly    bool                  `json:"business_hours_only"`
	EscalationEmail      *string               `json:"escalation_email,omitempty"`
	IsActive             bool                  `json:"is_active"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// PolicyListResponse wraps a page of policies.
type PolicyListResponse struct {
	Policies  []PolicyResponse `json:"policies"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	Limit     int              `json:"limit"`
	PageCount int              `json:"page_count"`
}

// ScanReportResponse is the check-breaches result envelope.
type ScanReportResponse struct {
	Breaches     []domain.BreachResult `json:"breaches"`
	CheckedCount int                   `json:"checked_count"`
	Errors       []string              `json:"errors"`
}
