package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// PolicyService owns SLA policy records and their invariants: response
// thresholds must be positive with first response strictly before resolution,
// and at most one policy per (owner, priority) may be active.
type PolicyService struct {
	policies repository.PolicyRepository
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.PolicyRepository) *PolicyService {
	return &PolicyService{policies: policies}
}

// PolicyCreateInput describes policy creation payload.
type PolicyCreateInput struct {
	Name                 string
	Description          *string
	Priority             domain.TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	BusinessHoursOnly    bool
	EscalationEmail      *string
}

// PolicyUpdateInput describes a partial update. Nil fields keep their
// current value.
type PolicyUpdateInput struct {
	Name                 *string
	Description          *string
	Priority             *domain.TicketPriority
	FirstResponseMinutes *int
	ResolutionMinutes    *int
	BusinessHoursOnly    *bool
	EscalationEmail      *string
}

// PolicyListFilter describes listing filters.
type PolicyListFilter struct {
	Search   *string
	Priority *domain.TicketPriority
	IsActive *bool
	Page     int
	Limit    int
}

// PolicyPage is a paginated listing result.
type PolicyPage struct {
	Policies  []domain.SlaPolicy
	Total     int
	Page      int
	Limit     int
	PageCount int
}

// Create validates thresholds, checks priority uniqueness and persists a new
// active policy.
func (s *PolicyService) Create(ctx context.Context, ownerID string, input PolicyCreateInput) (*domain.SlaPolicy, error) {
	if err := validateThresholds(input.FirstResponseMinutes, input.ResolutionMinutes); err != nil {
		return nil, err
	}

	exists, err := s.policies.ActiveExistsForPriority(ctx, ownerID, input.Priority, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, duplicateActiveError(input.Priority)
	}

	policy := &domain.SlaPolicy{
		OwnerID:              ownerID,
		Name:                 strings.TrimSpace(input.Name),
		Description:          input.Description,
		Priority:             input.Priority,
		FirstResponseMinutes: input.FirstResponseMinutes,
		ResolutionMinutes:    input.ResolutionMinutes,
		BusinessHoursOnly:    input.BusinessHoursOnly,
		EscalationEmail:      input.EscalationEmail,
		IsActive:             true,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicateActivePolicy) {
			return nil, duplicateActiveError(input.Priority)
		}
		return nil, err
	}
	return policy, nil
}

// Update applies a partial update. Threshold invariants are re-validated on
// the merged view, so changing only one duration is still checked against the
// other's current value.
func (s *PolicyService) Update(ctx context.Context, id, ownerID string, input PolicyUpdateInput) (*domain.SlaPolicy, error) {
	policy, err := s.getOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	merged := *policy
	if input.Name != nil {
		merged.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		merged.Description = input.Description
	}
	if input.Priority != nil {
		merged.Priority = *input.Priority
	}
	if input.FirstResponseMinutes != nil {
		merged.FirstResponseMinutes = *input.FirstResponseMinutes
	}
	if input.ResolutionMinutes != nil {
		merged.ResolutionMinutes = *input.ResolutionMinutes
	}
	if input.BusinessHoursOnly != nil {
		merged.BusinessHoursOnly = *input.BusinessHoursOnly
	}
	if input.EscalationEmail != nil {
		merged.EscalationEmail = input.EscalationEmail
	}

	if err := validateThresholds(merged.FirstResponseMinutes, merged.ResolutionMinutes); err != nil {
		return nil, err
	}
	if merged.Priority != policy.Priority {
		exists, err := s.policies.ActiveExistsForPriority(ctx, ownerID, merged.Priority, policy.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, duplicateActiveError(merged.Priority)
		}
	}

	if err := s.policies.Update(ctx, &merged); err != nil {
		if errors.Is(err, repository.ErrDuplicateActivePolicy) {
			return nil, duplicateActiveError(merged.Priority)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError(id)
		}
		return nil, err
	}
	return &merged, nil
}

// Delete removes a policy owned by ownerID.
func (s *PolicyService) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := s.getOwned(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.policies.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundError(id)
		}
		return err
	}
	return nil
}

// Get fetches one policy scoped to ownerID.
func (s *PolicyService) Get(ctx context.Context, id, ownerID string) (*domain.SlaPolicy, error) {
	return s.getOwned(ctx, id, ownerID)
}

// GetForPriority returns the single active policy covering priority, or nil
// when that priority is unmonitored.
func (s *PolicyService) GetForPriority(ctx context.Context, ownerID string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	active, err := s.policies.FindActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range active {
		if active[i].Priority == priority {
			return &active[i], nil
		}
	}
	return nil, nil
}

// ToggleActive flips the active flag. Reactivation re-checks priority
// uniqueness: toggles can arrive out of order, and this is the one path that
// could otherwise smuggle in a second active policy.
func (s *PolicyService) ToggleActive(ctx context.Context, id, ownerID string) (*domain.SlaPolicy, error) {
	policy, err := s.getOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if !policy.IsActive {
		exists, err := s.policies.ActiveExistsForPriority(ctx, ownerID, policy.Priority, policy.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, duplicateActiveError(policy.Priority)
		}
	}

	policy.IsActive = !policy.IsActive
	if err := s.policies.Update(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicateActivePolicy) {
			return nil, duplicateActiveError(policy.Priority)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError(id)
		}
		return nil, err
	}
	return policy, nil
}

// List returns a filtered, paginated page of policies.
func (s *PolicyService) List(ctx context.Context, ownerID string, filter PolicyListFilter) (*PolicyPage, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	policies, total, err := s.policies.ListWithFilter(ctx, repository.PolicyFilter{
		OwnerID:  ownerID,
		Search:   filter.Search,
		Priority: filter.Priority,
		IsActive: filter.IsActive,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if policies == nil {
		policies = []domain.SlaPolicy{}
	}

	return &PolicyPage{
		Policies:  policies,
		Total:     total,
		Page:      page,
		Limit:     limit,
		PageCount: (total + limit - 1) / limit,
	}, nil
}

// getOwned loads a policy and enforces ownership. Foreign policies are
// reported as not found so tenants cannot probe each other's records.
func (s *PolicyService) getOwned(ctx context.Context, id, ownerID string) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError(id)
		}
		return nil, err
	}
	if policy.OwnerID != ownerID {
		return nil, notFoundError(id)
	}
	return policy, nil
}

func validateThresholds(firstResponse, resolution int) error {
	if firstResponse <= 0 {
		return apperrors.NewValidationError("first_response_minutes must be greater than zero", nil)
	}
	if resolution <= 0 {
		return apperrors.NewValidationError("resolution_minutes must be greater than zero", nil)
	}
	if firstResponse >= resolution {
		return apperrors.NewValidationError("first_response_minutes must be less than resolution_minutes", map[string]any{
			"first_response_minutes": firstResponse,
			"resolution_minutes":     resolution,
		})
	}
	return nil
}

func duplicateActiveError(priority domain.TicketPriority) error {
	return apperrors.NewConflict(
		fmt.Sprintf("an active SLA policy already exists for priority %s - deactivate it first", priority),
		map[string]any{"priority": priority},
	)
}

func notFoundError(id string) error {
	return apperrors.NewNotFound("SLA policy", map[string]any{"id": id})
}
