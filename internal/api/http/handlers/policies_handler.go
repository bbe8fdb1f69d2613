package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// PoliciesHandler manages the owner-scoped SLA policy endpoints.
type PoliciesHandler struct {
	policies *service.PolicyService
	scanner  *service.BreachScanner
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policies *service.PolicyService, scanner *service.BreachScanner) *PoliciesHandler {
	return &PoliciesHandler{policies: policies, scanner: scanner}
}

// List GET /sla-policies.
func (h *PoliciesHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}

	filter := service.PolicyListFilter{
		Page:  parseInt(c.Query("page"), 1),
		Limit: parseInt(c.Query("limit"), 20),
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.Search = &search
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		priority := domain.TicketPriority(strings.ToUpper(strings.TrimSpace(priorityStr)))
		if !priority.Valid() {
			return apperrors.NewValidationError("unknown priority", map[string]any{"priority": priorityStr})
		}
		filter.Priority = &priority
	}
	if activeStr := c.Query("is_active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return apperrors.NewValidationError("is_active must be a boolean", nil)
		}
		filter.IsActive = &active
	}

	page, err := h.policies.List(c.Context(), principal.Owner.ID, filter)
	if err != nil {
		return err
	}

	items := make([]dto.PolicyResponse, 0, len(page.Policies))
	for i := range page.Policies {
		items = append(items, policyResponse(&page.Policies[i]))
	}
	return c.JSON(fiber.Map{"data": dto.PolicyListResponse{
		Policies:  items,
		Total:     page.Total,
		Page:      page.Page,
		Limit:     page.Limit,
		PageCount: page.PageCount,
	}})
}

// Get GET /sla-policies/:id.
func (h *PoliciesHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	policy, err := h.policies.Get(c.Context(), c.Params("id"), principal.Owner.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// Create POST /sla-policies.
func (h *PoliciesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if !req.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}

	input := service.PolicyCreateInput{
		Name:                 req.Name,
		Description:          req.Description,
		Priority:             req.Priority,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
		EscalationEmail:      req.EscalationEmail,
	}
	if req.BusinessHoursOnly != nil {
		input.BusinessHoursOnly = *req.BusinessHoursOnly
	}

	policy, err := h.policies.Create(c.Context(), principal.Owner.ID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// Update PATCH /sla-policies/:id.
func (h *PoliciesHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": *req.Priority})
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return apperrors.NewValidationError("name cannot be empty", nil)
	}

	policy, err := h.policies.Update(c.Context(), c.Params("id"), principal.Owner.ID, service.PolicyUpdateInput{
		Name:                 req.Name,
		Description:          req.Description,
		Priority:             req.Priority,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
		BusinessHoursOnly:    req.BusinessHoursOnly,
		EscalationEmail:      req.EscalationEmail,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// Delete DELETE /sla-policies/:id.
func (h *PoliciesHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	if err := h.policies.Delete(c.Context(), c.Params("id"), principal.Owner.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ToggleActive POST /sla-policies/:id/toggle-active.
func (h *PoliciesHandler) ToggleActive(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	policy, err := h.policies.ToggleActive(c.Context(), c.Params("id"), principal.Owner.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// CheckBreaches GET /sla-policies/check-breaches. Per-ticket errors are part
// of the report, not an HTTP failure; only a failed scan returns an error.
func (h *PoliciesHandler) CheckBreaches(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Owner == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	report, err := h.scanner.CheckBreaches(c.Context(), principal.Owner.ID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.ScanReportResponse{
		Breaches:     report.Breaches,
		CheckedCount: report.CheckedCount,
		Errors:       report.Errors,
	}})
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func policyResponse(policy *domain.SlaPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:                   policy.ID,
		Name:                 policy.Name,
		Description:          policy.Description,
		Priority:             policy.Priority,
		FirstResponseMinutes: policy.FirstResponseMinutes,
		ResolutionMinutes:    policy.ResolutionMinutes,
		BusinessHoursOnly:    policy.BusinessHoursOnly,
		EscalationEmail:      policy.EscalationEmail,
		IsActive:             policy.IsActive,
		CreatedAt:            policy.CreatedAt,
		UpdatedAt:            policy.UpdatedAt,
	}
}
