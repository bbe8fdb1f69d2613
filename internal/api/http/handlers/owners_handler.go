package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// OwnersHandler manages owner account endpoints.
type OwnersHandler struct {
	auth *service.AuthService
}

// NewOwnersHandler constructs handler.
func NewOwnersHandler(authService *service.AuthService) *OwnersHandler {
	return &OwnersHandler{auth: authService}
}

// Register POST /auth/owners/register.
func (h *OwnersHandler) Register(c *fiber.Ctx) error {
	var req dto.OwnerRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}

	owner, token, expiresAt, err := h.auth.RegisterOwner(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AuthResponse{
		Owner:     ownerResponse(owner),
		Token:     token,
		ExpiresAt: expiresAt,
	}})
}

// Login POST /auth/owners/login.
func (h *OwnersHandler) Login(c *fiber.Ctx) error {
	var req dto.OwnerLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email, password required", nil)
	}

	owner, token, expiresAt, err := h.auth.LoginOwner(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Owner:     ownerResponse(owner),
		Token:     token,
		ExpiresAt: expiresAt,
	}})
}

func ownerResponse(owner *domain.Owner) dto.OwnerResponse {
	return dto.OwnerResponse{
		ID:    owner.ID,
		Name:  owner.Name,
		Email: owner.Email,
	}
}
