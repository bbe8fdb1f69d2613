package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// AuthService coordinates owner registration and login flows.
type AuthService struct {
	owners     repository.OwnerRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, owners repository.OwnerRepository) *AuthService {
	return &AuthService{
		owners:     owners,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// RegisterOwner creates a new tenant owner account and signs it in.
func (s *AuthService) RegisterOwner(ctx context.Context, name, email, password string) (*domain.Owner, string, time.Time, error) {
	if _, err := s.owners.GetByEmail(ctx, email); err == nil {
		return nil, "", time.Time{}, apperrors.NewValidationError("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	owner := &domain.Owner{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.owners.Create(ctx, owner); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(owner.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return owner, token, exp, nil
}

// LoginOwner authenticates an owner account.
func (s *AuthService) LoginOwner(ctx context.Context, email, password string) (*domain.Owner, string, time.Time, error) {
	owner, err := s.owners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(owner.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(owner.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return owner, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
