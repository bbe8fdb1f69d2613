package dto

import "time"

// OwnerRegisterRequest payload for new owner accounts.
type OwnerRegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OwnerLoginRequest payload for login.
type OwnerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OwnerResponse describes an owner account.
type OwnerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Owner     OwnerResponse `json:"owner"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}
