package dto

import (
	"time"

	"github.com/spec-kit/membership-service/internal/domain"
)

// RegisterRequest payload for new members.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest payload for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	AccessToken      string     `json:"access_token"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	TokenType        string     `json:"token_type"`
}

// NewAuthResponse converts a token pair.
func NewAuthResponse(pair domain.TokenPair) AuthResponse {
	resp := AuthResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt.UTC(),
		TokenType:       "Bearer",
	}
	if pair.RefreshToken != "" {
		exp := pair.RefreshExpiresAt.UTC()
		resp.RefreshToken = pair.RefreshToken
		resp.RefreshExpiresAt = &exp
	}
	return resp
}

// UserResponse is the public view of a member. The password hash never leaves the service.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse converts a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Phone:     user.Phone,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.UTC(),
	}
}

// RevokeSessionsResponse reports how many refresh tokens were deleted.
type RevokeSessionsResponse struct {
	Status  string `json:"status"`
	Revoked int64  `json:"revoked"`
}
