package dto

import (
	"time"

	"github.com/google/uuid"
)

// Wire types for the gotrue-style identity API, shared by the client gateway
// and the dev identity stub.

type TokenRequest struct {
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

type IdentityUser struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         IdentityUser `json:"user"`
}

type SignupRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     map[string]string `json:"data,omitempty"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
	Type  string `json:"type"`
}

type OTPRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type UpdateUserRequest struct {
	Password string `json:"password,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"error_code"`
	Message string `json:"msg"`
}
