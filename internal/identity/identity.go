// Package identity talks to the remote identity service (a gotrue-style REST
// API) and fans out session lifecycle events to subscribers.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventInitialSession EventKind = "initial_session"
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserUpdated    EventKind = "user_updated"
)

// Verification purposes accepted by VerifyCode/ResendCode.
const (
	PurposeSignup   = "signup"
	PurposeRecovery = "recovery"
)

// Session is the opaque proof of an authenticated identity. Presence implies
// a live identity; absence implies anonymous.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
}

func (s *Session) Expired() bool {
	return s != nil && !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Handler receives session lifecycle events. Events are delivered serially,
// in the order the gateway produced them.
type Handler func(kind EventKind, session *Session)

// Gateway is the identity capability consumed by the auth store and the
// session resolver.
type Gateway interface {
	Session(ctx context.Context) (*Session, error)
	OnSessionChange(handler Handler) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Session, error)
	SignOut(ctx context.Context) error
	VerifyCode(ctx context.Context, email, code, purpose string) (*Session, error)
	ResendCode(ctx context.Context, email, purpose string) error
	UpdatePassword(ctx context.Context, newPassword string) error
}

// Error is a structured identity API failure: invalid credentials, expired
// codes, duplicate signups. Never fatal to the caller.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("identity: %s (status %d)", e.Message, e.Status)
}
