package models

import (
	"time"

	"github.com/google/uuid"
)

// Care roles assignable to a user. A user may hold several at once;
// routing priority is admin > caregiver > client.
const (
	RoleClient    = "client"
	RoleCaregiver = "caregiver"
	RoleAdmin     = "admin"
)

type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      *string   `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type RoleAssignment struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

// KnownRole reports whether role is one of the three care roles.
func KnownRole(role string) bool {
	switch role {
	case RoleClient, RoleCaregiver, RoleAdmin:
		return true
	}
	return false
}
