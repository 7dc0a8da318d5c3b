package auth

import (
	"github.com/ebonics/ebonics-core/internal/models"
	"github.com/ebonics/ebonics-core/internal/navigation"
)

// ResolveRoles maps a user's assigned roles to their home destination under
// the fixed priority admin > caregiver > client. Total over all inputs: an
// empty or unrecognized set falls back to the client home.
func ResolveRoles(roles []string) navigation.Destination {
	var caregiver bool
	for _, role := range roles {
		switch role {
		case models.RoleAdmin:
			return navigation.AdminHome
		case models.RoleCaregiver:
			caregiver = true
		}
	}
	if caregiver {
		return navigation.CaregiverSchedule
	}
	return navigation.ClientHome
}
