// Package navigation is the surface the session resolver produces to: a
// single replace-style redirect per routing decision.
package navigation

type Destination string

const (
	Onboarding        Destination = "onboarding"
	Login             Destination = "login"
	Signup            Destination = "signup"
	RoleSelection     Destination = "role-selection"
	ClientHome        Destination = "client-home"
	CaregiverSchedule Destination = "caregiver-schedule"
	AdminHome         Destination = "admin-home"
)

// Navigator replaces the current navigation stack entry. Implementations must
// not stack destinations.
type Navigator interface {
	Replace(dest Destination)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(dest Destination)

func (f NavigatorFunc) Replace(dest Destination) {
	f(dest)
}
