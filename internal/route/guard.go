// Package route maps session state to the screen the presentation layer
// must show. Decide is pure and side-effect free; callers re-evaluate it on
// every state transition and must never cache its result across them.
package route

import "github.com/spec-kit/family-session/internal/domain"

// Target identifies a navigation destination.
type Target string

const (
	TargetLogin         Target = "login"
	TargetProfilePicker Target = "profile_picker"
	TargetPinEntry      Target = "pin_entry"
	TargetChildHome     Target = "child_home"
	TargetParentHome    Target = "parent_home"
)

// Decide returns the navigation target for a session state.
func Decide(state domain.SessionState) Target {
	switch state.Phase {
	case domain.PhasePrimaryOnly:
		return TargetProfilePicker
	case domain.PhasePendingPin:
		return TargetPinEntry
	case domain.PhaseProfileActive:
		if state.ProfileRole == domain.RoleChild {
			return TargetChildHome
		}
		return TargetParentHome
	default:
		return TargetLogin
	}
}
