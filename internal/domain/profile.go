package domain

import "time"

// ProfileRole classifies a profile nested under a primary account.
type ProfileRole string

const (
	RoleOwner  ProfileRole = "OWNER"
	RoleParent ProfileRole = "PARENT"
	RoleChild  ProfileRole = "CHILD"
)

// Valid reports whether the role belongs to the closed role set.
func (r ProfileRole) Valid() bool {
	switch r {
	case RoleOwner, RoleParent, RoleChild:
		return true
	}
	return false
}

// RequiresPin reports whether entering the profile is PIN-gated.
// CHILD profiles bypass the PIN gate.
func (r ProfileRole) RequiresPin() bool {
	return r != RoleChild
}

// Profile is a sub-account operated under a primary account. Each profile
// carries its own access token once activated; OWNER and PARENT profiles are
// additionally protected by a 4-digit PIN set at creation time.
type Profile struct {
	ID            string      `json:"id"`
	AccountID     string      `json:"account_id"`
	Name          string      `json:"name"`
	Role          ProfileRole `json:"role"`
	Active        bool        `json:"active"`
	BalanceCents  int64       `json:"balance_cents,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	LastConnexion *time.Time  `json:"last_connexion,omitempty"`
}
