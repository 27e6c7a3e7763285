package domain

import "time"

// PlanType enumerates subscription tiers for a primary account.
type PlanType string

const (
	PlanFree    PlanType = "FREE"
	PlanPremium PlanType = "PREMIUM"
)

// Account is the primary account holder: the identity that authenticates
// with email and password and owns every nested profile.
type Account struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	PlanType           PlanType   `json:"plan_type"`
	SubscriptionActive bool       `json:"subscription_active"`
	CreatedAt          time.Time  `json:"created_at"`
	LastConnexion      *time.Time `json:"last_connexion,omitempty"`
	Profiles           []Profile  `json:"profiles"`
}

// ProfileByID returns the owned profile with the given id.
func (a *Account) ProfileByID(id string) (*Profile, bool) {
	if a == nil {
		return nil, false
	}
	for i := range a.Profiles {
		if a.Profiles[i].ID == id {
			return &a.Profiles[i], true
		}
	}
	return nil, false
}
