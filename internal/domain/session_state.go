package domain

// SessionPhase is the externally observable position in the dual-layer
// session state machine.
type SessionPhase string

const (
	// PhaseUnauthenticated means no valid primary token is held.
	PhaseUnauthenticated SessionPhase = "unauthenticated"
	// PhasePrimaryOnly means the primary account is authenticated and no
	// profile has been activated.
	PhasePrimaryOnly SessionPhase = "primary_only"
	// PhasePendingPin means a PIN-gated profile was selected and the PIN
	// gate has not been passed yet.
	PhasePendingPin SessionPhase = "pending_pin"
	// PhaseProfileActive means a profile token is held for the selected
	// profile.
	PhaseProfileActive SessionPhase = "profile_active"
)

// SessionState is a derived snapshot of the session machine. It is computed
// from the presence of the primary and profile tokens plus the selected
// profile; it is never persisted on its own.
type SessionState struct {
	Phase             SessionPhase
	SelectedProfileID string
	ProfileRole       ProfileRole
}
