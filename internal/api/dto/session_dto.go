package dto

// LoginRequest payload for primary login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest payload for primary account creation. Pin seeds the
// owner profile created alongside the account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Pin      string `json:"pin"`
}

// AuthResponse carries an issued bearer token. Tokens are opaque to the
// engine end to end.
type AuthResponse struct {
	Token string `json:"token"`
}

// ProfileLoginRequest payload for the profile session exchange. Pin is
// omitted for CHILD profiles.
type ProfileLoginRequest struct {
	ID  string `json:"id"`
	Pin string `json:"pin,omitempty"`
}

// ProfileRegisterRequest payload for creating a profile under the primary
// account. Pin is required unless role is CHILD.
type ProfileRegisterRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Pin  string `json:"pin,omitempty"`
}
