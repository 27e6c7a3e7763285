package stub

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenScope distinguishes primary-account tokens from profile tokens.
type TokenScope string

const (
	ScopePrimary TokenScope = "primary"
	ScopeProfile TokenScope = "profile"
)

// TokenManager handles issuing and validating JWT tokens for the stub.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes the JWT payload.
type Claims struct {
	AccountID string     `json:"account_id"`
	Scope     TokenScope `json:"scope"`
	ProfileID string     `json:"profile_id,omitempty"`
	jwt.RegisteredClaims
}

// Generate builds and signs a token for the account, optionally bound to a
// profile.
func (tm *TokenManager) Generate(accountID string, scope TokenScope, profileID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		Scope:     scope,
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Parse validates and returns claims.
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
