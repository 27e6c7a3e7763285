package api

// Scope classifies an endpoint by the token its requests must carry.
type Scope int

const (
	// ScopeNone endpoints carry no bearer token.
	ScopeNone Scope = iota
	// ScopePrimary endpoints carry the primary account token; a 401/403
	// from one proves the primary session is gone.
	ScopePrimary
	// ScopeProfile endpoints carry the active profile token; a 401/403
	// from one invalidates the profile layer only.
	ScopeProfile
	// ScopeExchange endpoints carry the primary token but their 401s mean
	// the presented profile credentials (PIN) were rejected, not that the
	// primary session died, so they never trigger an invalidation sweep.
	ScopeExchange
)

// Endpoints consumed by the engine.
const (
	EndpointLogin           = "/auth/login"
	EndpointRegister        = "/auth/register"
	EndpointLogout          = "/auth/logout"
	EndpointAccountMe       = "/auth/me"
	EndpointProfileLogin    = "/auth/subAccount/login"
	EndpointProfileMe       = "/auth/subAccount/me"
	EndpointProfileRegister = "/auth/subAccount/register"
)

// endpointScopes is the static classification table. Scope is never
// inferred at runtime; an unlisted path is sent unauthenticated.
var endpointScopes = map[string]Scope{
	EndpointLogin:           ScopeNone,
	EndpointRegister:        ScopeNone,
	EndpointLogout:          ScopePrimary,
	EndpointAccountMe:       ScopePrimary,
	EndpointProfileLogin:    ScopeExchange,
	EndpointProfileMe:       ScopeProfile,
	EndpointProfileRegister: ScopePrimary,
}

// ScopeFor returns the classified scope for a path.
func ScopeFor(path string) Scope {
	return endpointScopes[path]
}
