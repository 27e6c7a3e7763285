// Package stub embeds a minimal account service speaking the same protocol
// the engine consumes. It backs local development and the integration
// tests; the production service stays external.
package stub

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/api"
	"github.com/spec-kit/family-session/internal/api/dto"
	"github.com/spec-kit/family-session/internal/config"
	"github.com/spec-kit/family-session/internal/domain"
)

// Server is an in-memory account service.
type Server struct {
	app    *fiber.App
	logger *zap.Logger
	tokens *TokenManager
	cost   int

	mu       sync.Mutex
	accounts map[string]*accountRecord
	byEmail  map[string]string
}

type accountRecord struct {
	account      domain.Account
	passwordHash string
	pinHashes    map[string]string
}

// SeedProfile describes a profile to create alongside a seeded account.
type SeedProfile struct {
	Name string
	Role domain.ProfileRole
	Pin  string
}

// NewServer builds the stub with its routes registered.
func NewServer(cfg config.StubConfig, logger *zap.Logger) *Server {
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		logger:   logger,
		tokens:   NewTokenManager(cfg.JWTSecret, cfg.TokenTTLMinutes),
		cost:     cfg.BcryptCost,
		accounts: make(map[string]*accountRecord),
		byEmail:  make(map[string]string),
	}
	s.registerRoutes()
	return s
}

// Listen serves on the given address until the app shuts down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve accepts connections from an existing listener; tests bind to a
// random loopback port this way.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// SeedAccount creates an account with profiles and returns the account id.
func (s *Server) SeedAccount(username, email, password string, profiles []SeedProfile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAccountLocked(username, email, password, profiles)
}

func (s *Server) createAccountLocked(username, email, password string, profiles []SeedProfile) (string, error) {
	passwordHash, err := HashSecret(password, s.cost)
	if err != nil {
		return "", err
	}

	now := time.Now()
	rec := &accountRecord{
		account: domain.Account{
			ID:                 uuid.NewString(),
			Email:              email,
			Username:           username,
			PlanType:           domain.PlanFree,
			SubscriptionActive: true,
			CreatedAt:          now,
		},
		passwordHash: passwordHash,
		pinHashes:    make(map[string]string),
	}

	for _, seed := range profiles {
		if _, err := s.addProfileLocked(rec, seed); err != nil {
			return "", err
		}
	}

	s.accounts[rec.account.ID] = rec
	s.byEmail[strings.ToLower(email)] = rec.account.ID
	return rec.account.ID, nil
}

func (s *Server) addProfileLocked(rec *accountRecord, seed SeedProfile) (*domain.Profile, error) {
	profile := domain.Profile{
		ID:        uuid.NewString(),
		AccountID: rec.account.ID,
		Name:      seed.Name,
		Role:      seed.Role,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if seed.Role.RequiresPin() {
		hash, err := HashSecret(seed.Pin, s.cost)
		if err != nil {
			return nil, err
		}
		rec.pinHashes[profile.ID] = hash
	}
	rec.account.Profiles = append(rec.account.Profiles, profile)
	return &rec.account.Profiles[len(rec.account.Profiles)-1], nil
}

// registerRoutes mounts the endpoint set from the client's classification
// table, so stub and client can never drift apart on paths.
func (s *Server) registerRoutes() {
	s.app.Post(api.EndpointLogin, s.handleLogin)
	s.app.Post(api.EndpointRegister, s.handleRegister)
	s.app.Post(api.EndpointLogout, s.handleLogout)
	s.app.Get(api.EndpointAccountMe, s.handleAccountMe)
	s.app.Post(api.EndpointProfileLogin, s.handleProfileLogin)
	s.app.Get(api.EndpointProfileMe, s.handleProfileMe)
	s.app.Post(api.EndpointProfileRegister, s.handleProfileRegister)
}

// handlers ----------------------------------------------------------------

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "email and password required")
	}

	s.mu.Lock()
	rec := s.lookupByEmailLocked(req.Email)
	s.mu.Unlock()

	if rec == nil || CompareSecret(rec.passwordHash, req.Password) != nil {
		return jsonError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	}

	token, err := s.tokens.Generate(rec.account.ID, ScopePrimary, "")
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "token generation failed")
	}
	return jsonData(c, http.StatusOK, dto.AuthResponse{Token: token})
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payload")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || len(req.Pin) != 4 {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "username, email, password and a 4-digit pin required")
	}

	s.mu.Lock()
	if s.lookupByEmailLocked(req.Email) != nil {
		s.mu.Unlock()
		return jsonError(c, http.StatusConflict, "CONFLICT", "email already registered")
	}
	accountID, err := s.createAccountLocked(req.Username, req.Email, req.Password, []SeedProfile{
		{Name: req.Username, Role: domain.RoleOwner, Pin: req.Pin},
	})
	s.mu.Unlock()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "account creation failed")
	}

	token, err := s.tokens.Generate(accountID, ScopePrimary, "")
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "token generation failed")
	}
	return jsonData(c, http.StatusCreated, dto.AuthResponse{Token: token})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if _, err := s.primaryCaller(c); err != nil {
		return err
	}
	// stateless tokens: logout acknowledges and lets the client clear
	return jsonData(c, http.StatusOK, fiber.Map{"ok": true})
}

func (s *Server) handleAccountMe(c *fiber.Ctx) error {
	rec, err := s.primaryCaller(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := time.Now()
	rec.account.LastConnexion = &now
	snapshot := rec.account
	snapshot.Profiles = append([]domain.Profile(nil), rec.account.Profiles...)
	s.mu.Unlock()

	return jsonData(c, http.StatusOK, snapshot)
}

func (s *Server) handleProfileLogin(c *fiber.Ctx) error {
	rec, err := s.primaryCaller(c)
	if err != nil {
		return err
	}

	var req dto.ProfileLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payload")
	}

	s.mu.Lock()
	profile, ok := rec.account.ProfileByID(req.ID)
	var pinHash string
	if ok {
		pinHash = rec.pinHashes[profile.ID]
	}
	s.mu.Unlock()

	if !ok {
		return jsonError(c, http.StatusNotFound, "NOT_FOUND", "profile not found")
	}
	if profile.Role.RequiresPin() {
		if req.Pin == "" || CompareSecret(pinHash, req.Pin) != nil {
			return jsonError(c, http.StatusUnauthorized, "INCORRECT_PIN", "incorrect pin")
		}
	}

	token, err := s.tokens.Generate(rec.account.ID, ScopeProfile, profile.ID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "token generation failed")
	}
	return jsonData(c, http.StatusOK, dto.AuthResponse{Token: token})
}

func (s *Server) handleProfileMe(c *fiber.Ctx) error {
	claims, err := s.caller(c, ScopeProfile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rec := s.accounts[claims.AccountID]
	var snapshot *domain.Profile
	if rec != nil {
		if profile, ok := rec.account.ProfileByID(claims.ProfileID); ok {
			clone := *profile
			snapshot = &clone
		}
	}
	s.mu.Unlock()

	if snapshot == nil {
		return jsonError(c, http.StatusUnauthorized, "UNAUTHORIZED", "profile session not found")
	}
	return jsonData(c, http.StatusOK, snapshot)
}

func (s *Server) handleProfileRegister(c *fiber.Ctx) error {
	rec, err := s.primaryCaller(c)
	if err != nil {
		return err
	}

	var req dto.ProfileRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payload")
	}
	role := domain.ProfileRole(req.Role)
	if req.Name == "" || !role.Valid() {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "name and a valid role required")
	}
	if role.RequiresPin() && len(req.Pin) != 4 {
		return jsonError(c, http.StatusBadRequest, "VALIDATION_FAILED", "a 4-digit pin is required for this role")
	}

	s.mu.Lock()
	profile, err := s.addProfileLocked(rec, SeedProfile{Name: req.Name, Role: role, Pin: req.Pin})
	s.mu.Unlock()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "profile creation failed")
	}

	return jsonData(c, http.StatusCreated, profile)
}

// helpers -----------------------------------------------------------------

func (s *Server) primaryCaller(c *fiber.Ctx) (*accountRecord, error) {
	claims, err := s.caller(c, ScopePrimary)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	rec := s.accounts[claims.AccountID]
	s.mu.Unlock()
	if rec == nil {
		return nil, jsonError(c, http.StatusUnauthorized, "UNAUTHORIZED", "account not found")
	}
	return rec, nil
}

func (s *Server) caller(c *fiber.Ctx, scope TokenScope) (*Claims, error) {
	header := c.Get("Authorization")
	if header == "" {
		return nil, jsonError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, jsonError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header")
	}
	claims, err := s.tokens.Parse(parts[1])
	if err != nil {
		return nil, jsonError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	}
	if claims.Scope != scope {
		return nil, jsonError(c, http.StatusForbidden, "FORBIDDEN", "token scope mismatch")
	}
	return claims, nil
}

func (s *Server) lookupByEmailLocked(email string) *accountRecord {
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil
	}
	return s.accounts[id]
}

// jsonData wraps a success payload in the envelope the client decodes.
func jsonData(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"data": data})
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": fiber.Map{
		"code":    code,
		"message": message,
	}})
}
