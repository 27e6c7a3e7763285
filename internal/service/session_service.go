// Package service implements the dual-layer session engine: the primary
// account session and, nested inside it, the active profile session.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/api"
	"github.com/spec-kit/family-session/internal/api/dto"
	"github.com/spec-kit/family-session/internal/domain"
	"github.com/spec-kit/family-session/internal/events"
	"github.com/spec-kit/family-session/internal/store"
	"github.com/spec-kit/family-session/pkg/util"
)

// Dependencies encapsulates collaborator requirements for the session service.
type Dependencies struct {
	Creds      store.Store
	Client     *api.Client
	Dispatcher events.Dispatcher
}

// SessionService owns the primary session lifecycle: login, logout and
// periodic revalidation. It is the single writer for session state and the
// credential store; every mutating path funnels through its mutex, and a
// generation counter makes responses that arrive after a clear no-ops.
type SessionService struct {
	logger     *zap.Logger
	creds      store.Store
	client     *api.Client
	dispatcher events.Dispatcher

	mu             sync.Mutex
	generation     uint64
	disposed       bool
	authenticating bool
	primaryToken   string
	account        *domain.Account

	// profile layer, driven by ProfileService under the same mutex
	pendingProfile *domain.Profile
	activeProfile  *domain.Profile
}

// NewSessionService builds the service and attaches it to the client as the
// invalidation sink.
func NewSessionService(logger *zap.Logger, deps Dependencies) *SessionService {
	s := &SessionService{
		logger:     logger,
		creds:      deps.Creds,
		client:     deps.Client,
		dispatcher: deps.Dispatcher,
	}
	deps.Client.SetInvalidationSink(s)
	return s
}

// Init restores persisted session state. It never touches the network, so
// a cached snapshot keeps working offline until the next revalidation. A
// half-restorable profile layer (token without a resolvable profile) is
// cleared rather than trusted.
func (s *SessionService) Init(ctx context.Context) error {
	s.mu.Lock()

	token, ok := s.loadOrAbsent(ctx, store.KindPrimaryToken)
	if !ok {
		s.mu.Unlock()
		s.publish(ctx, events.EventSessionStateChanged, nil)
		return nil
	}
	s.primaryToken = token

	if raw, ok := s.loadOrAbsent(ctx, store.KindCachedAccount); ok {
		var account domain.Account
		if err := json.Unmarshal([]byte(raw), &account); err != nil {
			s.logger.Warn("cached account snapshot unreadable", zap.Error(err))
		} else {
			s.account = &account
		}
	}

	profileToken, hasToken := s.loadOrAbsent(ctx, store.KindProfileToken)
	selectedID, hasID := s.loadOrAbsent(ctx, store.KindSelectedProfileID)
	if hasToken && profileToken != "" && hasID {
		profile := s.restoreProfile(ctx, selectedID)
		if profile != nil {
			s.activeProfile = profile
		} else {
			s.logger.Warn("stored profile session unresolvable, clearing profile layer",
				zap.String("profile_id", selectedID))
			s.clearProfileLocked(ctx)
		}
	}

	s.mu.Unlock()
	s.publish(ctx, events.EventSessionStateChanged, nil)
	return nil
}

// Dispose stops the service: subsequent operations fail with a
// precondition error. It does not clear credentials; a disposed service is
// a shut-down one, not a logged-out one.
func (s *SessionService) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}

// Login exchanges primary credentials for a token, persists it and caches
// the account snapshot. Credential rejections surface as
// INVALID_CREDENTIALS; network failures as TRANSPORT_ERROR, never retried
// silently.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.primaryToken != "" {
		s.mu.Unlock()
		return nil, util.NewPrecondition("already authenticated")
	}
	if s.authenticating {
		s.mu.Unlock()
		return nil, util.NewPrecondition("login already in progress")
	}
	s.authenticating = true
	gen := s.generation
	s.mu.Unlock()

	token, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.endAuthenticating()
		return nil, err
	}

	return s.completeLogin(ctx, gen, token)
}

// Register creates a primary account (and its owner profile, gated by the
// given pin) and opens the first session.
func (s *SessionService) Register(ctx context.Context, username, email, password, pinCode string) (*domain.Account, error) {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.primaryToken != "" {
		s.mu.Unlock()
		return nil, util.NewPrecondition("already authenticated")
	}
	if s.authenticating {
		s.mu.Unlock()
		return nil, util.NewPrecondition("login already in progress")
	}
	s.authenticating = true
	gen := s.generation
	s.mu.Unlock()

	token, err := s.client.Register(ctx, dto.RegisterRequest{Username: username, Email: email, Password: password, Pin: pinCode})
	if err != nil {
		s.endAuthenticating()
		return nil, err
	}

	return s.completeLogin(ctx, gen, token)
}

func (s *SessionService) completeLogin(ctx context.Context, gen uint64, token string) (*domain.Account, error) {
	s.mu.Lock()
	if s.disposed || s.generation != gen {
		s.mu.Unlock()
		s.endAuthenticating()
		return nil, util.NewPrecondition("session changed during login")
	}
	if err := s.creds.Save(ctx, store.KindPrimaryToken, token); err != nil {
		s.authenticating = false
		s.mu.Unlock()
		return nil, util.NewStorageFailure(err)
	}
	s.primaryToken = token
	s.mu.Unlock()

	account, err := s.client.FetchAccount(ctx)
	if err != nil {
		// roll the half-open session back so a retry starts clean
		s.clearPrimary(ctx, false)
		s.endAuthenticating()
		return nil, err
	}

	s.mu.Lock()
	if s.disposed || s.generation != gen {
		s.mu.Unlock()
		s.endAuthenticating()
		return nil, util.NewPrecondition("session changed during login")
	}
	s.cacheAccountLocked(ctx, account)
	s.authenticating = false
	s.mu.Unlock()

	s.publish(ctx, events.EventPrimaryOpened, nil)
	s.publish(ctx, events.EventSessionStateChanged, nil)
	return account, nil
}

// Logout notifies the server best-effort, then unconditionally clears every
// credential kind. The local clear runs even when the server call fails: a
// user-initiated logout must never leave stale credentials behind.
func (s *SessionService) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		s.logger.Warn("server logout failed, clearing locally anyway", zap.Error(err))
	}
	s.clearPrimary(ctx, false)
	s.publish(ctx, events.EventPrimaryClosed, nil)
	s.publish(ctx, events.EventSessionStateChanged, nil)
	return nil
}

// Revalidate re-fetches the account snapshot with the stored token. A
// 401/403 is proof of invalidation and triggers the full clear (via the
// client's sink path); a transport error leaves the session untouched, so
// a flaky network cannot log the user out.
func (s *SessionService) Revalidate(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed || s.primaryToken == "" {
		s.mu.Unlock()
		return nil
	}
	gen := s.generation
	s.mu.Unlock()

	account, err := s.client.FetchAccount(ctx)
	if err != nil {
		if errors.Is(err, util.ErrTokenInvalidated) {
			// the sink already swept the session
			return nil
		}
		s.logger.Warn("revalidation skipped", zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.disposed || s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.cacheAccountLocked(ctx, account)
	s.mu.Unlock()
	return nil
}

// Snapshot derives the current session state. Derived on every call, never
// cached: stale routing is a correctness bug.
func (s *SessionService) Snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Account returns the cached primary account snapshot.
func (s *SessionService) Account() *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// ActiveProfile returns the cached snapshot of the active profile.
func (s *SessionService) ActiveProfile() *domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProfile
}

// InvalidatePrimary implements api.InvalidationSink: a 401/403 from a
// primary-scoped endpoint is equivalent to logout, minus the server notify.
func (s *SessionService) InvalidatePrimary(ctx context.Context) {
	s.clearPrimary(ctx, true)
	s.publish(ctx, events.EventTokenInvalidated, events.TokenInvalidatedPayload{Scope: "primary"})
	s.publish(ctx, events.EventSessionStateChanged, nil)
}

// InvalidateProfile implements api.InvalidationSink: a 401/403 from a
// profile-scoped endpoint drops only the profile layer, the primary
// session stays intact.
func (s *SessionService) InvalidateProfile(ctx context.Context) {
	s.mu.Lock()
	s.clearProfileLocked(ctx)
	s.mu.Unlock()
	s.publish(ctx, events.EventTokenInvalidated, events.TokenInvalidatedPayload{Scope: "profile"})
	s.publish(ctx, events.EventSessionStateChanged, nil)
}

// internals ---------------------------------------------------------------

func (s *SessionService) guardLocked() error {
	if s.disposed {
		return util.NewPrecondition("session service disposed")
	}
	return nil
}

func (s *SessionService) endAuthenticating() {
	s.mu.Lock()
	s.authenticating = false
	s.mu.Unlock()
}

func (s *SessionService) snapshotLocked() domain.SessionState {
	switch {
	case s.primaryToken == "":
		return domain.SessionState{Phase: domain.PhaseUnauthenticated}
	case s.activeProfile != nil:
		return domain.SessionState{
			Phase:             domain.PhaseProfileActive,
			SelectedProfileID: s.activeProfile.ID,
			ProfileRole:       s.activeProfile.Role,
		}
	case s.pendingProfile != nil:
		return domain.SessionState{
			Phase:             domain.PhasePendingPin,
			SelectedProfileID: s.pendingProfile.ID,
			ProfileRole:       s.pendingProfile.Role,
		}
	default:
		return domain.SessionState{Phase: domain.PhasePrimaryOnly}
	}
}

// clearPrimary removes every credential kind and resets both session
// layers. Storage failures are logged but never stop the in-memory reset:
// failing open to logged-out beats trusting unverifiable state.
func (s *SessionService) clearPrimary(ctx context.Context, invalidated bool) {
	s.mu.Lock()
	if err := s.creds.ClearAll(ctx); err != nil {
		s.logger.Error("credential clear failed", zap.Error(err))
	}
	s.generation++
	s.primaryToken = ""
	s.account = nil
	s.pendingProfile = nil
	s.activeProfile = nil
	s.mu.Unlock()

	if invalidated {
		s.logger.Info("primary session invalidated")
	}
}

// clearProfileLocked removes the profile-scoped kinds as one batch and
// resets the profile layer. Caller holds the mutex.
func (s *SessionService) clearProfileLocked(ctx context.Context) {
	if err := s.creds.Clear(ctx, store.ProfileKinds()...); err != nil {
		s.logger.Error("profile credential clear failed", zap.Error(err))
	}
	s.generation++
	s.pendingProfile = nil
	s.activeProfile = nil
}

func (s *SessionService) cacheAccountLocked(ctx context.Context, account *domain.Account) {
	s.account = account
	raw, err := json.Marshal(account)
	if err != nil {
		s.logger.Error("encode account snapshot", zap.Error(err))
		return
	}
	if err := s.creds.Save(ctx, store.KindCachedAccount, string(raw)); err != nil {
		s.logger.Warn("persist account snapshot failed", zap.Error(err))
	}
}

// loadOrAbsent reads a kind, downgrading storage failures to absence.
// Caller holds the mutex.
func (s *SessionService) loadOrAbsent(ctx context.Context, kind store.Kind) (string, bool) {
	value, ok, err := s.creds.Load(ctx, kind)
	if err != nil {
		s.logger.Warn("credential load failed, treating as absent",
			zap.String("kind", string(kind)), zap.Error(err))
		return "", false
	}
	return value, ok
}

// restoreProfile resolves the selected profile from the cached profile
// snapshot, falling back to the account's profile list.
func (s *SessionService) restoreProfile(ctx context.Context, selectedID string) *domain.Profile {
	if raw, ok := s.loadOrAbsent(ctx, store.KindCachedProfile); ok {
		var profile domain.Profile
		if err := json.Unmarshal([]byte(raw), &profile); err == nil && profile.ID == selectedID {
			return &profile
		}
	}
	if profile, ok := s.account.ProfileByID(selectedID); ok {
		clone := *profile
		return &clone
	}
	return nil
}

func (s *SessionService) publish(ctx context.Context, eventType events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		State:     s.Snapshot(),
		Payload:   payload,
	})
}
