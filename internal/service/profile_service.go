package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/api/dto"
	"github.com/spec-kit/family-session/internal/domain"
	"github.com/spec-kit/family-session/internal/events"
	"github.com/spec-kit/family-session/internal/pin"
	"github.com/spec-kit/family-session/internal/store"
	"github.com/spec-kit/family-session/pkg/util"
)

// ProfileService drives the nested profile session: selecting a profile,
// passing the PIN gate, switching and exiting. It shares the session
// service's state and write discipline; it is not reachable from an
// unauthenticated session.
type ProfileService struct {
	session  *SessionService
	logger   *zap.Logger
	verifier *pin.Verifier

	codeMu    sync.Mutex
	readyCode string
	codeReady bool
}

// NewProfileService builds the profile layer on top of a session service.
func NewProfileService(session *SessionService, logger *zap.Logger) *ProfileService {
	p := &ProfileService{session: session, logger: logger}
	p.verifier = pin.NewVerifier(p.collectCode, nil)
	return p
}

// Verifier exposes the PIN collector for presentation layers that feed
// digits one keystroke at a time.
func (p *ProfileService) Verifier() *pin.Verifier {
	return p.verifier
}

// Select activates the profile with the given id. Any previous profile
// session is invalidated first, so its token can never be replayed while
// the new selection is in flight or parked at the PIN gate. CHILD profiles
// exchange for a profile token immediately; PIN-gated roles move to
// PendingPin and defer the exchange until the PIN is confirmed.
func (p *ProfileService) Select(ctx context.Context, profileID string) error {
	s := p.session

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.primaryToken == "" {
		s.mu.Unlock()
		return util.NewPrecondition("no primary session")
	}
	found, ok := s.account.ProfileByID(profileID)
	if !ok {
		s.mu.Unlock()
		return util.NewFlowError("PROFILE_NOT_FOUND", "profile not found", map[string]any{"profile_id": profileID})
	}
	profile := *found
	if s.activeProfile != nil || s.pendingProfile != nil {
		s.clearProfileLocked(ctx)
	}
	gen := s.generation

	if profile.Role.RequiresPin() {
		s.pendingProfile = &profile
		s.activeProfile = nil
		s.mu.Unlock()
		p.verifier.Reset()
		s.publish(ctx, events.EventSessionStateChanged, nil)
		return nil
	}
	s.mu.Unlock()

	token, err := s.client.ProfileLogin(ctx, profile.ID, "")
	if err != nil {
		return err
	}
	return p.activate(ctx, gen, profile, token)
}

// ConfirmPin feeds the entered digits through the PIN verifier and, once a
// full code auto-submits, performs the deferred token exchange. Each call
// is one complete entry attempt: the verifier starts empty, so digits left
// over from an earlier incomplete call never splice into this code. A
// rejected PIN resets the collected digits and surfaces INCORRECT_PIN;
// everything else about the session stays put. Valid only in PendingPin.
func (p *ProfileService) ConfirmPin(ctx context.Context, digits string) error {
	s := p.session

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.pendingProfile == nil {
		s.mu.Unlock()
		return util.NewPrecondition("no profile awaiting pin")
	}
	s.mu.Unlock()

	p.verifier.Reset()
	for i := 0; i < len(digits); i++ {
		done, err := p.EnterDigit(ctx, digits[i])
		if done {
			return err
		}
	}
	return util.NewPrecondition("pin incomplete")
}

// EnterDigit pushes a single keystroke into the verifier. It reports
// whether the code auto-submitted, and if so the outcome of the exchange.
// Non-digit input and digits beyond the code length are ignored.
func (p *ProfileService) EnterDigit(ctx context.Context, ch byte) (bool, error) {
	p.verifier.Push(ch)

	p.codeMu.Lock()
	if !p.codeReady {
		p.codeMu.Unlock()
		return false, nil
	}
	code := p.readyCode
	p.codeReady = false
	p.readyCode = ""
	p.codeMu.Unlock()

	return true, p.exchangeWithPin(ctx, code)
}

// Switch discards the current profile token and re-runs selection for the
// target profile. The old token is removed before anything else happens so
// it can never be replayed, even if the new selection stops at the PIN gate.
func (p *ProfileService) Switch(ctx context.Context, profileID string) error {
	s := p.session

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.primaryToken == "" {
		s.mu.Unlock()
		return util.NewPrecondition("no primary session")
	}
	s.clearProfileLocked(ctx)
	s.mu.Unlock()

	return p.Select(ctx, profileID)
}

// Exit clears the profile layer only, returning to the profile list with
// the primary session preserved.
func (p *ProfileService) Exit(ctx context.Context) error {
	s := p.session

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.clearProfileLocked(ctx)
	s.mu.Unlock()

	p.verifier.Reset()
	s.publish(ctx, events.EventProfileExited, nil)
	s.publish(ctx, events.EventSessionStateChanged, nil)
	return nil
}

// CreateProfile registers a new profile under the primary account and
// refreshes the cached account snapshot so the profile is immediately
// selectable. PIN-gated roles require a 4-digit pin.
func (p *ProfileService) CreateProfile(ctx context.Context, name string, role domain.ProfileRole, pinCode string) (*domain.Profile, error) {
	s := p.session

	if !role.Valid() {
		return nil, util.NewFlowError("INVALID_ROLE", "unknown profile role", map[string]any{"role": string(role)})
	}
	if role.RequiresPin() && len(pinCode) != pin.CodeLength {
		return nil, util.NewPrecondition("a 4-digit pin is required for this role")
	}

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.primaryToken == "" {
		s.mu.Unlock()
		return nil, util.NewPrecondition("no primary session")
	}
	gen := s.generation
	s.mu.Unlock()

	profile, err := s.client.RegisterProfile(ctx, dto.ProfileRegisterRequest{
		Name: name,
		Role: string(role),
		Pin:  pinCode,
	})
	if err != nil {
		return nil, err
	}

	account, err := s.client.FetchAccount(ctx)
	if err != nil {
		p.logger.Warn("account refresh after profile creation failed", zap.Error(err))
		return profile, nil
	}

	s.mu.Lock()
	if !s.disposed && s.generation == gen {
		s.cacheAccountLocked(ctx, account)
	}
	s.mu.Unlock()
	return profile, nil
}

// internals ---------------------------------------------------------------

// collectCode is the verifier's auto-submit callback.
func (p *ProfileService) collectCode(code string) {
	p.codeMu.Lock()
	p.readyCode = code
	p.codeReady = true
	p.codeMu.Unlock()
}

func (p *ProfileService) exchangeWithPin(ctx context.Context, code string) error {
	s := p.session

	s.mu.Lock()
	if s.pendingProfile == nil {
		s.mu.Unlock()
		p.verifier.Reset()
		return util.NewPrecondition("no profile awaiting pin")
	}
	profile := *s.pendingProfile
	gen := s.generation
	s.mu.Unlock()

	token, err := s.client.ProfileLogin(ctx, profile.ID, code)
	if err != nil {
		if errors.Is(err, util.ErrIncorrectPin) {
			p.verifier.Reject()
			return err
		}
		p.verifier.Reset()
		return err
	}

	if err := p.activate(ctx, gen, profile, token); err != nil {
		return err
	}
	p.verifier.Reset()
	return nil
}

// activate persists the exchanged profile token, overwriting any previous
// one, then caches the profile snapshot and flips to ProfileActive.
func (p *ProfileService) activate(ctx context.Context, gen uint64, profile domain.Profile, token string) error {
	s := p.session

	s.mu.Lock()
	if s.disposed || s.generation != gen {
		s.mu.Unlock()
		return util.NewPrecondition("session changed during profile activation")
	}
	if err := s.creds.Save(ctx, store.KindProfileToken, token); err != nil {
		s.mu.Unlock()
		return util.NewStorageFailure(err)
	}
	if err := s.creds.Save(ctx, store.KindSelectedProfileID, profile.ID); err != nil {
		s.mu.Unlock()
		return util.NewStorageFailure(err)
	}
	p.cacheProfileLocked(ctx, &profile)
	s.pendingProfile = nil
	s.activeProfile = &profile
	s.mu.Unlock()

	// fetch the authoritative snapshot with the new token; the list entry
	// stays as fallback when the fetch fails
	if fetched, err := s.client.FetchProfile(ctx); err != nil {
		p.logger.Warn("profile snapshot fetch failed", zap.Error(err))
	} else {
		s.mu.Lock()
		if !s.disposed && s.generation == gen && s.activeProfile != nil && s.activeProfile.ID == fetched.ID {
			p.cacheProfileLocked(ctx, fetched)
			s.activeProfile = fetched
		}
		s.mu.Unlock()
	}

	s.publish(ctx, events.EventProfileEntered, events.ProfileEnteredPayload{ProfileID: profile.ID, Role: profile.Role})
	s.publish(ctx, events.EventSessionStateChanged, nil)
	return nil
}

func (p *ProfileService) cacheProfileLocked(ctx context.Context, profile *domain.Profile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		p.logger.Error("encode profile snapshot", zap.Error(err))
		return
	}
	if err := p.session.creds.Save(ctx, store.KindCachedProfile, string(raw)); err != nil {
		p.logger.Warn("persist profile snapshot failed", zap.Error(err))
	}
}
