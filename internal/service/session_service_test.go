package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/api"
	"github.com/spec-kit/family-session/internal/config"
	"github.com/spec-kit/family-session/internal/domain"
	"github.com/spec-kit/family-session/internal/events"
	"github.com/spec-kit/family-session/internal/observability"
	"github.com/spec-kit/family-session/internal/route"
	"github.com/spec-kit/family-session/internal/service"
	"github.com/spec-kit/family-session/internal/store"
	"github.com/spec-kit/family-session/pkg/util"
)

// fakeBackend is a scriptable account service speaking the envelope
// protocol, with switches to force scoped 401s.
type fakeBackend struct {
	mu            sync.Mutex
	password      string
	account       domain.Account
	pins          map[string]string
	primaryToken  string
	rejectPrimary bool
	rejectProfile bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		password:     "hunter2",
		primaryToken: "primary-tok",
		account: domain.Account{
			ID:       "acct-1",
			Email:    "parent@example.com",
			Username: "parent",
			PlanType: domain.PlanFree,
			Profiles: []domain.Profile{
				{ID: "c1", AccountID: "acct-1", Name: "Kiddo", Role: domain.RoleChild, Active: true, BalanceCents: 1500},
				{ID: "p1", AccountID: "acct-1", Name: "Mom", Role: domain.RoleParent, Active: true},
				{ID: "o1", AccountID: "acct-1", Name: "Dad", Role: domain.RoleOwner, Active: true},
			},
		},
		pins: map[string]string{"p1": "1234", "o1": "4321"},
	}
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case api.EndpointLogin:
			var req struct{ Email, Password string }
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != f.password {
				writeErr(w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
				return
			}
			writeOK(w, map[string]string{"token": f.primaryToken})

		case api.EndpointLogout:
			writeOK(w, map[string]bool{"ok": true})

		case api.EndpointAccountMe:
			if f.rejectPrimary || r.Header.Get("Authorization") != "Bearer "+f.primaryToken {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED")
				return
			}
			writeOK(w, f.account)

		case api.EndpointProfileLogin:
			var req struct{ ID, Pin string }
			_ = json.NewDecoder(r.Body).Decode(&req)
			profile, ok := f.account.ProfileByID(req.ID)
			if !ok {
				writeErr(w, http.StatusNotFound, "NOT_FOUND")
				return
			}
			if profile.Role.RequiresPin() && req.Pin != f.pins[req.ID] {
				writeErr(w, http.StatusUnauthorized, "INCORRECT_PIN")
				return
			}
			writeOK(w, map[string]string{"token": "profile-tok-" + req.ID})

		case api.EndpointProfileMe:
			auth := r.Header.Get("Authorization")
			if f.rejectProfile || !strings.HasPrefix(auth, "Bearer profile-tok-") {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED")
				return
			}
			id := strings.TrimPrefix(auth, "Bearer profile-tok-")
			profile, ok := f.account.ProfileByID(id)
			if !ok {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED")
				return
			}
			writeOK(w, profile)

		case api.EndpointProfileRegister:
			if f.rejectPrimary {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED")
				return
			}
			var req struct{ Name, Role, Pin string }
			_ = json.NewDecoder(r.Body).Decode(&req)
			profile := domain.Profile{
				ID:        "new-" + req.Name,
				AccountID: f.account.ID,
				Name:      req.Name,
				Role:      domain.ProfileRole(req.Role),
				Active:    true,
			}
			f.account.Profiles = append(f.account.Profiles, profile)
			if req.Pin != "" {
				f.pins[profile.ID] = req.Pin
			}
			writeOK(w, profile)

		default:
			writeErr(w, http.StatusNotFound, "NOT_FOUND")
		}
	})
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": code},
	})
}

type harness struct {
	backend  *fakeBackend
	server   *httptest.Server
	creds    *store.MemoryStore
	client   *api.Client
	sessions *service.SessionService
	profiles *service.ProfileService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	h := &harness{backend: backend, server: server, creds: store.NewMemoryStore()}
	h.client = api.NewClient(
		config.APIConfig{BaseURL: server.URL, TimeoutSeconds: 5},
		h.creds,
		zap.NewNop(),
		observability.NewMetrics(),
	)
	h.sessions = service.NewSessionService(zap.NewNop(), service.Dependencies{
		Creds:      h.creds,
		Client:     h.client,
		Dispatcher: events.NewInMemoryDispatcher(zap.NewNop()),
	})
	h.profiles = service.NewProfileService(h.sessions, zap.NewNop())
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if _, err := h.sessions.Login(context.Background(), "parent@example.com", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func (h *harness) mustStored(t *testing.T, kind store.Kind) string {
	t.Helper()
	value, ok, err := h.creds.Load(context.Background(), kind)
	if err != nil || !ok {
		t.Fatalf("kind %s missing (ok=%v err=%v)", kind, ok, err)
	}
	return value
}

func (h *harness) mustAbsent(t *testing.T, kinds ...store.Kind) {
	t.Helper()
	for _, kind := range kinds {
		if _, ok, _ := h.creds.Load(context.Background(), kind); ok {
			t.Fatalf("kind %s unexpectedly present", kind)
		}
	}
}

func (h *harness) target() route.Target {
	return route.Decide(h.sessions.Snapshot())
}

func TestLoginWrongPasswordStaysLoggedOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.sessions.Login(context.Background(), "parent@example.com", "nope")
	if !errors.Is(err, util.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want INVALID_CREDENTIALS", err)
	}
	if got := h.target(); got != route.TargetLogin {
		t.Fatalf("route = %q, want login screen", got)
	}
	h.mustAbsent(t, store.AllKinds()...)
}

func TestLoginLandsOnProfilePicker(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.login(t)
	if got := h.target(); got != route.TargetProfilePicker {
		t.Fatalf("route = %q, want profile picker", got)
	}
	if got := h.mustStored(t, store.KindPrimaryToken); got != "primary-tok" {
		t.Fatalf("stored primary token = %q", got)
	}
	h.mustStored(t, store.KindCachedAccount)
}

func TestSelectChildProfileGoesStraightHome(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}
	if got := h.target(); got != route.TargetChildHome {
		t.Fatalf("route = %q, want child home", got)
	}
	if got := h.mustStored(t, store.KindSelectedProfileID); got != "c1" {
		t.Fatalf("selected profile id = %q, want c1", got)
	}
	if got := h.mustStored(t, store.KindProfileToken); got != "profile-tok-c1" {
		t.Fatalf("profile token = %q", got)
	}
}

func TestPinGatedSelectionNeverActivatesWithoutPin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "p1"); err != nil {
		t.Fatalf("Select(p1) error = %v", err)
	}
	if got := h.target(); got != route.TargetPinEntry {
		t.Fatalf("route = %q, want pin entry", got)
	}
	h.mustAbsent(t, store.KindProfileToken)
}

func TestWrongThenRightPin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "p1"); err != nil {
		t.Fatalf("Select(p1) error = %v", err)
	}

	err := h.profiles.ConfirmPin(ctx, "9999")
	if !errors.Is(err, util.ErrIncorrectPin) {
		t.Fatalf("ConfirmPin(9999) error = %v, want INCORRECT_PIN", err)
	}
	if got := h.target(); got != route.TargetPinEntry {
		t.Fatalf("route after wrong pin = %q, want pin entry", got)
	}
	if got := h.profiles.Verifier().Entered(); got != 0 {
		t.Fatalf("digits after wrong pin = %d, want 0", got)
	}
	h.mustAbsent(t, store.KindProfileToken)

	if err := h.profiles.ConfirmPin(ctx, "1234"); err != nil {
		t.Fatalf("ConfirmPin(1234) error = %v", err)
	}
	if got := h.target(); got != route.TargetParentHome {
		t.Fatalf("route after right pin = %q, want parent home", got)
	}
	if got := h.mustStored(t, store.KindProfileToken); got != "profile-tok-p1" {
		t.Fatalf("profile token = %q", got)
	}
}

func TestLogoutClearsEveryKind(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}
	if err := h.sessions.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	h.mustAbsent(t, store.AllKinds()...)
	if got := h.target(); got != route.TargetLogin {
		t.Fatalf("route after logout = %q, want login screen", got)
	}
}

func TestProfileScoped401ClearsProfileLayerOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}

	h.backend.mu.Lock()
	h.backend.rejectProfile = true
	h.backend.mu.Unlock()

	_, err := h.client.FetchProfile(ctx)
	if !errors.Is(err, util.ErrTokenInvalidated) {
		t.Fatalf("FetchProfile() error = %v, want TOKEN_INVALIDATED", err)
	}

	h.mustAbsent(t, store.ProfileKinds()...)
	h.mustStored(t, store.KindPrimaryToken)
	h.mustStored(t, store.KindCachedAccount)
	if got := h.target(); got != route.TargetProfilePicker {
		t.Fatalf("route = %q, want profile picker", got)
	}
}

func TestPrimaryScoped401IsEquivalentToLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}

	h.backend.mu.Lock()
	h.backend.rejectPrimary = true
	h.backend.mu.Unlock()

	if err := h.sessions.Revalidate(ctx); err != nil {
		t.Fatalf("Revalidate() error = %v, invalidation should be silent", err)
	}

	h.mustAbsent(t, store.AllKinds()...)
	if got := h.target(); got != route.TargetLogin {
		t.Fatalf("route = %q, want login screen", got)
	}
}

func TestRevalidateTransportErrorKeepsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	h.server.Close()

	err := h.sessions.Revalidate(ctx)
	if !errors.Is(err, util.ErrTransport) {
		t.Fatalf("Revalidate() error = %v, want TRANSPORT_ERROR", err)
	}

	h.mustStored(t, store.KindPrimaryToken)
	if got := h.target(); got != route.TargetProfilePicker {
		t.Fatalf("route = %q, flaky network must not log the user out", got)
	}
}

func TestRevalidateOverwritesSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)

	h.backend.mu.Lock()
	h.backend.account.Username = "renamed"
	h.backend.mu.Unlock()

	if err := h.sessions.Revalidate(ctx); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}
	if got := h.sessions.Account().Username; got != "renamed" {
		t.Fatalf("cached username = %q, want refreshed snapshot", got)
	}
}

func TestSwitchRemovesOldTokenBeforePinGate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}
	h.mustStored(t, store.KindProfileToken)

	// switching to a PIN-gated profile parks at the gate with the old
	// token already gone, so it cannot be replayed
	if err := h.profiles.Switch(ctx, "o1"); err != nil {
		t.Fatalf("Switch(o1) error = %v", err)
	}
	if got := h.target(); got != route.TargetPinEntry {
		t.Fatalf("route = %q, want pin entry", got)
	}
	h.mustAbsent(t, store.KindProfileToken)

	if err := h.profiles.ConfirmPin(ctx, "4321"); err != nil {
		t.Fatalf("ConfirmPin(4321) error = %v", err)
	}
	if got := h.mustStored(t, store.KindProfileToken); got != "profile-tok-o1" {
		t.Fatalf("profile token = %q, want o1 token", got)
	}
}

func TestSelectPinGatedClearsPreviousProfileSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}
	h.mustStored(t, store.KindProfileToken)

	// selecting a PIN-gated profile parks at the gate with the previous
	// profile session already invalidated, so its token cannot be
	// replayed and a restart cannot resurrect it
	if err := h.profiles.Select(ctx, "p1"); err != nil {
		t.Fatalf("Select(p1) error = %v", err)
	}
	if got := h.target(); got != route.TargetPinEntry {
		t.Fatalf("route = %q, want pin entry", got)
	}
	h.mustAbsent(t, store.ProfileKinds()...)

	if err := h.profiles.ConfirmPin(ctx, "1234"); err != nil {
		t.Fatalf("ConfirmPin(1234) error = %v", err)
	}
	if got := h.mustStored(t, store.KindProfileToken); got != "profile-tok-p1" {
		t.Fatalf("profile token = %q, want p1 token", got)
	}
}

func TestPartialPinEntryDoesNotSpliceIntoNextAttempt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "p1"); err != nil {
		t.Fatalf("Select(p1) error = %v", err)
	}

	// an incomplete entry never submits, and its digits do not leak into
	// the next attempt
	err := h.profiles.ConfirmPin(ctx, "123")
	if !errors.Is(err, util.ErrPrecondition) {
		t.Fatalf("ConfirmPin(123) error = %v, want precondition failure", err)
	}
	h.mustAbsent(t, store.KindProfileToken)

	if err := h.profiles.ConfirmPin(ctx, "1234"); err != nil {
		t.Fatalf("ConfirmPin(1234) after partial entry error = %v", err)
	}
	if got := h.target(); got != route.TargetParentHome {
		t.Fatalf("route = %q, want parent home", got)
	}
}

func TestExitReturnsToProfileList(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}
	if err := h.profiles.Exit(ctx); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}

	h.mustAbsent(t, store.ProfileKinds()...)
	h.mustStored(t, store.KindPrimaryToken)
	if got := h.target(); got != route.TargetProfilePicker {
		t.Fatalf("route = %q, want profile picker", got)
	}
}

func TestCreateProfileRefreshesAccountSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	created, err := h.profiles.CreateProfile(ctx, "Teen", domain.RoleChild, "")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	if _, ok := h.sessions.Account().ProfileByID(created.ID); !ok {
		t.Fatal("new profile missing from refreshed account snapshot")
	}
	if err := h.profiles.Select(ctx, created.ID); err != nil {
		t.Fatalf("Select(new profile) error = %v", err)
	}
}

func TestCreateProfileRequiresPinForGatedRoles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.login(t)
	_, err := h.profiles.CreateProfile(context.Background(), "Aunt", domain.RoleParent, "")
	if !errors.Is(err, util.ErrPrecondition) {
		t.Fatalf("CreateProfile() error = %v, want precondition failure", err)
	}
}

func TestInitRestoresPersistedSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.login(t)
	if err := h.profiles.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select(c1) error = %v", err)
	}

	// a second engine instance over the same store, as after a restart
	client := api.NewClient(
		config.APIConfig{BaseURL: h.server.URL, TimeoutSeconds: 5},
		h.creds,
		zap.NewNop(),
		observability.NewMetrics(),
	)
	restored := service.NewSessionService(zap.NewNop(), service.Dependencies{
		Creds:      h.creds,
		Client:     client,
		Dispatcher: events.NewInMemoryDispatcher(zap.NewNop()),
	})
	if err := restored.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	state := restored.Snapshot()
	if state.Phase != domain.PhaseProfileActive || state.SelectedProfileID != "c1" {
		t.Fatalf("restored state = %+v, want active c1", state)
	}
	if got := route.Decide(state); got != route.TargetChildHome {
		t.Fatalf("route = %q, want child home", got)
	}
}

func TestSelectRequiresPrimarySession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	err := h.profiles.Select(context.Background(), "c1")
	if !errors.Is(err, util.ErrPrecondition) {
		t.Fatalf("Select() without login error = %v, want precondition failure", err)
	}
}

func TestDisposedServiceRefusesWork(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.sessions.Dispose()
	_, err := h.sessions.Login(context.Background(), "parent@example.com", "hunter2")
	if !errors.Is(err, util.ErrPrecondition) {
		t.Fatalf("Login() after Dispose error = %v, want precondition failure", err)
	}
}
