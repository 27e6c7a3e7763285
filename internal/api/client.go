// Package api implements the outbound client for the account service. Each
// request is classified by a static scope table which decides the token to
// attach; 401/403 responses from scoped endpoints are converted into the
// matching session invalidation, with concurrent failures collapsed behind
// a single invalidation sweep.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/api/dto"
	"github.com/spec-kit/family-session/internal/config"
	"github.com/spec-kit/family-session/internal/domain"
	"github.com/spec-kit/family-session/internal/observability"
	"github.com/spec-kit/family-session/internal/store"
	"github.com/spec-kit/family-session/pkg/util"
)

// InvalidationSink receives token-invalidation verdicts. The session layer
// implements it; the client never clears storage itself.
type InvalidationSink interface {
	InvalidatePrimary(ctx context.Context)
	InvalidateProfile(ctx context.Context)
}

// Client talks to the account service.
type Client struct {
	baseURL string
	http    *http.Client
	creds   store.Store
	logger  *zap.Logger
	metrics *observability.Metrics

	sink InvalidationSink
	gate invalidationGate
}

// NewClient builds a client. The invalidation sink is attached later via
// SetInvalidationSink because the session layer is constructed around the
// client.
func NewClient(cfg config.APIConfig, creds store.Store, logger *zap.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout()},
		creds:   creds,
		logger:  logger,
		metrics: metrics,
	}
}

// SetInvalidationSink wires the session layer into 401/403 handling.
func (c *Client) SetInvalidationSink(sink InvalidationSink) {
	c.sink = sink
}

// Login exchanges primary credentials for a primary token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, http.MethodPost, EndpointLogin, dto.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Register creates a primary account and returns its first token.
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (string, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, EndpointRegister, req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Logout notifies the server that the primary session ends. Best effort;
// callers clear local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, EndpointLogout, nil, nil)
}

// FetchAccount retrieves the primary account snapshot.
func (c *Client) FetchAccount(ctx context.Context) (*domain.Account, error) {
	var account domain.Account
	if err := c.do(ctx, http.MethodGet, EndpointAccountMe, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ProfileLogin exchanges a profile id (plus PIN for gated roles) for a
// profile token.
func (c *Client) ProfileLogin(ctx context.Context, profileID, pin string) (string, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, http.MethodPost, EndpointProfileLogin, dto.ProfileLoginRequest{ID: profileID, Pin: pin}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// FetchProfile retrieves the active profile snapshot.
func (c *Client) FetchProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.do(ctx, http.MethodGet, EndpointProfileMe, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RegisterProfile creates a profile under the primary account.
func (c *Client) RegisterProfile(ctx context.Context, req dto.ProfileRegisterRequest) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.do(ctx, http.MethodPost, EndpointProfileRegister, req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// envelope mirrors the service's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	scope := ScopeFor(path)

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.attachToken(ctx, req, scope)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordError(path, method, "TRANSPORT_ERROR")
		return util.NewTransportError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.metrics.RecordRequest(path, method, resp.StatusCode, time.Since(start))

	var env envelope
	if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr != nil && resp.StatusCode < 400 {
		return util.NewTransportError(fmt.Errorf("decode response: %w", decodeErr))
	}

	if resp.StatusCode >= 400 {
		return c.statusError(ctx, path, method, scope, resp.StatusCode, env)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return util.NewTransportError(fmt.Errorf("decode response data: %w", err))
		}
	}
	return nil
}

// attachToken adds the bearer classified for the scope. A missing or
// unreadable token sends the request unauthenticated; rejecting is the
// server's job.
func (c *Client) attachToken(ctx context.Context, req *http.Request, scope Scope) {
	var kind store.Kind
	switch scope {
	case ScopePrimary, ScopeExchange:
		kind = store.KindPrimaryToken
	case ScopeProfile:
		kind = store.KindProfileToken
	default:
		return
	}

	token, ok, err := c.creds.Load(ctx, kind)
	if err != nil {
		c.logger.Warn("credential load failed, sending unauthenticated",
			zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) statusError(ctx context.Context, path, method string, scope Scope, status int, env envelope) error {
	message := ""
	code := ""
	if env.Error != nil {
		message = env.Error.Message
		code = env.Error.Code
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		switch scope {
		case ScopePrimary:
			c.metrics.RecordError(path, method, "TOKEN_INVALIDATED")
			c.invalidate(ctx, ScopePrimary)
			return util.NewTokenInvalidated("primary")
		case ScopeProfile:
			c.metrics.RecordError(path, method, "TOKEN_INVALIDATED")
			c.invalidate(ctx, ScopeProfile)
			return util.NewTokenInvalidated("profile")
		case ScopeExchange:
			c.metrics.RecordError(path, method, "INCORRECT_PIN")
			return util.NewIncorrectPin()
		default:
			c.metrics.RecordError(path, method, "INVALID_CREDENTIALS")
			return util.NewInvalidCredentials(message)
		}
	}

	if code == "" {
		code = "TRANSPORT_ERROR"
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", status)
	}
	c.metrics.RecordError(path, method, code)
	return util.NewFlowError(code, message, map[string]any{"status": status})
}

// invalidate funnels concurrent 401/403 verdicts for one scope through a
// single sink call. Requests arriving while a sweep runs wait for it
// instead of starting another.
func (c *Client) invalidate(ctx context.Context, scope Scope) {
	if c.sink == nil {
		c.logger.Warn("token invalidated but no sink attached")
		return
	}

	done, leader := c.gate.join(scope)
	if !leader {
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	switch scope {
	case ScopePrimary:
		c.sink.InvalidatePrimary(ctx)
	case ScopeProfile:
		c.sink.InvalidateProfile(ctx)
	}
	c.gate.release(scope)
}
