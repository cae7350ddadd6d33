package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Token is a bearer credential issued by the tenant authority
type Token struct {
	AccessToken     string    `json:"access_token"`
	TokenType       string    `json:"token_type"`
	ExpiresIn       int       `json:"expires_in"`
	Scope           string    `json:"scope,omitempty"`
	SOAPInstanceURL string    `json:"soap_instance_url,omitempty"`
	RESTInstanceURL string    `json:"rest_instance_url,omitempty"`
	Expiry          time.Time `json:"-"`
}

// Error is returned when the authority rejects or garbles a token request
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return "token response missing access_token"
	}
	return fmt.Sprintf("token request failed with status %d: %s", e.StatusCode, e.Body)
}

// Config configures a TokenManager
type Config struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	AccountID    string
	// FallbackTTL is used when the authority does not state expires_in
	FallbackTTL time.Duration
	// ExpiryMargin is subtracted from the authority's stated lifetime
	ExpiryMargin time.Duration
	HTTPClient   *http.Client
	Now          func() time.Time
}

// TokenManager caches one client-credentials token and refreshes it when it
// has expired. Concurrent callers that find the token expired share a
// single refresh.
type TokenManager struct {
	cfg    Config
	logger *zap.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	token *Token
}

// NewTokenManager creates a token manager; no token is fetched until first use
func NewTokenManager(cfg Config, logger *zap.Logger) *TokenManager {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{cfg: cfg, logger: logger}
}

// IsExpired reports whether no token is held or the held one has reached its expiry
func (tm *TokenManager) IsExpired() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.expiredLocked()
}

func (tm *TokenManager) expiredLocked() bool {
	if tm.token == nil || tm.token.AccessToken == "" {
		return true
	}
	return !tm.token.Expiry.After(tm.cfg.Now())
}

// Token returns a valid access token, refreshing if necessary
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	t, err := tm.Current(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// Current returns the full cached token, refreshing if necessary
func (tm *TokenManager) Current(ctx context.Context) (*Token, error) {
	tm.mu.RLock()
	if !tm.expiredLocked() {
		t := *tm.token
		tm.mu.RUnlock()
		tm.logger.Debug("Using cached token", zap.Time("expiry", t.Expiry))
		return &t, nil
	}
	tm.mu.RUnlock()

	// The refresh outlives any single caller; it is bounded by the HTTP
	// client timeout and each caller waits only as long as its own ctx allows.
	refreshCtx := context.WithoutCancel(ctx)
	ch := tm.group.DoChan("token", func() (any, error) {
		// Another caller may have refreshed between the check and the call
		tm.mu.RLock()
		if !tm.expiredLocked() {
			t := *tm.token
			tm.mu.RUnlock()
			return &t, nil
		}
		tm.mu.RUnlock()
		return tm.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			tm.logger.Debug("Joined in-flight token refresh")
		}
		t := *res.Val.(*Token)
		return &t, nil
	}
}

// Invalidate drops the cached token if it is still the rejected one, so the
// next call refreshes it. A token refreshed since the rejection is kept.
func (tm *TokenManager) Invalidate(rejected string) {
	tm.mu.Lock()
	if tm.token == nil || tm.token.AccessToken != rejected {
		tm.mu.Unlock()
		tm.logger.Debug("Rejected token already replaced")
		return
	}
	tm.token = nil
	tm.mu.Unlock()
	tm.logger.Info("Cached token invalidated")
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AccountID    string `json:"account_id,omitempty"`
}

// refresh exchanges the client credentials for a new token and stores it
func (tm *TokenManager) refresh(ctx context.Context) (*Token, error) {
	tm.logger.Info("Fetching new token", zap.String("client_id", tm.cfg.ClientID))

	payload, err := json.Marshal(tokenRequest{
		GrantType:    "client_credentials",
		ClientID:     tm.cfg.ClientID,
		ClientSecret: tm.cfg.ClientSecret,
		AccountID:    tm.cfg.AccountID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.cfg.AuthURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		tm.logger.Error("Token request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, &Error{}
	}

	token.Expiry = tm.expiryFor(token.ExpiresIn)

	tm.mu.Lock()
	tm.token = &token
	tm.mu.Unlock()

	tm.logger.Info("Fetched new token",
		zap.Time("expiry", token.Expiry),
		zap.Int("expires_in", token.ExpiresIn),
	)

	t := token
	return &t, nil
}

// expiryFor prefers the authority's stated lifetime, less the margin, and
// falls back to the fixed window only when no lifetime is stated. A stated
// lifetime not longer than the margin is halved; it is never exceeded.
func (tm *TokenManager) expiryFor(expiresIn int) time.Time {
	now := tm.cfg.Now()
	if expiresIn <= 0 {
		return now.Add(tm.cfg.FallbackTTL)
	}
	stated := time.Duration(expiresIn) * time.Second
	if stated > tm.cfg.ExpiryMargin {
		return now.Add(stated - tm.cfg.ExpiryMargin)
	}
	return now.Add(stated / 2)
}
