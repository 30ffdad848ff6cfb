package enphase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/condorsolar/condor/pkg/common"
	"github.com/condorsolar/condor/pkg/log"
)

const (
	cloudTokenURL     = "https://api.enphaseenergy.com/oauth/token"
	cloudAuthorizeURL = "https://api.enphaseenergy.com/oauth/authorize"

	// tokenExpiryBuffer is how long before the reported expiry we treat a
	// token as expired, so a request never races the real expiry.
	tokenExpiryBuffer = 60 * time.Second
)

// Credentials supplies a bearer token for gateway requests. The two
// implementations are fixed at construction: CloudAuth (OAuth2) and
// LocalAuth (static bearer). A client never switches modes at runtime.
type Credentials interface {
	// EnsureToken returns a token that is valid right now, refreshing it
	// first if needed. Failures are *AuthError.
	EnsureToken(ctx context.Context) (string, error)
}

// LocalAuth is the on-site gateway's static bearer token. Local tokens do
// not expire within this system's model, so there is no refresh logic.
type LocalAuth struct {
	token string
}

// NewLocalAuth returns credentials for the local gateway.
func NewLocalAuth(token string) *LocalAuth {
	return &LocalAuth{token: token}
}

// EnsureToken returns the configured token verbatim.
func (a *LocalAuth) EnsureToken(context.Context) (string, error) {
	if a.token == "" {
		return "", &AuthError{Reason: AuthMissingCredential, Err: errors.New("no local bearer token configured")}
	}
	return a.token, nil
}

// CloudAuth manages the OAuth2 token lifecycle for the cloud API:
// authorization-code exchange, persistence through a TokenStore, and
// refresh with a safety buffer. The mutex makes refresh single-flight if
// callers ever poll concurrently.
type CloudAuth struct {
	client       *http.Client
	store        *TokenStore
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	authorizeURL string
	now          func() time.Time

	mu         sync.Mutex
	tok        *TokenState
	obtainedAt int64
}

// NewCloudAuth returns OAuth2 credentials for the cloud API. Any token
// previously persisted to store is restored so a restart does not force a
// new consent flow.
func NewCloudAuth(ctx context.Context, clientID, clientSecret, redirectURI string, store *TokenStore) *CloudAuth {
	a := &CloudAuth{
		client:       common.HTTPClient(10 * time.Second),
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		tokenURL:     cloudTokenURL,
		authorizeURL: cloudAuthorizeURL,
		now:          time.Now,
	}
	tok, obtainedAt, err := store.Load(ctx)
	if err == nil && tok != nil {
		a.tok = tok
		a.obtainedAt = obtainedAt
		log.Ctx(ctx).DebugContext(ctx, "restored cloud token from store")
	}
	return a
}

// AuthorizeURL builds the user-consent URL. No network call is made; the
// operator opens this in a browser and comes back with a code.
func (a *CloudAuth) AuthorizeURL() string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", a.clientID)
	params.Set("redirect_uri", a.redirectURI)
	return a.authorizeURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for token material, persists
// it, and caches it for subsequent EnsureToken calls.
func (a *CloudAuth) ExchangeCode(ctx context.Context, code string) (*TokenState, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", a.redirectURI)

	tok, err := a.tokenRequest(ctx, data)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "authorization code exchange failed", slog.Any("error", err))
		return nil, &AuthError{Reason: AuthTokenExchangeFailed, Err: err}
	}

	a.mu.Lock()
	a.tok = tok
	a.obtainedAt = a.now().Unix()
	obtainedAt := a.obtainedAt
	a.mu.Unlock()

	if err := a.store.Save(ctx, tok, obtainedAt); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to persist token", slog.Any("error", err))
	}
	log.Ctx(ctx).InfoContext(ctx, "obtained cloud token", slog.Int64("expiresIn", tok.ExpiresIn))
	return tok, nil
}

// EnsureToken returns the cached access token, refreshing it first when
// it is within the expiry buffer. A failed refresh leaves the cached
// token untouched; the new token replaces it only on confirmed success.
func (a *CloudAuth) EnsureToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tok == nil {
		return "", &AuthError{Reason: AuthNotAuthenticated, Err: errors.New("no token; complete the authorization flow first")}
	}

	if a.expiredLocked() {
		if err := a.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return a.tok.AccessToken, nil
}

// expiredLocked reports whether the cached token is at or past the expiry
// buffer. Must be called with a.mu held.
func (a *CloudAuth) expiredLocked() bool {
	return a.now().Unix()-a.obtainedAt >= a.tok.ExpiresIn-int64(tokenExpiryBuffer/time.Second)
}

// refreshLocked performs one refresh round-trip. Must be called with a.mu
// held.
func (a *CloudAuth) refreshLocked(ctx context.Context) error {
	if a.tok.RefreshToken == "" {
		return &AuthError{Reason: AuthRefreshFailed, Err: errors.New("no refresh token available")}
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", a.tok.RefreshToken)

	tok, err := a.tokenRequest(ctx, data)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "token refresh failed", slog.Any("error", err))
		return &AuthError{Reason: AuthRefreshFailed, Err: err}
	}

	// Swap only after the round-trip confirmed success so a transient
	// failure never wipes a still-valid token.
	a.tok = tok
	a.obtainedAt = a.now().Unix()

	if err := a.store.Save(ctx, tok, a.obtainedAt); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to persist refreshed token", slog.Any("error", err))
	}
	log.Ctx(ctx).DebugContext(ctx, "refreshed cloud token", slog.Int64("expiresIn", tok.ExpiresIn))
	return nil
}

// tokenRequest POSTs a grant to the token endpoint with HTTP Basic auth
// built from the client id and secret.
func (a *CloudAuth) tokenRequest(ctx context.Context, data url.Values) (*TokenState, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", a.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.clientID, a.clientSecret)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok TokenState
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &tok, nil
}
