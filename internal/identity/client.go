package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ebonics/ebonics-core/internal/oauth"
	"github.com/ebonics/ebonics-core/pkg/dto"
)

const (
	cacheKeySession = "identitySession"

	// Refresh this long before the access token expires.
	refreshSkew = 30 * time.Second
)

// SessionCache is the device-local storage the client persists sessions to,
// so a cold start can route offline.
type SessionCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

var _ Gateway = (*Client)(nil)

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	cache      SessionCache
	google     *oauth.GoogleProvider
	hub        *hub

	mu           sync.Mutex
	session      *Session
	refreshTimer *time.Timer
}

func NewClient(baseURL, anonKey string, cache SessionCache, google *oauth.GoogleProvider) *Client {
	c := &Client{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		google:     google,
		hub:        newHub(),
	}
	c.loadCachedSession()
	return c
}

// Start emits the initial_session event and arms the auto-refresh timer.
// Call after subscribers are registered.
func (c *Client) Start() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	c.hub.emit(EventInitialSession, session)
	if session != nil {
		c.scheduleRefresh(session)
	}
}

// Close stops the refresh timer and tears down all subscriptions.
func (c *Client) Close() {
	c.mu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()
	c.hub.close()
}

func (c *Client) OnSessionChange(handler Handler) func() {
	return c.hub.subscribe(handler)
}

// Session returns the current session, refreshing it first when expired. A
// transport failure during refresh falls back to the cached session so that
// offline cold starts still route.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil, nil
	}
	if !session.Expired() {
		return session, nil
	}

	refreshed, err := c.refresh(ctx, session.RefreshToken)
	if err != nil {
		if _, ok := err.(*Error); ok {
			// The refresh token was rejected: the session is gone for good.
			c.clearSession()
			c.hub.emit(EventSignedOut, nil)
			return nil, nil
		}
		log.Printf("identity: refresh failed, using cached session: %v", err)
		return session, nil
	}
	return refreshed, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	session, err := c.token(ctx, "password", dto.TokenRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	c.setSession(session, EventSignedIn)
	return session, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Session, error) {
	var resp dto.TokenResponse
	err := c.post(ctx, "/auth/v1/signup", dto.SignupRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	}, "", &resp)
	if err != nil {
		return nil, err
	}

	// Without autoconfirm the response carries no tokens; the caller must
	// verify a code first.
	if resp.AccessToken == "" {
		return nil, nil
	}

	session := sessionFromResponse(&resp)
	c.setSession(session, EventSignedIn)
	return session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		if err := c.post(ctx, "/auth/v1/logout", nil, session.AccessToken, nil); err != nil {
			// The local session is discarded regardless; the server side
			// token will age out.
			log.Printf("identity: server sign-out failed: %v", err)
		}
	}

	c.clearSession()
	c.hub.emit(EventSignedOut, nil)
	return nil
}

func (c *Client) VerifyCode(ctx context.Context, email, code, purpose string) (*Session, error) {
	var resp dto.TokenResponse
	err := c.post(ctx, "/auth/v1/verify", dto.VerifyRequest{
		Email: email,
		Token: code,
		Type:  purpose,
	}, "", &resp)
	if err != nil {
		return nil, err
	}

	session := sessionFromResponse(&resp)
	c.setSession(session, EventSignedIn)
	return session, nil
}

func (c *Client) ResendCode(ctx context.Context, email, purpose string) error {
	return c.post(ctx, "/auth/v1/otp", dto.OTPRequest{Email: email, Type: purpose}, "", nil)
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return &Error{Status: http.StatusUnauthorized, Message: "no active session"}
	}

	err := c.put(ctx, "/auth/v1/user", dto.UpdateUserRequest{Password: newPassword}, session.AccessToken)
	if err != nil {
		return err
	}
	c.hub.emit(EventUserUpdated, session)
	return nil
}

// GoogleConsentURL returns the Google OAuth consent URL, or "" when Google
// sign-in is not configured.
func (c *Client) GoogleConsentURL(state string) string {
	if c.google == nil {
		return ""
	}
	return c.google.GetConsentURL(state)
}

// SignInWithGoogle completes the native Google flow: the authorization code
// becomes a Google ID token, which the identity API accepts as a grant.
func (c *Client) SignInWithGoogle(ctx context.Context, code string) (*Session, error) {
	if c.google == nil {
		return nil, fmt.Errorf("google sign-in not configured")
	}

	idToken, err := c.google.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	session, err := c.token(ctx, "id_token", dto.TokenRequest{IDToken: idToken, Provider: "google"})
	if err != nil {
		return nil, err
	}
	c.setSession(session, EventSignedIn)
	return session, nil
}

func (c *Client) token(ctx context.Context, grantType string, req dto.TokenRequest) (*Session, error) {
	var resp dto.TokenResponse
	err := c.post(ctx, "/auth/v1/token?grant_type="+grantType, req, "", &resp)
	if err != nil {
		return nil, err
	}
	return sessionFromResponse(&resp), nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := c.token(ctx, "refresh_token", dto.TokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	c.setSession(session, EventTokenRefreshed)
	return session, nil
}

func (c *Client) setSession(session *Session, kind EventKind) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.persistSession(session)
	c.scheduleRefresh(session)
	c.hub.emit(kind, session)
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Delete(context.Background(), cacheKeySession); err != nil {
			log.Printf("identity: failed to clear cached session: %v", err)
		}
	}
}

func (c *Client) scheduleRefresh(session *Session) {
	if session == nil || session.ExpiresAt.IsZero() {
		return
	}

	delay := time.Until(session.ExpiresAt) - refreshSkew
	if delay < time.Second {
		delay = time.Second
	}

	c.mu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	refreshToken := session.RefreshToken
	c.refreshTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.refresh(ctx, refreshToken); err != nil {
			log.Printf("identity: scheduled refresh failed: %v", err)
		}
	})
	c.mu.Unlock()
}

func (c *Client) persistSession(session *Session) {
	if c.cache == nil || session == nil {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		log.Printf("identity: failed to encode session: %v", err)
		return
	}
	if err := c.cache.Set(context.Background(), cacheKeySession, string(data)); err != nil {
		log.Printf("identity: failed to cache session: %v", err)
	}
}

func (c *Client) loadCachedSession() {
	if c.cache == nil {
		return
	}
	raw, ok, err := c.cache.Get(context.Background(), cacheKeySession)
	if err != nil {
		log.Printf("identity: failed to read cached session: %v", err)
		return
	}
	if !ok {
		return
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		log.Printf("identity: discarding corrupt cached session: %v", err)
		return
	}
	c.session = &session
}

func (c *Client) post(ctx context.Context, path string, body any, bearer string, out any) error {
	return c.do(ctx, http.MethodPost, path, body, bearer, out)
}

func (c *Client) put(ctx context.Context, path string, body any, bearer string) error {
	return c.do(ctx, http.MethodPut, path, body, bearer, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr dto.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Code: apiErr.Code, Message: message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func sessionFromResponse(resp *dto.TokenResponse) *Session {
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
	}
}
