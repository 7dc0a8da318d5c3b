// Package identitystub is an in-memory, gotrue-compatible identity server for
// local development and tests. It speaks the same wire protocol the client
// gateway expects: password/refresh_token/id_token grants, signup with email
// code verification, logout and password update.
package identitystub

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ebonics/ebonics-core/internal/middleware"
	"github.com/ebonics/ebonics-core/internal/models"
	"github.com/ebonics/ebonics-core/internal/services"
	"github.com/ebonics/ebonics-core/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	codeTTL         = 10 * time.Minute
	cleanupInterval = 1 * time.Minute
)

type account struct {
	id        uuid.UUID
	email     string
	password  string
	verified  bool
	createdAt time.Time
	metadata  map[string]string
}

type refreshData struct {
	userID    uuid.UUID
	expiresAt time.Time
}

type codeData struct {
	code      string
	purpose   string
	expiresAt time.Time
}

// ProfileWriter creates the profile row once an identity is verified. Nil
// disables profile provisioning.
type ProfileWriter interface {
	Create(ctx context.Context, profile *models.Profile) error
}

type Handler struct {
	jwtService *services.JWTService
	profiles   ProfileWriter

	mu       sync.Mutex
	accounts map[string]*account // keyed by email
	byID     map[uuid.UUID]*account

	refreshTokens sync.Map // token hash -> refreshData
	codes         sync.Map // email -> codeData
}

func NewHandler(jwtService *services.JWTService, profiles ProfileWriter) *Handler {
	h := &Handler{
		jwtService: jwtService,
		profiles:   profiles,
		accounts:   make(map[string]*account),
		byID:       make(map[uuid.UUID]*account),
	}

	go h.cleanup()

	return h
}

func (h *Handler) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	for range ticker.C {
		now := time.Now()
		h.refreshTokens.Range(func(key, value any) bool {
			if rd, ok := value.(refreshData); ok && now.After(rd.expiresAt) {
				h.refreshTokens.Delete(key)
			}
			return true
		})
		h.codes.Range(func(key, value any) bool {
			if cd, ok := value.(codeData); ok && now.After(cd.expiresAt) {
				h.codes.Delete(key)
			}
			return true
		})
	}
}

// Seed registers a verified account directly, bypassing signup. For dev
// fixtures and tests.
func (h *Handler) Seed(email, password string) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	acc := &account{
		id:        uuid.New(),
		email:     email,
		password:  password,
		verified:  true,
		createdAt: time.Now(),
	}
	h.accounts[email] = acc
	h.byID[acc.id] = acc
	return acc.id
}

// Token handles POST /auth/v1/token, dispatching on the grant_type query
// parameter like gotrue does.
func (h *Handler) Token(c *drift.Context) {
	var req dto.TokenRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, 400, "bad_json", "invalid request body")
		return
	}

	switch c.QueryParam("grant_type") {
	case "password":
		h.passwordGrant(c, req)
	case "refresh_token":
		h.refreshGrant(c, req)
	case "id_token":
		h.idTokenGrant(c, req)
	default:
		h.fail(c, 400, "unsupported_grant_type", "unsupported grant type")
	}
}

func (h *Handler) passwordGrant(c *drift.Context, req dto.TokenRequest) {
	h.mu.Lock()
	acc, ok := h.accounts[req.Email]
	h.mu.Unlock()

	if !ok || acc.password != req.Password {
		h.fail(c, 400, "invalid_credentials", "Invalid login credentials")
		return
	}
	if !acc.verified {
		h.fail(c, 400, "email_not_confirmed", "Email not confirmed")
		return
	}

	h.issueSession(c, acc)
}

func (h *Handler) refreshGrant(c *drift.Context, req dto.TokenRequest) {
	if req.RefreshToken == "" {
		h.fail(c, 400, "bad_request", "refresh_token is required")
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.fail(c, 400, "refresh_token_not_found", "Invalid refresh token")
		return
	}

	tokenHash := services.HashToken(req.RefreshToken)
	stored, ok := h.refreshTokens.LoadAndDelete(tokenHash)
	if !ok {
		h.fail(c, 400, "refresh_token_not_found", "Refresh token not found")
		return
	}
	rd, ok := stored.(refreshData)
	if !ok || rd.userID != userID || time.Now().After(rd.expiresAt) {
		h.fail(c, 400, "refresh_token_not_found", "Refresh token expired")
		return
	}

	h.mu.Lock()
	acc, ok := h.byID[userID]
	h.mu.Unlock()
	if !ok {
		h.fail(c, 400, "user_not_found", "User not found")
		return
	}

	h.issueSession(c, acc)
}

// idTokenGrant finds or creates a verified account for a federated sign-in.
// The stub trusts the token's email claim without signature verification,
// which is fine for a dev server that never faces the internet.
func (h *Handler) idTokenGrant(c *drift.Context, req dto.TokenRequest) {
	if req.IDToken == "" || req.Provider == "" {
		h.fail(c, 400, "bad_request", "id_token and provider are required")
		return
	}

	email, err := emailFromIDToken(req.IDToken)
	if err != nil {
		h.fail(c, 400, "bad_id_token", "could not extract email from id token")
		return
	}

	h.mu.Lock()
	acc, ok := h.accounts[email]
	if !ok {
		acc = &account{
			id:        uuid.New(),
			email:     email,
			verified:  true,
			createdAt: time.Now(),
		}
		h.accounts[email] = acc
		h.byID[acc.id] = acc
	}
	h.mu.Unlock()

	if !ok {
		h.provisionProfile(acc)
	}

	h.issueSession(c, acc)
}

// Signup handles POST /auth/v1/signup. The account stays unverified until the
// emailed code is confirmed; no session is returned.
func (h *Handler) Signup(c *drift.Context) {
	var req dto.SignupRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, 400, "bad_json", "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.fail(c, 400, "validation_failed", "email and password are required")
		return
	}

	h.mu.Lock()
	if existing, ok := h.accounts[req.Email]; ok && existing.verified {
		h.mu.Unlock()
		h.fail(c, 422, "user_already_exists", "User already registered")
		return
	}
	acc := &account{
		id:        uuid.New(),
		email:     req.Email,
		password:  req.Password,
		createdAt: time.Now(),
		metadata:  req.Data,
	}
	h.accounts[req.Email] = acc
	h.byID[acc.id] = acc
	h.mu.Unlock()

	h.sendCode(req.Email, "signup")

	_ = c.JSON(200, dto.TokenResponse{
		User: dto.IdentityUser{ID: acc.id, Email: acc.email, CreatedAt: acc.createdAt},
	})
}

// Verify handles POST /auth/v1/verify: confirms the emailed code and returns
// a session. A signup verification also provisions the profile row.
func (h *Handler) Verify(c *drift.Context) {
	var req dto.VerifyRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, 400, "bad_json", "invalid request body")
		return
	}

	stored, ok := h.codes.LoadAndDelete(req.Email)
	if !ok {
		h.fail(c, 403, "otp_expired", "Token has expired or is invalid")
		return
	}
	cd, ok := stored.(codeData)
	if !ok || cd.code != req.Token || cd.purpose != req.Type || time.Now().After(cd.expiresAt) {
		h.fail(c, 403, "otp_expired", "Token has expired or is invalid")
		return
	}

	h.mu.Lock()
	acc, ok := h.accounts[req.Email]
	if ok {
		acc.verified = true
	}
	h.mu.Unlock()
	if !ok {
		h.fail(c, 400, "user_not_found", "User not found")
		return
	}

	if req.Type == "signup" {
		h.provisionProfile(acc)
	}

	h.issueSession(c, acc)
}

// OTP handles POST /auth/v1/otp, re-sending a verification or recovery code.
func (h *Handler) OTP(c *drift.Context) {
	var req dto.OTPRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, 400, "bad_json", "invalid request body")
		return
	}

	h.mu.Lock()
	_, ok := h.accounts[req.Email]
	h.mu.Unlock()
	// Do not leak whether the account exists.
	if ok {
		h.sendCode(req.Email, req.Type)
	}

	_ = c.JSON(200, map[string]string{})
}

// Logout handles POST /auth/v1/logout, revoking the caller's refresh tokens.
func (h *Handler) Logout(c *drift.Context) {
	userID := middleware.GetUserID(c)

	h.refreshTokens.Range(func(key, value any) bool {
		if rd, ok := value.(refreshData); ok && rd.userID == userID {
			h.refreshTokens.Delete(key)
		}
		return true
	})

	_ = c.JSON(200, map[string]string{})
}

// GetUser handles GET /auth/v1/user.
func (h *Handler) GetUser(c *drift.Context) {
	h.mu.Lock()
	acc, ok := h.byID[middleware.GetUserID(c)]
	h.mu.Unlock()
	if !ok {
		h.fail(c, 404, "user_not_found", "User not found")
		return
	}

	_ = c.JSON(200, dto.IdentityUser{ID: acc.id, Email: acc.email, CreatedAt: acc.createdAt})
}

// UpdateUser handles PUT /auth/v1/user, currently limited to password change.
func (h *Handler) UpdateUser(c *drift.Context) {
	var req dto.UpdateUserRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, 400, "bad_json", "invalid request body")
		return
	}
	if req.Password == "" {
		h.fail(c, 422, "validation_failed", "password is required")
		return
	}

	h.mu.Lock()
	acc, ok := h.byID[middleware.GetUserID(c)]
	if ok {
		acc.password = req.Password
	}
	h.mu.Unlock()
	if !ok {
		h.fail(c, 404, "user_not_found", "User not found")
		return
	}

	_ = c.JSON(200, dto.IdentityUser{ID: acc.id, Email: acc.email, CreatedAt: acc.createdAt})
}

func (h *Handler) issueSession(c *drift.Context, acc *account) {
	pair, err := h.jwtService.GenerateTokenPair(acc.id, acc.email)
	if err != nil {
		h.fail(c, 500, "unexpected_failure", "failed to generate tokens")
		return
	}

	h.refreshTokens.Store(services.HashToken(pair.RefreshToken), refreshData{
		userID:    acc.id,
		expiresAt: time.Now().Add(h.jwtService.RefreshExpiry()),
	})

	_ = c.JSON(200, dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		User:         dto.IdentityUser{ID: acc.id, Email: acc.email, CreatedAt: acc.createdAt},
	})
}

func (h *Handler) provisionProfile(acc *account) {
	if h.profiles == nil {
		return
	}
	profile := &models.Profile{ID: acc.id, Email: acc.email, Name: acc.metadata["name"], Phone: acc.metadata["phone"]}
	if err := h.profiles.Create(context.Background(), profile); err != nil {
		log.Printf("identitystub: profile provisioning failed for %s: %v", acc.email, err)
	}
}

// sendCode generates a 6-digit code and logs it in place of sending email.
func (h *Handler) sendCode(email, purpose string) {
	code := generateCode()
	h.codes.Store(email, codeData{code: code, purpose: purpose, expiresAt: time.Now().Add(codeTTL)})
	log.Printf("identitystub: %s code for %s: %s", purpose, email, code)
}

// PeekCode returns the pending code for an email. Test hook.
func (h *Handler) PeekCode(email string) (string, bool) {
	value, ok := h.codes.Load(email)
	if !ok {
		return "", false
	}
	cd, ok := value.(codeData)
	if !ok {
		return "", false
	}
	return cd.code, true
}

func (h *Handler) fail(c *drift.Context, status int, code, message string) {
	_ = c.JSON(status, dto.ErrorResponse{Code: code, Message: message})
}

func generateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand failing means the host is broken; a fixed code still
		// serves a dev stub.
		return "000000"
	}
	digits := "000000" + n.String()
	return digits[len(digits)-6:]
}
