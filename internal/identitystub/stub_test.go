package identitystub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authmw "github.com/ebonics/ebonics-core/internal/middleware"
	"github.com/ebonics/ebonics-core/internal/services"
	"github.com/ebonics/ebonics-core/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	driftmw "github.com/m1z23r/drift/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStubTest(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	jwtSvc := services.NewJWTService("test-secret-key", 15*time.Minute, 24*time.Hour)
	handler := NewHandler(jwtSvc, nil)

	app := drift.New()
	app.Use(driftmw.BodyParser())

	auth := app.Group("/auth/v1")
	auth.Post("/token", handler.Token)
	auth.Post("/signup", handler.Signup)
	auth.Post("/verify", handler.Verify)
	auth.Post("/otp", handler.OTP)

	protected := auth.Group("")
	protected.Use(authmw.Auth(jwtSvc))
	protected.Post("/logout", handler.Logout)
	protected.Get("/user", handler.GetUser)
	protected.Put("/user", handler.UpdateUser)

	return handler, app
}

func postJSON(t *testing.T, app http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestStub_PasswordGrant_Success(t *testing.T) {
	handler, app := setupStubTest(t)
	userID := handler.Seed("jane@example.com", "hunter2")

	rec := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "hunter2"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, userID, resp.User.ID)
}

func TestStub_PasswordGrant_WrongPassword(t *testing.T) {
	handler, app := setupStubTest(t)
	handler.Seed("jane@example.com", "hunter2")

	rec := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "wrong"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_credentials", resp.Code)
}

func TestStub_PasswordGrant_UnknownUser(t *testing.T) {
	_, app := setupStubTest(t)

	rec := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "nobody@example.com", Password: "x"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestStub_UnsupportedGrantType(t *testing.T) {
	_, app := setupStubTest(t)

	rec := postJSON(t, app, "/auth/v1/token?grant_type=telepathy", dto.TokenRequest{}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_grant_type")
}

func TestStub_RefreshGrant_RotatesToken(t *testing.T) {
	handler, app := setupStubTest(t)
	handler.Seed("jane@example.com", "hunter2")

	signIn := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "hunter2"}, nil)
	require.Equal(t, http.StatusOK, signIn.Code)
	var first dto.TokenResponse
	require.NoError(t, json.Unmarshal(signIn.Body.Bytes(), &first))

	refresh := postJSON(t, app, "/auth/v1/token?grant_type=refresh_token",
		dto.TokenRequest{RefreshToken: first.RefreshToken}, nil)
	assert.Equal(t, http.StatusOK, refresh.Code)
	var second dto.TokenResponse
	require.NoError(t, json.Unmarshal(refresh.Body.Bytes(), &second))
	assert.NotEmpty(t, second.AccessToken)

	// The old refresh token was consumed by the rotation.
	replay := postJSON(t, app, "/auth/v1/token?grant_type=refresh_token",
		dto.TokenRequest{RefreshToken: first.RefreshToken}, nil)
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Contains(t, replay.Body.String(), "refresh_token_not_found")
}

func TestStub_SignupVerifyFlow(t *testing.T) {
	handler, app := setupStubTest(t)

	signup := postJSON(t, app, "/auth/v1/signup",
		dto.SignupRequest{Email: "new@example.com", Password: "s3cret", Data: map[string]string{"name": "New User"}}, nil)
	require.Equal(t, http.StatusOK, signup.Code)
	var created dto.TokenResponse
	require.NoError(t, json.Unmarshal(signup.Body.Bytes(), &created))
	assert.Empty(t, created.AccessToken, "signup must not return a session")
	assert.Equal(t, "new@example.com", created.User.Email)

	// Signing in before verification is rejected.
	early := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "new@example.com", Password: "s3cret"}, nil)
	assert.Equal(t, http.StatusBadRequest, early.Code)
	assert.Contains(t, early.Body.String(), "email_not_confirmed")

	code, ok := handler.PeekCode("new@example.com")
	require.True(t, ok)

	verify := postJSON(t, app, "/auth/v1/verify",
		dto.VerifyRequest{Email: "new@example.com", Token: code, Type: "signup"}, nil)
	assert.Equal(t, http.StatusOK, verify.Code)
	var session dto.TokenResponse
	require.NoError(t, json.Unmarshal(verify.Body.Bytes(), &session))
	assert.NotEmpty(t, session.AccessToken)
}

func TestStub_Verify_WrongCode(t *testing.T) {
	_, app := setupStubTest(t)

	signup := postJSON(t, app, "/auth/v1/signup",
		dto.SignupRequest{Email: "new@example.com", Password: "s3cret"}, nil)
	require.Equal(t, http.StatusOK, signup.Code)

	rec := postJSON(t, app, "/auth/v1/verify",
		dto.VerifyRequest{Email: "new@example.com", Token: "999999", Type: "signup"}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "otp_expired")
}

func TestStub_Signup_DuplicateEmail(t *testing.T) {
	handler, app := setupStubTest(t)
	handler.Seed("taken@example.com", "hunter2")

	rec := postJSON(t, app, "/auth/v1/signup",
		dto.SignupRequest{Email: "taken@example.com", Password: "other"}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_already_exists")
}

func TestStub_OTP_UnknownEmailDoesNotLeak(t *testing.T) {
	handler, app := setupStubTest(t)

	rec := postJSON(t, app, "/auth/v1/otp",
		dto.OTPRequest{Email: "ghost@example.com", Type: "recovery"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := handler.PeekCode("ghost@example.com")
	assert.False(t, ok)
}

func TestStub_Logout_RevokesRefreshTokens(t *testing.T) {
	handler, app := setupStubTest(t)
	handler.Seed("jane@example.com", "hunter2")

	signIn := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "hunter2"}, nil)
	require.Equal(t, http.StatusOK, signIn.Code)
	var session dto.TokenResponse
	require.NoError(t, json.Unmarshal(signIn.Body.Bytes(), &session))

	logout := postJSON(t, app, "/auth/v1/logout", map[string]string{},
		map[string]string{"Authorization": "Bearer " + session.AccessToken})
	assert.Equal(t, http.StatusOK, logout.Code)

	refresh := postJSON(t, app, "/auth/v1/token?grant_type=refresh_token",
		dto.TokenRequest{RefreshToken: session.RefreshToken}, nil)
	assert.Equal(t, http.StatusBadRequest, refresh.Code)
}

func TestStub_UpdatePassword(t *testing.T) {
	handler, app := setupStubTest(t)
	handler.Seed("jane@example.com", "old-pass")

	signIn := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "old-pass"}, nil)
	require.Equal(t, http.StatusOK, signIn.Code)
	var session dto.TokenResponse
	require.NoError(t, json.Unmarshal(signIn.Body.Bytes(), &session))

	jsonBody, err := json.Marshal(dto.UpdateUserRequest{Password: "new-pass"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/auth/v1/user", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	oldSignIn := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "old-pass"}, nil)
	assert.Equal(t, http.StatusBadRequest, oldSignIn.Code)

	newSignIn := postJSON(t, app, "/auth/v1/token?grant_type=password",
		dto.TokenRequest{Email: "jane@example.com", Password: "new-pass"}, nil)
	assert.Equal(t, http.StatusOK, newSignIn.Code)
}

func TestStub_IDTokenGrant_CreatesAccount(t *testing.T) {
	jwtSvc := services.NewJWTService("id-token-signer", 15*time.Minute, 24*time.Hour)
	_, app := setupStubTest(t)

	// Any JWT with an email claim is accepted; the signer does not matter.
	pair, err := jwtSvc.GenerateTokenPair(uuid.New(), "federated@example.com")
	require.NoError(t, err)

	rec := postJSON(t, app, "/auth/v1/token?grant_type=id_token",
		dto.TokenRequest{IDToken: pair.AccessToken, Provider: "google"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "federated@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.AccessToken)
}
