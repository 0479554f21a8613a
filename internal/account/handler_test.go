package account

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerEnv struct {
	*testEnv
	router chi.Router
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	env := newTestEnv(t)
	handler := NewHandler(env.svc, env.config, newTestLogger(t))
	mw := NewMiddleware(env.tokens)

	router := chi.NewRouter()
	handler.Routes(router, mw)

	return &handlerEnv{testEnv: env, router: router}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	body := decodeBody(t, rec)
	code, _ := body["code"].(string)
	return code
}

func (e *handlerEnv) login(t *testing.T, identifier, password string) (string, string) {
	rec := e.do(t, http.MethodPost, "/login", map[string]string{
		"username": identifier,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func TestHandler_Register(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	account, ok := body["account"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", account["username"])
	assert.Equal(t, false, account["isVerified"])
	// The verification token travels by email, never in the response.
	assert.NotContains(t, rec.Body.String(), env.notifier.last().Payload.Token)

	rec = env.do(t, http.MethodPost, "/register", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/register", map[string]string{
		"username": "x",
		"email":    "x@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_VerifyEmail(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := env.notifier.last().Payload.Token

	// Login before verification is forbidden.
	rec = env.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_VERIFIED", errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/verify-email/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A double-clicked email link is still a success.
	rec = env.do(t, http.MethodGet, "/verify-email/"+token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/verify-email/bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))
}

func TestHandler_Login(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")

	rec := env.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	names := make(map[string]*http.Cookie, len(cookies))
	for _, c := range cookies {
		names[c.Name] = c
	}
	require.Contains(t, names, "accessToken")
	require.Contains(t, names, "refreshToken")
	assert.True(t, names["accessToken"].HttpOnly)
	assert.True(t, names["refreshToken"].HttpOnly)

	rec = env.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/login", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RefreshToken(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")
	_, refresh := env.login(t, "alice", "password123")

	env.clock.Advance(time.Minute)
	rec := env.do(t, http.MethodPost, "/refresh-token", map[string]string{
		"refreshToken": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	rotated, _ := body["refreshToken"].(string)
	require.NotEmpty(t, rotated)
	require.NotEqual(t, refresh, rotated)

	// The consumed token cannot be replayed.
	rec = env.do(t, http.MethodPost, "/refresh-token", map[string]string{
		"refreshToken": refresh,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The rotated one works, from the cookie this time.
	rec = env.do(t, http.MethodPost, "/refresh-token", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: rotated})
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Logout(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")
	access, refresh := env.login(t, "alice", "password123")

	rec := env.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/logout", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/refresh-token", map[string]string{
		"refreshToken": refresh,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_PasswordReset(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")

	rec := env.do(t, http.MethodPost, "/forgot-password", map[string]string{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := env.notifier.last().Payload.Token

	rec = env.do(t, http.MethodGet, "/reset-password/"+token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/reset-password/"+token, map[string]string{
		"newPassword": "newpassword123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The link died with its first use.
	rec = env.do(t, http.MethodGet, "/reset-password/"+token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.login(t, "alice", "newpassword123")
}

func TestHandler_PasswordReset_expiredLink(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")

	rec := env.do(t, http.MethodPost, "/forgot-password", map[string]string{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token := env.notifier.last().Payload.Token

	env.clock.Advance(2 * time.Hour)

	rec = env.do(t, http.MethodGet, "/reset-password/"+token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, rec))
}

func TestHandler_ChangePassword(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")
	access, _ := env.login(t, "alice", "password123")

	rec := env.do(t, http.MethodPost, "/change-password", map[string]string{
		"oldPassword": "wrongpassword",
		"newPassword": "newpassword123",
	}, withBearer(access))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/change-password", map[string]string{
		"oldPassword": "password123",
		"newPassword": "newpassword123",
	}, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.login(t, "alice", "newpassword123")
}

func TestHandler_DeactivateAndRestore(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")
	access, refresh := env.login(t, "alice", "password123")

	rec := env.do(t, http.MethodDelete, "/account", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Login and refresh are both dead while deactivated.
	rec = env.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_DEACTIVATED", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/refresh-token", map[string]string{
		"refreshToken": refresh,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/restore-account", map[string]string{
		"username": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := env.notifier.last().Payload.Token

	rec = env.do(t, http.MethodGet, "/restore-account/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.login(t, "alice", "password123")
}

func TestHandler_RestorePastDeadline(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")
	access, _ := env.login(t, "alice", "password123")

	rec := env.do(t, http.MethodDelete, "/account", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/restore-account", map[string]string{
		"username": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token := env.notifier.last().Payload.Token

	env.clock.Advance(31 * 24 * time.Hour)

	rec = env.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "ACCOUNT_GONE", errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/restore-account/"+token, nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = env.do(t, http.MethodPost, "/restore-account", map[string]string{
		"username": "alice",
	})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHandler_RequireAuth(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerActive(t, "alice", "alice@example.com", "password123")
	access, _ := env.login(t, "alice", "password123")

	t.Run("missing credentials", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/logout", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/logout", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Token "+access)
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired access token", func(t *testing.T) {
		env.clock.Advance(env.config.AccessTokenTTL + time.Minute)
		rec := env.do(t, http.MethodPost, "/logout", nil, withBearer(access))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		fresh, _ := env.login(t, "alice", "password123")
		rec := env.do(t, http.MethodPost, "/logout", nil, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "accessToken", Value: fresh})
		})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}
