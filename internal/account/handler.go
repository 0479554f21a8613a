package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/config"
)

const (
	errCodeValidation         = "VALIDATION_ERROR"
	errCodeInvalidCredentials = "INVALID_CREDENTIALS"
	errCodeInvalidToken       = "INVALID_TOKEN"
	errCodeTokenExpired       = "TOKEN_EXPIRED"
	errCodeNotVerified        = "NOT_VERIFIED"
	errCodeDeactivated        = "ACCOUNT_DEACTIVATED"
	errCodeGone               = "ACCOUNT_GONE"
	errCodeNotFound           = "NOT_FOUND"
	errCodeConflict           = "STATE_CONFLICT"
	errCodeInternal           = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type accountResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
}

func toAccountResponse(a *Account) accountResponse {
	return accountResponse{
		ID:         a.ID.String(),
		Username:   a.Username,
		Email:      a.Email,
		IsVerified: a.IsVerified,
	}
}

// Handler is the HTTP adapter over the account service. It only parses
// requests, delegates lifecycle decisions, and renders results; all state
// reasoning lives in Service.
type Handler struct {
	service *Service
	config  *config.AuthConfig
	log     *zap.Logger
}

func NewHandler(service *Service, config *config.AuthConfig, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		config:  config,
		log:     log,
	}
}

func (h *Handler) Routes(r chi.Router, mw *Middleware) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh-token", h.RefreshToken)
	r.Get("/verify-email/{token}", h.VerifyEmail)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Get("/reset-password/{token}", h.ValidateResetToken)
	r.Post("/reset-password/{token}", h.ResetPassword)
	r.Post("/restore-account", h.RequestRestoration)
	r.Get("/restore-account/{token}", h.Restore)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)
		r.Post("/logout", h.Logout)
		r.Post("/change-password", h.ChangePassword)
		r.Delete("/account", h.Deactivate)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{errCodeValidation, err.Error()})
	case errors.Is(err, ErrAccountExists):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{errCodeValidation, err.Error()})
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidCredentials, err.Error()})
	case errors.Is(err, ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, err.Error()})
	case errors.Is(err, ErrTokenExpired):
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeTokenExpired, err.Error()})
	case errors.Is(err, ErrNotVerified):
		writeJSON(w, http.StatusForbidden, errorResponse{errCodeNotVerified, err.Error()})
	case errors.Is(err, ErrDeactivated):
		writeJSON(w, http.StatusForbidden, errorResponse{errCodeDeactivated, err.Error()})
	case errors.Is(err, ErrAccountGone):
		writeJSON(w, http.StatusGone, errorResponse{errCodeGone, err.Error()})
	case errors.Is(err, ErrStateConflict):
		writeJSON(w, http.StatusConflict, errorResponse{errCodeConflict, err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{errCodeNotFound, err.Error()})
	default:
		h.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{errCodeInternal, "an internal error occurred"})
	}
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    pair.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{"accessToken", "refreshToken"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeValidation, "invalid request body"})
		return
	}

	account, err := h.service.Register(req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Account accountResponse `json:"account"`
		Message string          `json:"message"`
	}{
		Account: toAccountResponse(account),
		Message: "registered successfully, please check your email to verify your account",
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeValidation, "invalid request body"})
		return
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	account, pair, err := h.service.Login(identifier, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, struct {
		Account      accountResponse `json:"account"`
		AccessToken  string          `json:"accessToken"`
		RefreshToken string          `json:"refreshToken"`
	}{
		Account:      toAccountResponse(account),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, "authentication required"})
		return
	}

	if err := h.service.Logout(principal.ID); err != nil {
		h.writeError(w, err)
		return
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{"logged out successfully"})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, "refresh token is required"})
		return
	}

	pair, err := h.service.Tokens().Rotate(presented)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.VerifyEmail(chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Account accountResponse `json:"account"`
		Message string          `json:"message"`
	}{
		Account: toAccountResponse(account),
		Message: "email verified",
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeValidation, "invalid request body"})
		return
	}

	if err := h.service.ForgotPassword(req.Email); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{"password reset instructions sent to your email"})
}

func (h *Handler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ValidateResetToken(chi.URLParam(r, "token")); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{"token is valid"})
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeValidation, "invalid request body"})
		return
	}

	if err := h.service.ResetPassword(chi.URLParam(r, "token"), req.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{"password reset successful"})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, "authentication required"})
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeValidation, "invalid request body"})
		return
	}

	if err := h.service.ChangePassword(principal.ID, req.OldPassword, req.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{"password changed successfully"})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, "authentication required"})
		return
	}

	if err := h.service.Deactivate(principal.ID); err != nil {
		h.writeError(w, err)
		return
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{"account deactivated, you can restore it within the grace period"})
}

type restoreRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *Handler) RequestRestoration(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errCodeValidation, "invalid request body"})
		return
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	if err := h.service.RequestRestoration(identifier); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{"restoration instructions sent to your email"})
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Restore(chi.URLParam(r, "token")); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{"account restored successfully, you can now log in"})
}
