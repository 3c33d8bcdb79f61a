package httpapi

import (
	"errors"
	"net/http"

	"gatekeep.dev/internal/audit"
	"gatekeep.dev/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	switch {
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"user_id": user.ID, "email": user.Email})
	writeSuccess(w, http.StatusOK, "Register successful", map[string]any{"user": user})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Login(r.Context(), req.Email, req.Password, deviceInfo(r))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": res.User.ID})
	writeSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"token":        res.Token,
		"refreshToken": res.RefreshToken,
		"user":         res.User,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := auth.RefreshTokenFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	res, err := a.svc.Refresh(r.Context(), raw, deviceInfo(r))
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusBadRequest, "Invalid refresh token")
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{"user_id": res.User.ID})
	writeSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"token":        res.Token,
		"refreshToken": res.RefreshToken,
		"user":         res.User,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User is not logged in")
		return
	}
	if err := a.svc.Logout(r.Context(), raw); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "User is not logged in")
			return
		}
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeSuccess(w, http.StatusOK, "Logged out successfully", map[string]any{
		"message": "Logged out successfully",
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := a.svc.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User retrieved successfully", map[string]any{"user": user})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	token, _ := auth.TokenFromContext(r.Context())
	sessions, err := a.svc.Sessions(r.Context(), userID, token)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Sessions retrieved successfully", map[string]any{"sessions": sessions})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := a.svc.ForgotPassword(r.Context(), req.Email)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, auth.ErrResendThrottled):
		writeError(w, http.StatusBadRequest, "You must wait 5 minutes before requesting a new token")
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.forgot_password", nil)
	writeSuccess(w, http.StatusOK, "Forgot password successful", map[string]any{"token": token})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.ResetPassword(r.Context(), req.Token, req.Password)
	switch {
	case errors.Is(err, auth.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "Token not found")
		return
	case errors.Is(err, auth.ErrTokenAlreadyUsed):
		writeError(w, http.StatusBadRequest, "Token already used")
		return
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, "Token expired")
		return
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "Invalid token")
		return
	case errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusBadRequest, "Account not found")
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.reset_password", nil)
	writeSuccess(w, http.StatusOK, "Reset password successful", true)
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.VerifyEmail(r.Context(), req.Token)
	switch {
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenAlreadyUsed):
		writeError(w, http.StatusBadRequest, "Invalid token")
		return
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, "Token expired")
		return
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, auth.ErrEmailAlreadyVerified):
		writeError(w, http.StatusBadRequest, "Email already verified")
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.verify_email", map[string]any{"user_id": user.ID})
	writeSuccess(w, http.StatusOK, "Email verified successfully", map[string]any{"user": user})
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := a.svc.ResendVerification(r.Context(), req.Email)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, auth.ErrEmailAlreadyVerified):
		writeError(w, http.StatusBadRequest, "Email already verified")
		return
	case errors.Is(err, auth.ErrResendThrottled):
		writeError(w, http.StatusBadRequest, "You must wait 5 minutes before requesting a new verification email")
		return
	case err != nil:
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.resend_verification", nil)
	writeSuccess(w, http.StatusOK, "Email verification sent successfully", map[string]any{"token": token})
}
