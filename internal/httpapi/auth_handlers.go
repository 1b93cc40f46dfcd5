package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"easyvet.app/internal/audit"
	"easyvet.app/internal/auth"
	"easyvet.app/internal/obs"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	TenantBusinessID string `json:"tenant_business_id"`
	TenantName       string `json:"tenant_name"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "email, password and name are required")
		return
	}

	result, err := a.svc.Signup(r.Context(), req.Email, req.Password, req.Name)
	obs.AuthOperation("signup", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{"email": req.Email})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" ||
		req.TenantBusinessID == "" || req.TenantName == "" {
		writeError(w, r, http.StatusBadRequest, "email, password, name, tenant_business_id and tenant_name are required")
		return
	}

	result, err := a.svc.Register(r.Context(), req.Email, req.Password, req.Name, auth.TenantRegistration{
		BusinessID: req.TenantBusinessID,
		Name:       req.TenantName,
	})
	obs.AuthOperation("register", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"email":              req.Email,
		"tenant_business_id": req.TenantBusinessID,
	})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := a.svc.Signin(r.Context(), req.Email, req.Password)
	obs.AuthOperation("signin", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{"email": req.Email})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sub, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	err := a.svc.Logout(r.Context(), sub.AccountID)
	obs.AuthOperation("logout", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The subject comes from the presented refresh token itself; the
	// service then matches the token against the stored hash.
	claims, err := a.issuer.VerifyRefresh(req.RefreshToken)
	if err != nil {
		obs.AuthOperation("refresh", outcome(auth.ErrAccessDenied))
		writeError(w, r, http.StatusForbidden, auth.ErrAccessDenied.Error())
		return
	}

	tokens, err := a.svc.Refresh(r.Context(), claims.Subject, req.RefreshToken)
	obs.AuthOperation("refresh", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{"account_id": claims.Subject})
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sub, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	err := a.svc.ResendVerificationEmail(r.Context(), sub.AccountID)
	obs.AuthOperation("resend_verification", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/v1/auth/email/verify/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusBadRequest, auth.ErrInvalidToken.Error())
		return
	}

	account, err := a.svc.VerifyEmail(r.Context(), token)
	obs.AuthOperation("verify_email", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email_verified", map[string]any{"account_id": account.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"email":          account.Email,
		"email_verified": account.EmailVerified,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sub, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "old_password and new_password are required")
		return
	}

	_, err := a.svc.ChangePassword(r.Context(), sub.AccountID, req.OldPassword, req.NewPassword)
	obs.AuthOperation("change_password", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	err := a.svc.SendForgotPasswordLink(r.Context(), req.Email)
	obs.AuthOperation("forgot_password", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	// Identical response for known and unknown emails.
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "token and new_password are required")
		return
	}

	account, err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword)
	obs.AuthOperation("reset_password", outcome(err))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", map[string]any{"account_id": account.ID})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeAuthError maps domain error kinds onto HTTP statuses. Anything that
// is not a domain error stays a generic 500: internals never leak.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAccessDenied),
		errors.Is(err, auth.ErrEmailNotVerified),
		errors.Is(err, auth.ErrCredentialsIncorrect):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUnauthorizedPassword):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	default:
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "auth operation failed",
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, auth.ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, auth.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, auth.ErrCredentialsIncorrect):
		return "credentials_incorrect"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrUnauthorizedPassword):
		return "unauthorized_password"
	default:
		return "internal_error"
	}
}
