package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"easyvet.app/internal/auth"
	"easyvet.app/internal/ids"
)

// fakeStore is an in-memory auth.Store for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	tenants  map[string]*auth.Tenant
	resets   map[string]*auth.PasswordReset
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*auth.Account),
		tenants:  make(map[string]*auth.Tenant),
		resets:   make(map[string]*auth.PasswordReset),
	}
}

func (s *fakeStore) Accounts() auth.AccountStore             { return s }
func (s *fakeStore) Tenants() auth.TenantStore               { return fakeTenantStore{s} }
func (s *fakeStore) PasswordResets() auth.PasswordResetStore { return s }

// fakeTenantStore gives fakeStore an auth.TenantStore view: Find must
// return a *auth.Tenant, while the account-level Find returns *auth.Account.
type fakeTenantStore struct{ *fakeStore }

func (s fakeTenantStore) Find(ctx context.Context, id string) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *fakeStore) Create(ctx context.Context, a *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return auth.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	copied := *a
	s.accounts[a.ID] = &copied
	return nil
}

func (s *fakeStore) CreateWithTenant(ctx context.Context, a *auth.Account, t *auth.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return auth.ErrDuplicate
		}
	}
	for _, existing := range s.tenants {
		if existing.BusinessID == t.BusinessID {
			return auth.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	t.ResponsibleAccountID = a.ID
	a.Memberships = []auth.Membership{{AccountID: a.ID, TenantID: t.ID, Admin: true}}
	copiedAccount := *a
	copiedTenant := *t
	s.accounts[a.ID] = &copiedAccount
	s.tenants[t.ID] = &copiedTenant
	return nil
}

func (s *fakeStore) Find(ctx context.Context, id string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (s *fakeStore) UpdateRefreshHash(ctx context.Context, id, refreshHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.RefreshHash = refreshHash
	return nil
}

func (s *fakeStore) ClearRefreshHash(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		a.RefreshHash = ""
	}
	return nil
}

func (s *fakeStore) MarkEmailVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.EmailVerified = true
	return nil
}

func (s *fakeStore) FindByBusinessID(ctx context.Context, businessID string) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.BusinessID == businessID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeStore) Upsert(ctx context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if r, ok := s.resets[email]; ok {
		r.Token = token
		r.UpdatedAt = now
		return nil
	}
	s.resets[email] = &auth.PasswordReset{Email: email, Token: token, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *fakeStore) FindByToken(ctx context.Context, token string) (*auth.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resets {
		if r.Token == token {
			copied := *r
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeStore) resetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resets[email]; ok {
		return r.Token
	}
	return ""
}

type nullNotifier struct{}

func (nullNotifier) Send(ctx context.Context, recipient, template string, data map[string]string) error {
	return nil
}

type testEnv struct {
	api     *API
	handler http.Handler
	store   *fakeStore
	issuer  *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	issuer, err := auth.NewIssuer(auth.TokenConfig{
		ATSecret:           "at-secret",
		ATExpiry:           15 * time.Minute,
		RTSecret:           "rt-secret",
		RTExpiry:           7 * 24 * time.Hour,
		SharedSecret:       "shared-secret",
		VerificationExpiry: 24 * time.Hour,
		FrontendBaseURL:    "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	store := newFakeStore()
	svc := auth.NewService(store, issuer, auth.NewHasher(), nullNotifier{})
	api := New(Options{Service: svc, Issuer: issuer, Version: "test"})
	return &testEnv{api: api, handler: api.Handler(), store: store, issuer: issuer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *testEnv) signup(t *testing.T, email, password, name string) (accessToken, refreshToken string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": email, "password": password, "name": name,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	at, _ := body["access_token"].(string)
	rt, _ := body["refresh_token"].(string)
	if at == "" || rt == "" {
		t.Fatalf("signup response missing tokens: %v", body)
	}
	return at, rt
}

func (e *testEnv) verifyAccount(t *testing.T, email string) string {
	t.Helper()
	account, err := e.store.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if err := e.store.MarkEmailVerified(context.Background(), account.ID); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	return account.ID
}

func TestHandleSignup(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "Secret1", "name": "A",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	if user["email"] != "a@x.com" || user["name"] != "A" {
		t.Fatalf("unexpected user payload: %v", body)
	}
	if at, _ := body["access_token"].(string); at == "" {
		t.Fatalf("missing tokens: %v", body)
	}
}

func TestHandleSignupDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "Secret1", "A")

	rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "Other2", "name": "B",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if !strings.Contains(body["error"].(string), "already in use") {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestHandleSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "a@x.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "Secret1", "name": "A", "extra": "nope",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/auth/signup", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: status %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow header %q, want POST", allow)
	}
}

func TestHandleRegister(t *testing.T) {
	env := newTestEnv(t)
	payload := map[string]string{
		"email": "a@x.com", "password": "Secret1", "name": "A",
		"tenant_business_id": "00.000.000/0001-00", "tenant_name": "Clinica",
	}
	rec := env.do(t, http.MethodPost, "/v1/auth/register", "", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	// Same business id under another email is rejected without naming the
	// colliding field.
	payload["email"] = "b@x.com"
	rec = env.do(t, http.MethodPost, "/v1/auth/register", "", payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("collision: status %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if msg := body["error"].(string); strings.Contains(msg, "business") || strings.Contains(msg, "email") {
		t.Fatalf("error must not name the colliding field: %q", msg)
	}
}

func TestHandleSignin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "Secret1", "A")

	// Unverified email is refused before the password is considered.
	rec := env.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "a@x.com", "password": "Secret1",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified: status %d, want 403", rec.Code)
	}

	env.verifyAccount(t, "a@x.com")

	rec = env.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "a@x.com", "password": "Secret1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if at, _ := body["access_token"].(string); at == "" {
		t.Fatalf("missing tokens: %v", body)
	}

	// Wrong password and unknown email produce the same status and message.
	wrong := env.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "a@x.com", "password": "nope",
	})
	unknown := env.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "ghost@x.com", "password": "Secret1",
	})
	if wrong.Code != http.StatusForbidden || unknown.Code != http.StatusForbidden {
		t.Fatalf("statuses %d/%d, want 403/403", wrong.Code, unknown.Code)
	}
	if decodeBody(t, wrong)["error"] != decodeBody(t, unknown)["error"] {
		t.Fatal("signin failures must be indistinguishable")
	}
}

func TestHandleRefresh(t *testing.T) {
	env := newTestEnv(t)
	_, rt := env.signup(t, "a@x.com", "Secret1", "A")

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rt})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	newRT, _ := body["refresh_token"].(string)
	if newRT == "" || newRT == rt {
		t.Fatalf("expected a rotated refresh token, got %v", body)
	}

	// The consumed token is dead.
	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rt})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("reuse: status %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": "garbage"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("garbage token: status %d, want 403", rec.Code)
	}
}

func TestHandleLogout(t *testing.T) {
	env := newTestEnv(t)
	at, rt := env.signup(t, "a@x.com", "Secret1", "A")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/logout", at, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rt})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("refresh after logout: status %d, want 403", rec.Code)
	}
}

func TestHandleVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "Secret1", "A")
	account, err := env.store.FindByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	token, err := env.issuer.VerificationToken(account.ID)
	if err != nil {
		t.Fatalf("VerificationToken: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/v1/auth/email/verify/"+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["email_verified"] != true {
		t.Fatalf("unexpected body: %v", body)
	}

	rec = env.do(t, http.MethodGet, "/v1/auth/email/verify/garbage", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token: status %d, want 400", rec.Code)
	}
}

func TestHandleResendVerification(t *testing.T) {
	env := newTestEnv(t)
	at, _ := env.signup(t, "a@x.com", "Secret1", "A")

	rec := env.do(t, http.MethodPost, "/v1/auth/email/resend", at, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/email/resend", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", rec.Code)
	}
}

func TestHandleChangePassword(t *testing.T) {
	env := newTestEnv(t)
	at, _ := env.signup(t, "a@x.com", "Secret1", "A")

	rec := env.do(t, http.MethodPost, "/v1/auth/password/change", at, map[string]string{
		"old_password": "wrong", "new_password": "NewSecret2",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong old password: status %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/password/change", at, map[string]string{
		"old_password": "Secret1", "new_password": "NewSecret2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	env.verifyAccount(t, "a@x.com")
	rec = env.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "a@x.com", "password": "NewSecret2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin with new password: status %d", rec.Code)
	}
}

func TestHandleForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "Secret1", "A")

	known := env.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "a@x.com"})
	unknown := env.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "ghost@x.com"})
	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("statuses %d/%d, want 200/200", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatal("forgot-password responses must be indistinguishable")
	}
}

func TestHandleResetPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "Secret1", "A")
	rec := env.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "a@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: status %d", rec.Code)
	}
	token := env.store.resetToken("a@x.com")
	if token == "" {
		t.Fatal("no reset request stored")
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/password/reset", "", map[string]string{
		"token": token, "new_password": "NewSecret2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/password/reset", "", map[string]string{
		"token": "garbage", "new_password": "NewSecret2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token: status %d, want 400", rec.Code)
	}

	env.verifyAccount(t, "a@x.com")
	rec = env.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "a@x.com", "password": "NewSecret2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin with reset password: status %d", rec.Code)
	}
}
