package httpapi

import (
	"net/http"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer abc  ", "abc", true},
		{"", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || token != tc.token) {
			t.Fatalf("header %q: got (%q, %v), want %q", tc.header, token, err, tc.token)
		}
		if !tc.ok && err == nil {
			t.Fatalf("header %q: expected error", tc.header)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{
		"/v1/auth/signup",
		"/v1/auth/register",
		"/v1/auth/signin",
		"/v1/auth/refresh",
		"/v1/auth/password/forgot",
		"/v1/auth/password/reset",
		"/v1/auth/email/verify/some-token",
		"/healthz",
		"/readyz",
		"/metrics",
		"/v1/info",
		"/",
	}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Fatalf("%s must be public", p)
		}
	}
	protected := []string{
		"/v1/auth/logout",
		"/v1/auth/email/resend",
		"/v1/auth/password/change",
		"/v1/accounts",
	}
	for _, p := range protected {
		if isPublicPath(p) {
			t.Fatalf("%s must not be public", p)
		}
	}
}

func TestWithAuthRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/logout", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed token: status %d, want 401", rec.Code)
	}

	// A refresh token is signed with the refresh secret and must not open
	// access-protected routes.
	_, rt := env.signup(t, "a@x.com", "Secret1", "A")
	rec = env.do(t, http.MethodPost, "/v1/auth/logout", rt, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token as access token: status %d, want 401", rec.Code)
	}
}
