package auth

import "time"

// Account represents a person able to sign in to the platform.
type Account struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	EmailVerified bool
	// RefreshHash holds the bcrypt digest of the most recently issued
	// refresh token, or empty when the account is logged out. Overwritten
	// on every issuance; never appended to.
	RefreshHash string
	Memberships []Membership
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tenant is a clinic operating on the platform. BusinessID is the clinic's
// registration number (CNPJ) and is unique across tenants.
type Tenant struct {
	ID                   string
	BusinessID           string
	Name                 string
	ResponsibleAccountID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Membership links an account to a tenant. The account that creates a tenant
// at registration time is its admin.
type Membership struct {
	AccountID string
	TenantID  string
	Admin     bool
	CreatedAt time.Time
}

// PasswordReset is the single pending reset request for an email. Each
// forgot-password call overwrites the previous token for that email.
type PasswordReset struct {
	Email     string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tokens is a freshly signed access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserInfo is the public slice of an account returned alongside tokens.
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Auth is the result of a successful signup, registration or signin.
type Auth struct {
	Tokens
	User UserInfo `json:"user"`
}

// TenantRegistration is the optional tenant-creation payload accepted by
// Register. The tenant is created atomically with the account.
type TenantRegistration struct {
	BusinessID string
	Name       string
}
