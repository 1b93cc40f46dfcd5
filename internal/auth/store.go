package auth

import "context"

// Store describes the persistence operations required by the auth service.
// Implementations map storage-level failures to the typed results below:
// a miss is ErrNotFound and a unique-constraint conflict is ErrDuplicate,
// so the service switches on error kinds instead of sniffing driver codes.
type Store interface {
	Accounts() AccountStore
	Tenants() TenantStore
	PasswordResets() PasswordResetStore
}

// AccountStore manages accounts.
type AccountStore interface {
	// Create persists a new account. ErrDuplicate on email conflict.
	Create(ctx context.Context, a *Account) error

	// CreateWithTenant persists the account, the tenant and an admin
	// membership in a single transaction. Partial creation is not
	// possible; any uniqueness conflict inside the transaction is
	// reported as ErrDuplicate.
	CreateWithTenant(ctx context.Context, a *Account, t *Tenant) error

	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRefreshHash(ctx context.Context, id, refreshHash string) error

	// ClearRefreshHash nulls the stored refresh hash only where it is
	// currently set. Clearing an already-cleared account is a no-op,
	// not an error.
	ClearRefreshHash(ctx context.Context, id string) error

	// MarkEmailVerified flips the verified flag to true. Idempotent.
	MarkEmailVerified(ctx context.Context, id string) error
}

// TenantStore manages clinics.
type TenantStore interface {
	Find(ctx context.Context, id string) (*Tenant, error)
	FindByBusinessID(ctx context.Context, businessID string) (*Tenant, error)
}

// PasswordResetStore keeps at most one pending reset request per email.
type PasswordResetStore interface {
	// Upsert creates the request or overwrites the previous token for
	// the email in one atomic write.
	Upsert(ctx context.Context, email, token string) error

	FindByToken(ctx context.Context, token string) (*PasswordReset, error)
}
