package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"easyvet.app/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts() AccountStore             { return &accountStore{db: s.db} }
func (s *PGStore) Tenants() TenantStore               { return &tenantStore{db: s.db} }
func (s *PGStore) PasswordResets() PasswordResetStore { return &resetStore{db: s.db} }

const uniqueViolation = "23505"

// storeErr maps driver errors onto the typed results the service switches
// on: a unique-constraint violation becomes ErrDuplicate, a missing row
// ErrNotFound, everything else passes through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// Account store ------------------------------------------------------------

type accountStore struct{ db *sql.DB }

const accountColumns = `id, email, name, password_hash, email_verified, coalesce(refresh_hash, ''), created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.EmailVerified, &a.RefreshHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, storeErr(err)
	}
	return &a, nil
}

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, email, name, password_hash) values($1,$2,$3,$4)`,
		a.ID, a.Email, a.Name, a.PasswordHash,
	)
	return storeErr(err)
}

func (s *accountStore) CreateWithTenant(ctx context.Context, a *Account, t *Tenant) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	t.ResponsibleAccountID = a.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into accounts(id, email, name, password_hash) values($1,$2,$3,$4)`,
		a.ID, a.Email, a.Name, a.PasswordHash,
	); err != nil {
		return storeErr(err)
	}
	if _, err := tx.ExecContext(ctx,
		`insert into tenants(id, business_id, name, responsible_account_id) values($1,$2,$3,$4)`,
		t.ID, t.BusinessID, t.Name, t.ResponsibleAccountID,
	); err != nil {
		return storeErr(err)
	}
	if _, err := tx.ExecContext(ctx,
		`insert into memberships(account_id, tenant_id, admin) values($1,$2,true)`,
		a.ID, t.ID,
	); err != nil {
		return storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	a.Memberships = []Membership{{AccountID: a.ID, TenantID: t.ID, Admin: true}}
	return nil
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id))
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email))
}

func (s *accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.update(ctx,
		`update accounts set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
}

func (s *accountStore) UpdateRefreshHash(ctx context.Context, id, refreshHash string) error {
	return s.update(ctx,
		`update accounts set refresh_hash=$2, updated_at=now() where id=$1`, id, refreshHash)
}

func (s *accountStore) ClearRefreshHash(ctx context.Context, id string) error {
	// Conditional on a non-null hash so a second logout is a clean no-op.
	_, err := s.db.ExecContext(ctx,
		`update accounts set refresh_hash=null, updated_at=now() where id=$1 and refresh_hash is not null`, id)
	return storeErr(err)
}

func (s *accountStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.update(ctx,
		`update accounts set email_verified=true, updated_at=now() where id=$1`, id)
}

func (s *accountStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Tenant store -------------------------------------------------------------

type tenantStore struct{ db *sql.DB }

const tenantColumns = `id, business_id, name, responsible_account_id, created_at, updated_at`

func scanTenant(row *sql.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.BusinessID, &t.Name, &t.ResponsibleAccountID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, storeErr(err)
	}
	return &t, nil
}

func (s *tenantStore) Find(ctx context.Context, id string) (*Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx,
		`select `+tenantColumns+` from tenants where id=$1`, id))
}

func (s *tenantStore) FindByBusinessID(ctx context.Context, businessID string) (*Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx,
		`select `+tenantColumns+` from tenants where business_id=$1`, businessID))
}

// Password reset store -----------------------------------------------------

type resetStore struct{ db *sql.DB }

func (s *resetStore) Upsert(ctx context.Context, email, token string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into password_resets(email, token) values($1,$2)
		 on conflict (email) do update set token=excluded.token, updated_at=now()`,
		email, token,
	)
	return storeErr(err)
}

func (s *resetStore) FindByToken(ctx context.Context, token string) (*PasswordReset, error) {
	row := s.db.QueryRowContext(ctx,
		`select email, token, created_at, updated_at from password_resets where token=$1`, token)
	var r PasswordReset
	if err := row.Scan(&r.Email, &r.Token, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, storeErr(err)
	}
	return &r, nil
}
