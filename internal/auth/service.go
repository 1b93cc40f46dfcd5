package auth

import (
	"context"
	"errors"
	"log"
	"time"
)

const appName = "Easyvet"

// mailTimeout bounds fire-and-forget deliveries detached from the request.
const mailTimeout = 15 * time.Second

// Service orchestrates the account lifecycle: signup, signin, token
// rotation, email verification and password recovery. It owns no state
// beyond its collaborators; uniqueness guarantees come from the store.
type Service struct {
	store    Store
	issuer   *Issuer
	hasher   *Hasher
	notifier Notifier
	logger   *log.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLogger overrides the logger used for swallowed mail failures.
func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, issuer *Issuer, hasher *Hasher, notifier Notifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		issuer:   issuer,
		hasher:   hasher,
		notifier: notifier,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates an account from local credentials, issues a session and
// fires a verification mail. The mail is a side effect: its failure never
// fails the signup.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*Auth, error) {
	return s.signup(ctx, email, password, name, nil)
}

// Register is signup plus atomic tenant creation: the account, the clinic
// and the admin membership are persisted in one transaction. A uniqueness
// conflict inside that transaction is reported as ErrCredentialsIncorrect
// so the caller cannot tell which field collided.
func (s *Service) Register(ctx context.Context, email, password, name string, tenant TenantRegistration) (*Auth, error) {
	return s.signup(ctx, email, password, name, &tenant)
}

func (s *Service) signup(ctx context.Context, email, password, name string, tenant *TenantRegistration) (*Auth, error) {
	accounts := s.store.Accounts()

	_, err := accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, ErrNotFound):
		return nil, internalErr("lookup email", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalErr("hash password", err)
	}

	account := &Account{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
	}
	if tenant == nil {
		err = accounts.Create(ctx, account)
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrEmailTaken
		}
	} else {
		err = accounts.CreateWithTenant(ctx, account, &Tenant{
			BusinessID: tenant.BusinessID,
			Name:       tenant.Name,
		})
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrCredentialsIncorrect
		}
	}
	if err != nil {
		return nil, internalErr("create account", err)
	}

	tokens, err := s.issueSession(ctx, account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	s.sendVerificationMail(ctx, account)

	return &Auth{
		Tokens: tokens,
		User:   UserInfo{Email: account.Email, Name: account.Name},
	}, nil
}

// Signin authenticates local credentials and rotates in a new session.
// Unknown email and wrong password produce the same ErrAccessDenied; an
// unverified email gets a distinct message but still no existence hint.
func (s *Service) Signin(ctx context.Context, email, password string) (*Auth, error) {
	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, internalErr("lookup email", err)
	}
	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, ErrAccessDenied
	}

	tokens, err := s.issueSession(ctx, account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	return &Auth{
		Tokens: tokens,
		User:   UserInfo{Email: account.Email, Name: account.Name},
	}, nil
}

// Logout clears the stored refresh hash. Idempotent: a second call is a
// no-op and still succeeds.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	if err := s.store.Accounts().ClearRefreshHash(ctx, accountID); err != nil {
		return internalErr("clear refresh hash", err)
	}
	return nil
}

// Refresh exchanges a still-valid refresh token for a new pair, rotating
// the stored hash so the presented token becomes unusable. Two concurrent
// calls with the same token can both pass verification before either
// writes; rotation is best-effort, not exactly-once.
func (s *Service) Refresh(ctx context.Context, accountID, refreshToken string) (Tokens, error) {
	account, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tokens{}, ErrAccessDenied
		}
		return Tokens{}, internalErr("lookup account", err)
	}
	if account.RefreshHash == "" {
		return Tokens{}, ErrAccessDenied
	}
	if !s.hasher.Verify(refreshToken, account.RefreshHash) {
		return Tokens{}, ErrAccessDenied
	}
	return s.issueSession(ctx, account.ID, account.Email)
}

// ResendVerificationEmail re-issues and re-sends the confirmation mail for
// an existing account. No state change; delivery failures are swallowed.
func (s *Service) ResendVerificationEmail(ctx context.Context, accountID string) error {
	account, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAccessDenied
		}
		return internalErr("lookup account", err)
	}
	s.sendVerificationMail(ctx, account)
	return nil
}

// VerifyEmail confirms the account referenced by a verification token.
// Re-verifying an already-verified account succeeds silently.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	claims, err := s.issuer.VerifyVerification(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	accounts := s.store.Accounts()
	account, err := accounts.Find(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, internalErr("lookup account", err)
	}
	if err := accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return nil, internalErr("mark verified", err)
	}
	account.EmailVerified = true
	return account, nil
}

// ChangePassword replaces the password after re-checking the old one. The
// stored refresh hash is left untouched, so existing sessions survive a
// password change.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) (*Account, error) {
	accounts := s.store.Accounts()
	account, err := accounts.Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, internalErr("lookup account", err)
	}
	if !s.hasher.Verify(oldPassword, account.PasswordHash) {
		return nil, ErrUnauthorizedPassword
	}
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, internalErr("hash password", err)
	}
	if err := accounts.UpdatePassword(ctx, account.ID, passwordHash); err != nil {
		return nil, internalErr("update password", err)
	}
	account.PasswordHash = passwordHash
	return account, nil
}

// SendForgotPasswordLink issues a reset token, upserts the pending request
// for the email and mails the reset link. An unknown email returns silently
// with no mail sent, so the endpoint cannot be used to enumerate accounts.
func (s *Service) SendForgotPasswordLink(ctx context.Context, email string) error {
	_, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return internalErr("lookup email", err)
	}

	token, err := s.issuer.ResetToken(email)
	if err != nil {
		return internalErr("sign reset token", err)
	}
	if err := s.store.PasswordResets().Upsert(ctx, email, token); err != nil {
		return internalErr("upsert reset request", err)
	}
	err = s.notifier.Send(ctx, email, TemplateResetPassword, map[string]string{
		"name":     email,
		"url":      s.issuer.ResetLink(token),
		"app_name": appName,
	})
	if err != nil {
		return internalErr("send reset mail", err)
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password. The
// token must decode to the exact email the pending request was issued for;
// any desync between the two is treated as an invalid token. The request
// record itself is not deleted afterwards, so the token stays formally
// valid until its signature expires.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (*Account, error) {
	request, err := s.store.PasswordResets().FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, internalErr("lookup reset request", err)
	}
	claims, err := s.issuer.VerifyReset(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Email != request.Email {
		return nil, ErrInvalidToken
	}

	accounts := s.store.Accounts()
	account, err := accounts.FindByEmail(ctx, request.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, internalErr("lookup email", err)
	}
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, internalErr("hash password", err)
	}
	if err := accounts.UpdatePassword(ctx, account.ID, passwordHash); err != nil {
		return nil, internalErr("update password", err)
	}
	account.PasswordHash = passwordHash
	return account, nil
}

// issueSession signs a fresh pair and rotates the stored refresh hash.
func (s *Service) issueSession(ctx context.Context, accountID, email string) (Tokens, error) {
	tokens, err := s.issuer.SessionTokens(accountID, email)
	if err != nil {
		return Tokens{}, internalErr("sign session", err)
	}
	refreshHash, err := s.hasher.Hash(tokens.RefreshToken)
	if err != nil {
		return Tokens{}, internalErr("hash refresh token", err)
	}
	if err := s.store.Accounts().UpdateRefreshHash(ctx, accountID, refreshHash); err != nil {
		return Tokens{}, internalErr("store refresh hash", err)
	}
	return tokens, nil
}

// sendVerificationMail delivers the confirmation link detached from the
// calling request. Failures are logged and never surfaced.
func (s *Service) sendVerificationMail(ctx context.Context, account *Account) {
	token, err := s.issuer.VerificationToken(account.ID)
	if err != nil {
		s.logger.Printf("auth: sign verification token for %s: %v", account.ID, err)
		return
	}
	url := s.issuer.VerificationLink(token)

	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, mailTimeout)
		defer cancel()
		err := s.notifier.Send(ctx, account.Email, TemplateConfirmation, map[string]string{
			"name":     account.Name,
			"url":      url,
			"app_name": appName,
		})
		if err != nil {
			s.logger.Printf("auth: send verification mail to account %s: %v", account.ID, err)
		}
	}()
}
