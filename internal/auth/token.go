package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const issuerName = "easyvet"

// TokenConfig carries every secret and expiry the issuer needs. It is
// injected at construction; the issuer never reads process environment.
type TokenConfig struct {
	// Access / refresh session tokens, each signed with its own secret.
	ATSecret string
	ATExpiry time.Duration
	RTSecret string
	RTExpiry time.Duration

	// Email-verification and password-reset tokens share one secret.
	SharedSecret       string
	VerificationExpiry time.Duration

	// FrontendBaseURL is the base used to build verification and reset
	// links embedded in outgoing mail.
	FrontendBaseURL string
}

func (c TokenConfig) validate() error {
	switch {
	case strings.TrimSpace(c.ATSecret) == "":
		return errors.New("access token secret is required")
	case strings.TrimSpace(c.RTSecret) == "":
		return errors.New("refresh token secret is required")
	case strings.TrimSpace(c.SharedSecret) == "":
		return errors.New("shared token secret is required")
	case c.ATExpiry <= 0 || c.RTExpiry <= 0 || c.VerificationExpiry <= 0:
		return errors.New("token expiries must be greater than zero")
	}
	return nil
}

// SessionClaims is the payload carried by access and refresh tokens.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// VerificationClaims is the payload of an email-verification token.
type VerificationClaims struct {
	AccountID string `json:"id"`
	jwt.RegisteredClaims
}

// ResetClaims is the payload of a password-reset token.
type ResetClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies the three token kinds used by the service.
type Issuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewIssuer validates cfg and returns a ready issuer.
func NewIssuer(cfg TokenConfig) (*Issuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// SessionTokens signs an access/refresh pair for the account. The two
// signatures have no ordering dependency and are produced concurrently;
// both must succeed.
func (i *Issuer) SessionTokens(accountID, email string) (Tokens, error) {
	var tokens Tokens
	var g errgroup.Group
	g.Go(func() error {
		at, err := i.signSession(accountID, email, i.cfg.ATSecret, i.cfg.ATExpiry)
		if err != nil {
			return err
		}
		tokens.AccessToken = at
		return nil
	})
	g.Go(func() error {
		rt, err := i.signSession(accountID, email, i.cfg.RTSecret, i.cfg.RTExpiry)
		if err != nil {
			return err
		}
		tokens.RefreshToken = rt
		return nil
	})
	if err := g.Wait(); err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}

func (i *Issuer) signSession(accountID, email, secret string, ttl time.Duration) (string, error) {
	now := i.now().UTC()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerificationToken signs a token referencing the account to be confirmed.
func (i *Issuer) VerificationToken(accountID string) (string, error) {
	now := i.now().UTC()
	claims := VerificationClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.VerificationExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.SharedSecret))
}

// ResetToken signs a password-reset token bound to email.
func (i *Issuer) ResetToken(email string) (string, error) {
	now := i.now().UTC()
	claims := ResetClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.VerificationExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.SharedSecret))
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(token string) (*SessionClaims, error) {
	return verifyToken[*SessionClaims](token, i.cfg.ATSecret, func() *SessionClaims { return &SessionClaims{} })
}

// VerifyRefresh validates a refresh token's signature and expiry. The
// caller must still match the token against the account's stored hash.
func (i *Issuer) VerifyRefresh(token string) (*SessionClaims, error) {
	return verifyToken[*SessionClaims](token, i.cfg.RTSecret, func() *SessionClaims { return &SessionClaims{} })
}

// VerifyVerification validates an email-verification token.
func (i *Issuer) VerifyVerification(token string) (*VerificationClaims, error) {
	claims, err := verifyToken[*VerificationClaims](token, i.cfg.SharedSecret, func() *VerificationClaims { return &VerificationClaims{} })
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.AccountID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyReset validates a password-reset token. The caller must still match
// the decoded email against the stored reset request.
func (i *Issuer) VerifyReset(token string) (*ResetClaims, error) {
	claims, err := verifyToken[*ResetClaims](token, i.cfg.SharedSecret, func() *ResetClaims { return &ResetClaims{} })
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func verifyToken[T jwt.Claims](token, secret string, empty func() T) (T, error) {
	var zero T
	token = strings.TrimSpace(token)
	if token == "" {
		return zero, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, empty(), func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return zero, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(T)
	if !ok || !parsed.Valid {
		return zero, ErrInvalidToken
	}
	return claims, nil
}

// VerificationLink builds the public confirmation URL mailed to new accounts.
func (i *Issuer) VerificationLink(token string) string {
	return strings.TrimRight(i.cfg.FrontendBaseURL, "/") + "/auth/email/verify/" + token
}

// ResetLink builds the public password-reset URL mailed on forgot-password.
func (i *Issuer) ResetLink(token string) string {
	return strings.TrimRight(i.cfg.FrontendBaseURL, "/") + "/auth/password/reset/" + token
}
