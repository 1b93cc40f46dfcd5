package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailTaken is returned when a signup collides with an existing
	// account email.
	ErrEmailTaken = errors.New("auth: e-mail already in use")

	// ErrAccessDenied covers bad credentials, unknown accounts and
	// missing or mismatched refresh tokens. The message is deliberately
	// generic: callers must not be able to probe which emails exist.
	ErrAccessDenied = errors.New("auth: access denied, check your user or password")

	// ErrEmailNotVerified is raised at signin when the password matches
	// but the email was never confirmed.
	ErrEmailNotVerified = errors.New("auth: access denied, verify your e-mail address")

	// ErrCredentialsIncorrect is returned when tenant registration hits a
	// uniqueness conflict. It stays vague on purpose so the caller cannot
	// tell whether the email or the business id collided.
	ErrCredentialsIncorrect = errors.New("auth: credentials incorrect")

	// ErrInvalidToken indicates a verification or reset token failed
	// signature, expiry or structural checks.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnauthorizedPassword is returned by ChangePassword when the old
	// password does not match. Distinct from ErrAccessDenied because the
	// caller is already authenticated at that point.
	ErrUnauthorizedPassword = errors.New("auth: old password is not correct")

	// ErrNotFound is the store-level miss result.
	ErrNotFound = errors.New("auth: not found")

	// ErrDuplicate is the store-level unique-constraint result.
	ErrDuplicate = errors.New("auth: already exists")

	// ErrInternal wraps persistence or delivery failures that are not one
	// of the domain errors above. The cause is kept for logs only.
	ErrInternal = errors.New("auth: internal error")
)

// internalErr wraps err as ErrInternal, preserving the cause for errors.Is
// and log output while keeping the caller-facing kind stable.
func internalErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
