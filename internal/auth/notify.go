package auth

import "context"

// Mail template names understood by Notifier implementations.
const (
	TemplateConfirmation  = "confirmation"
	TemplateResetPassword = "reset_password"
)

// Notifier delivers transactional mail. Verification mail is sent
// fire-and-forget by the service; reset mail is awaited.
type Notifier interface {
	Send(ctx context.Context, recipient, template string, data map[string]string) error
}
