// Package mail delivers transactional email over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"

	gomail "github.com/wneessen/go-mail"

	"easyvet.app/internal/auth"
	"easyvet.app/internal/config"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var subjects = map[string]string{
	auth.TemplateConfirmation:  "Bem vindo ao Easyvet! Confirme seu Email",
	auth.TemplateResetPassword: "Reset password",
}

// Sender implements auth.Notifier on top of an SMTP relay.
type Sender struct {
	client    *gomail.Client
	from      string
	templates *template.Template
}

var _ auth.Notifier = (*Sender)(nil)

// NewSender connects template rendering with an SMTP client built from cfg.
func NewSender(cfg config.SMTPConfig) (*Sender, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("mail: parse templates: %w", err)
	}
	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: smtp client: %w", err)
	}
	return &Sender{client: client, from: cfg.From, templates: templates}, nil
}

// Send renders the named template with data and delivers it to recipient.
func (s *Sender) Send(ctx context.Context, recipient, tmpl string, data map[string]string) error {
	subject, ok := subjects[tmpl]
	if !ok {
		return fmt.Errorf("mail: unknown template %q", tmpl)
	}
	body, err := render(s.templates, tmpl, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("mail: from address: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("mail: recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send %s to %s: %w", tmpl, recipient, err)
	}
	return nil
}

func render(templates *template.Template, tmpl string, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl+".tmpl", data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", tmpl, err)
	}
	return buf.String(), nil
}
