package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/patient-records/internal/config"
)

type Service interface {
	SendWelcome(ctx context.Context, email string, name string) error
}

// Dialer is the part of gomail.Dialer the SMTP service uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer Dialer
	from   string
}

// NewService returns an SMTP mailer, or a no-op mailer when no SMTP host is configured.
func NewService(cfg config.SMTPConfig) Service {
	if cfg.Host == "" {
		return noopService{}
	}
	return NewSMTPService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewSMTPService(dialer Dialer, from string) Service {
	return &smtpService{dialer: dialer, from: from}
}

func (s *smtpService) SendWelcome(ctx context.Context, to string, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", to, name)
	m.SetHeader("Subject", "Your patient records account")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nAn account has been created for you on the patient records system.\n"+
			"Sign in with this email address and the password given to you by your administrator, "+
			"then change it under your profile.\n", name))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

type noopService struct{}

func (noopService) SendWelcome(context.Context, string, string) error {
	return nil
}
