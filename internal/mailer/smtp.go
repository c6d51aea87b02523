package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	fromName  string
	fromEmail string
	dialer    *gomail.Dialer
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(fromName, fromEmail string, cfg SMTPConfig) *SMTPMailer {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &SMTPMailer{
		fromName:  fromName,
		fromEmail: fromEmail,
		dialer:    gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password),
	}
}

// Send delivers a single email over SMTP. gomail does not take a context,
// so cancellation is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail))
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)
	if msg.Text != "" {
		gm.AddAlternative("text/plain", msg.Text)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
