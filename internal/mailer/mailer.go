// Package mailer implements the outbound mail delivery collaborators.
// A Mailer delivers a single rendered message; implementations exist for
// AWS SES, SMTP, and a log-only mode used in development.
package mailer

import (
	"context"
	"fmt"
	"log"

	"github.com/almanara/newsletter/internal/pkg/logger"
)

// Message is a single rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a single email. Implementations must be safe for
// concurrent use; the dispatch engine calls Send from multiple workers.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// LogMailer logs messages instead of delivering them. Used in development
// and as the fallback when no provider is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg *Message) error {
	log.Printf("[Mailer] (log only) to=%s subject=%q", logger.RedactEmail(msg.To), msg.Subject)
	return nil
}

// Config selects and configures a delivery provider.
type Config struct {
	Provider  string // "ses", "smtp", or "log"
	FromName  string
	FromEmail string

	SES  SESConfig
	SMTP SMTPConfig
}

// New builds a Mailer for the configured provider.
func New(cfg Config) (Mailer, error) {
	switch cfg.Provider {
	case "ses":
		return NewSESMailer(cfg.FromName, cfg.FromEmail, cfg.SES)
	case "smtp":
		return NewSMTPMailer(cfg.FromName, cfg.FromEmail, cfg.SMTP), nil
	case "", "log":
		return LogMailer{}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
