package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/Florentin-artemix/Galileo-sub000/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPMailer delivers messages through a STARTTLS SMTP relay.
type SMTPMailer struct {
	from   string
	dialer sender
}

// NewSMTPMailer builds a mailer from config. It returns nil when email is disabled.
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := mail.NewDialer(cfg.Host, port, cfg.User, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec
	}
	return &SMTPMailer{from: cfg.From, dialer: d}, nil
}

// Send dials the relay and sends msg. Empty recipient lists are a no-op.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out := mail.NewMessage()
	out.SetHeader("From", m.from)
	out.SetHeader("To", msg.To...)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/html", msg.HTML)
	if err := m.dialer.DialAndSend(out); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
