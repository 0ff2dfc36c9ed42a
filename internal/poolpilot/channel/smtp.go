package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const defaultSubject = "Pool Alert"

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string

	// NoVerify skips TLS certificate verification.
	NoVerify bool
}

// SMTP sends email through one gomail dial per message.  Alert volume is
// low enough that a pooled connection is not worth the idle bookkeeping.
type SMTP struct {
	logger  *zap.Logger
	from    string
	subject string
	send    func(*gomail.Message) error
}

func NewSMTP(logger *zap.Logger, cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid smtp from address: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}

	var d *gomail.Dialer
	if cfg.Username == "" {
		d = &gomail.Dialer{Host: cfg.Host, Port: cfg.Port}
	} else {
		d = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	if cfg.NoVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	return newSMTP(logger, cfg, d.DialAndSend), nil
}

func newSMTP(logger *zap.Logger, cfg SMTPConfig, send func(...*gomail.Message) error) *SMTP {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	return &SMTP{
		logger:  logger.Named("smtp"),
		from:    cfg.From,
		subject: subject,
		send:    func(m *gomail.Message) error { return send(m) },
	}
}

func (s *SMTP) Name() string { return "email" }

func (s *SMTP) CanRoute(destination string) bool {
	_, err := mail.ParseAddress(strings.TrimSpace(destination))
	return err == nil
}

// Send delivers body to destination.  gomail has no context support, so a
// cancelled ctx abandons the dial rather than interrupting it.
func (s *SMTP) Send(ctx context.Context, destination, body string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(destination))
	if err != nil {
		return fmt.Errorf("invalid email address %q: %w", destination, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", addr.Address)
	m.SetHeader("Subject", s.subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		s.logger.Debug("email accepted", zap.String("subject", s.subject))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
