package email

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/smtp"

	"bazaar/leadhub/internal/config"
)

// Sender delivers a fully rendered message (headers and body) to its recipients.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// NewSender returns an SMTP sender, or a log-only sender when SMTP_HOST is unset.
func NewSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		log.Println("Email: SMTP_HOST not set, notification emails will only be logged")
		return &LogSender{from: cfg.SmtpFromAddress}
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
		auth: smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost),
		from: cfg.SmtpFromAddress,
	}
}

type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		return fmt.Errorf("smtp delivery of %q to %v: %w", subject, to, err)
	}
	log.Printf("Email: delivered %q (%s) to %v", subject, templateOf(rawMessage), to)
	return nil
}

// LogSender prints a one-line summary of each message.
type LogSender struct {
	from string
}

func (s *LogSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Printf("Email (not sent): from=%s to=%v template=%s subject=%q bytes=%d",
		s.from, to, templateOf(rawMessage), subject, len(rawMessage))
	return nil
}

// Fanout sends every message through each of its senders and reports all failures.
type Fanout []Sender

func (f Fanout) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(f) == 0 {
		return fmt.Errorf("no email senders configured")
	}
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, to, subject, rawMessage); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
