// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package delivery sends verification codes to voters.
package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
	"codeberg.org/oliverandrich/ballot-ledger/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Address is where a code is sent. Either field may be empty.
type Address struct {
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// Masked returns the address in display form.
func (a Address) Masked() Address {
	return Address{Email: MaskEmail(a.Email), Mobile: MaskMobile(a.Mobile)}
}

// Deliverer sends a one-time code out of band.
type Deliverer interface {
	Deliver(ctx context.Context, to Address, code string) error
}

// MailDeliverer sends codes by email via SMTP.
type MailDeliverer struct {
	cfg *config.SMTPConfig
	ttl time.Duration
}

// NewMailDeliverer creates an SMTP deliverer. ttl is quoted in the message.
func NewMailDeliverer(cfg *config.SMTPConfig, ttl time.Duration) (*MailDeliverer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &MailDeliverer{cfg: cfg, ttl: ttl}, nil
}

// Deliver sends the code to the email address in the recipient's locale.
func (d *MailDeliverer) Deliver(ctx context.Context, to Address, code string) error {
	if to.Email == "" {
		return fmt.Errorf("no email address to deliver to")
	}

	subject := i18n.T(ctx, "otp_subject")
	body := i18n.TData(ctx, "otp_body", map[string]any{
		"Code":    code,
		"Minutes": int(d.ttl.Minutes()),
	})

	msg, err := d.message(to.Email, subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(d.cfg.Host, d.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	slog.Info("otp_delivered", "channel", "email", "to", MaskEmail(to.Email))
	return nil
}

func (d *MailDeliverer) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if d.cfg.FromName != "" {
		if err := msg.FromFormat(d.cfg.FromName, d.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(d.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (d *MailDeliverer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(d.cfg.Port),
	}

	// Implicit TLS on 465, STARTTLS otherwise
	if d.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if d.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if d.cfg.Username != "" && d.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(d.cfg.Username),
			mail.WithPassword(d.cfg.Password),
		)
	}

	return opts
}

// ConsoleDeliverer writes codes to a local outbox stream instead of sending
// them. It is meant for development without an SMTP server.
type ConsoleDeliverer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleDeliverer(out io.Writer) *ConsoleDeliverer {
	return &ConsoleDeliverer{out: out}
}

func (d *ConsoleDeliverer) Deliver(_ context.Context, to Address, code string) error {
	masked := to.Masked()

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.out, "[outbox] verification code for %s / %s: %s\n", masked.Email, masked.Mobile, code)
	return err
}

// MaskEmail keeps the first and last character of the local part.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	local, domain := email[:at], email[at+1:]
	switch len(local) {
	case 0:
		return "@" + domain
	case 1, 2:
		return strings.Repeat("*", len(local)) + "@" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + "@" + domain
}

// MaskMobile keeps the last four digits.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return strings.Repeat("*", len(mobile))
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}
