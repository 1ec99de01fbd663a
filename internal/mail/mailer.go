package mail

import (
	"fmt"
	"time"

	"chemsus-backend/config"

	"gopkg.in/gomail.v2"
)

// Mailer delivers transactional email over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer creates a mailer from SMTP config. Returns nil when no SMTP
// host is configured, which callers treat as "delivery unavailable".
func NewMailer(cfg config.SMTPConfig) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send delivers one plain-text message.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	return nil
}

// SendOTP delivers a verification code.
func (m *Mailer) SendOTP(to, code string, ttl time.Duration) error {
	body := fmt.Sprintf(
		"Your ChemSus verification code is %s.\n\nIt expires in %d minutes. If you did not request this, ignore this email.",
		code, int(ttl.Minutes()))
	return m.Send(to, "Your ChemSus verification code", body)
}
