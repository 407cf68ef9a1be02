package mail

import (
	"context"
	"crypto/tls"

	"gopkg.in/gomail.v2"
)

// SMTPMailer sends HTML email through an SMTP relay
type SMTPMailer struct {
	dialer      *gomail.Dialer
	fromName    string
	fromAddress string
}

// Config holds SMTP relay settings
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// NewSMTPMailer returns nil when no host is configured
func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.Host == "" {
		return nil
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	return &SMTPMailer{
		dialer:      dialer,
		fromName:    cfg.FromName,
		fromAddress: cfg.FromAddress,
	}
}

// Send delivers one message. gomail has no context support, so ctx is only
// checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.dialer.DialAndSend(m.buildMessage(to, subject, htmlBody))
}

func (m *SMTPMailer) buildMessage(to, subject, htmlBody string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromAddress, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	return msg
}
