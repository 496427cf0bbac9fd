// Package mailer implements the email delivery contract the code manager uses to send confirmation codes: an SMTP
// sender for production, and a console/dev sender that logs codes instead of mailing them.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/code"
)

var subjects = map[code.Kind]string{
	code.KindNewAccount:    "Confirm your account",
	code.KindTwoFactor:     "Your login code",
	code.KindResetPassword: "Reset your password",
}

// SMTPSender sends confirmation codes over SMTP. Each call dials and closes its own connection, so it is safe for
// concurrent use without additional locking.
type SMTPSender struct {
	host       string
	port       int
	username   string
	password   string
	from       mail.Address
	serverName string
}

// NewSMTPSender creates an SMTPSender. The from address is parsed as an RFC 5322 address.
func NewSMTPSender(host string, port int, username, password, from, serverName string) *SMTPSender {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		addr = &mail.Address{Address: from}
	}
	return &SMTPSender{host: host, port: port, username: username, password: password, from: *addr, serverName: serverName}
}

// Ping verifies that the SMTP server is reachable and accepts authentication, for use as a startup health check.
func (s *SMTPSender) Ping() error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Quit() }()

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}
	return nil
}

// SendCode implements code.Sender by emailing the confirmation code as a plain text message.
func (s *SMTPSender) SendCode(email string, kind code.Kind, confirmationCode string) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Quit() }()

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(email); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}

	subject := subjects[kind]
	if subject == "" {
		subject = "Your confirmation code"
	}
	body := fmt.Sprintf("Your %s confirmation code is: %s\n\nThis code expires in one hour and can be used once.\n", s.serverName, confirmationCode)
	msg := buildMessage(s.from.String(), email, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return w.Close()
}

func (s *SMTPSender) dial() (*smtp.Client, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	conn, err := dialer.DialContext(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("EHLO: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}

	return client, nil
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return b.String()
}

// ConsoleSender logs confirmation codes instead of emailing them, for local development without SMTP configured.
type ConsoleSender struct {
	log zerolog.Logger
}

// NewConsoleSender creates a ConsoleSender.
func NewConsoleSender(logger zerolog.Logger) *ConsoleSender {
	return &ConsoleSender{log: logger.With().Str("component", "mailer").Logger()}
}

// SendCode implements code.Sender by logging the code at info level.
func (c *ConsoleSender) SendCode(email string, kind code.Kind, confirmationCode string) error {
	c.log.Info().Str("email", email).Str("kind", string(kind)).Str("code", confirmationCode).Msg("confirmation code (development mode, not emailed)")
	return nil
}
