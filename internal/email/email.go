package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"github.com/rs/zerolog/log"
)

// Notifier delivers out-of-band notifications. Delivery failures are the
// caller's to log; ledger mutations never depend on the outcome.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) error
}

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

// NewSMTPNotifier creates a notifier authenticating as user; mail is
// sent from the same address.
func NewSMTPNotifier(host, port, user, password string) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     user,
	}
}

// Notify implements Notifier.
func (n *SMTPNotifier) Notify(ctx context.Context, to, subject, body string) error {
	auth := smtp.PlainAuth("", n.user, n.password, n.host)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		n.from, to, subject, body,
	))

	addr := net.JoinHostPort(n.host, n.port)
	if err := smtp.SendMail(addr, auth, n.from, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// NopNotifier drops all notifications. Used when no SMTP relay is
// configured, so the rest of the application keeps working.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, to, subject, body string) error {
	log.Debug().Str("to", to).Str("subject", subject).Msg("Mail delivery disabled, dropping notification")
	return nil
}
