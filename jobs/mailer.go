package jobs

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers notification emails through a plain SMTP relay.
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender builds a sender for host:port relaying from the given
// address.
func NewSMTPSender(host string, port int, from string) *SMTPSender {
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
}

// Send delivers one message. The context only bounds task retries here;
// net/smtp has no per-dial context, so cancellation is checked up front.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
