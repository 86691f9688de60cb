// Package email delivers operator alerts by SMTP or the SendGrid API.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
	ProviderID() string
}

// Dialer is the part of *gomail.Dialer the SMTP sender needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender relays through an SMTP server (Mailpit in development).
type SMTPSender struct {
	dialer Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return NewSMTPSenderWithDialer(gomail.NewDialer(strings.TrimSpace(host), port, username, password), from)
}

func NewSMTPSenderWithDialer(d Dialer, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@salonbook.local"
	}
	return &SMTPSender{dialer: d, from: from}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) ProviderID() string { return "smtp" }

// SendGridClient is the part of *sendgrid.Client the API sender needs.
type SendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridSender struct {
	client SendGridClient
	from   *mail.Email
}

func NewSendGridSender(apiKey, fromName, fromAddress string) *SendGridSender {
	return NewSendGridSenderWithClient(sendgrid.NewSendClient(apiKey), fromName, fromAddress)
}

func NewSendGridSenderWithClient(c SendGridClient, fromName, fromAddress string) *SendGridSender {
	return &SendGridSender{client: c, from: mail.NewEmail(fromName, fromAddress)}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewV3Mail()
	msg.SetFrom(s.from)
	msg.Subject = subject
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", to))
	msg.AddPersonalizations(p)
	msg.AddContent(mail.NewContent("text/plain", body))
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

func (s *SendGridSender) ProviderID() string { return "sendgrid" }
