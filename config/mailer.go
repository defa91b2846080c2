package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPMailer sends HTML mail through a single SMTP account.
// Env:
// - SMTP_HOST (default smtp.gmail.com)
// - SMTP_PORT (default 587)
// - FROM_EMAIL
// - FROM_NAME (default "Needibay Support")
// - EMAIL_PASS (app password)
// - SMTP_TIMEOUT_SECONDS (default 15)
type SMTPMailer struct {
	host     string
	port     int
	from     string
	fromName string
	password string
	timeout  time.Duration
}

func NewSMTPMailerFromEnv() *SMTPMailer {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := intFromEnv("SMTP_PORT", 587)
	fromName := strings.TrimSpace(os.Getenv("FROM_NAME"))
	if fromName == "" {
		fromName = "Needibay Support"
	}
	timeout := time.Duration(intFromEnv("SMTP_TIMEOUT_SECONDS", 15)) * time.Second

	return &SMTPMailer{
		host:     host,
		port:     port,
		from:     strings.TrimSpace(os.Getenv("FROM_EMAIL")),
		fromName: fromName,
		password: os.Getenv("EMAIL_PASS"),
		timeout:  timeout,
	}
}

// Send delivers one HTML message to all recipients. A bounded timeout keeps a
// hung SMTP server from pinning a worker goroutine.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject string, html string) error {
	if m.from == "" {
		return errors.New("FROM_EMAIL is not configured")
	}
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	dialer := gomail.NewDialer(m.host, m.port, m.from, m.password)

	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(msg) }()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.New("smtp send timed out after " + m.timeout.String())
	case <-ctx.Done():
		return ctx.Err()
	}
}
