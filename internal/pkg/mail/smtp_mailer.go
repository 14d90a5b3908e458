package mail

import (
	"context"
	"fmt"
	"html"
	"net/smtp"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// SendMail sends an HTML email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "587")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Errorf("[Mail] SMTP send error: %v", err)
	} else {
		log.Infof("[Mail] Email sent to %s via %s", to, addr)
	}
	return err
}

// SupportAlerter notifies the support mailbox about orders that need a human.
type SupportAlerter struct {
	to   string
	send func(to, subject, body string) error
}

// NewSupportAlerter mails to SUPPORT_EMAIL. Without SMTP_HOST or a recipient
// alerts are only logged.
func NewSupportAlerter() *SupportAlerter {
	a := &SupportAlerter{to: env.GetEnv("SUPPORT_EMAIL", "")}
	if env.GetEnv("SMTP_HOST", "") != "" && a.to != "" {
		a.send = SendMail
	}
	return a
}

func (a *SupportAlerter) AlertOperator(ctx context.Context, subject, body string) error {
	log.Warnf("[Support] %s: %s", subject, body)
	if a.send == nil {
		return nil
	}
	return a.send(a.to, "[NumeroFox] "+subject, "<pre>"+html.EscapeString(body)+"</pre>")
}
