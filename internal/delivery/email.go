package delivery

import (
	"context"

	gomail "gopkg.in/gomail.v2"
)

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string, useSSL bool) *SMTPSender {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.SSL = useSSL
	return &SMTPSender{dialer: dialer, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	return s.dialer.DialAndSend(msg)
}
