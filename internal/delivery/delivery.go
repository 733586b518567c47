// Package delivery sends one-time codes and password reset links to users
// over email and SMS. When no provider is configured the payloads are
// logged instead, which keeps local development working without accounts
// at an email or SMS vendor.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DeliveredTo reports the masked destinations an OTP went to. The masked
// forms are safe to echo back in API responses.
type DeliveredTo struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Sender interface {
	SendOTP(ctx context.Context, email, phone, code string, ttl time.Duration) (DeliveredTo, error)
	SendPasswordReset(ctx context.Context, email, link string, ttl time.Duration) error
}

// EmailSender delivers a single message over one transport.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// Service fans a notification out to whichever transports are configured.
// Either sender may be nil.
type Service struct {
	email   EmailSender
	sms     SMSSender
	appName string
	logger  *slog.Logger
}

func NewService(email EmailSender, sms SMSSender, appName string, logger *slog.Logger) *Service {
	if appName == "" {
		appName = "BePay"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		email:   email,
		sms:     sms,
		appName: appName,
		logger:  logger,
	}
}

func (s *Service) SendOTP(ctx context.Context, email, phone, code string, ttl time.Duration) (DeliveredTo, error) {
	ttlMinutes := int(ttl.Minutes())
	delivered := DeliveredTo{Email: MaskEmail(email)}

	smsText := fmt.Sprintf("%s: Your verification code is %s. It expires in %d minutes.", s.appName, code, ttlMinutes)

	if s.email != nil {
		subject := fmt.Sprintf("%s verification code", s.appName)
		html := otpEmailHTML(s.appName, code, ttlMinutes)
		if err := s.email.Send(ctx, email, subject, html, smsText); err != nil {
			return DeliveredTo{}, fmt.Errorf("send otp email: %w", err)
		}
	} else {
		s.logger.Info("dev otp delivery", "channel", "email", "to", email, "code", code)
	}

	if s.sms != nil && phone != "" {
		if err := s.sms.Send(ctx, phone, smsText); err != nil {
			// Email already went out, a failed SMS should not fail the whole
			// delivery.
			s.logger.Warn("otp sms delivery failed", "to", MaskPhone(phone), "error", err)
		} else {
			delivered.Phone = MaskPhone(phone)
		}
	}

	return delivered, nil
}

func (s *Service) SendPasswordReset(ctx context.Context, email, link string, ttl time.Duration) error {
	ttlMinutes := int(ttl.Minutes())

	if s.email == nil {
		s.logger.Info("dev password reset delivery", "to", email, "link", link)
		return nil
	}

	subject := fmt.Sprintf("%s password reset", s.appName)
	html := resetEmailHTML(s.appName, link, ttlMinutes)
	text := fmt.Sprintf("Reset your password: %s\n\nThis link expires in %d minutes.", link, ttlMinutes)
	if err := s.email.Send(ctx, email, subject, html, text); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func otpEmailHTML(appName, code string, ttlMinutes int) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; line-height: 1.5;">
  <h2 style="margin: 0 0 12px;">%s verification code</h2>
  <p style="margin: 0 0 12px;">Use this code to verify your account:</p>
  <div style="font-size: 28px; font-weight: 700; letter-spacing: 4px; margin: 8px 0 16px;">%s</div>
  <p style="margin: 0; color: #666;">This code expires in %d minutes. If you did not request this, you can ignore this email.</p>
</div>`, appName, code, ttlMinutes)
}

func resetEmailHTML(appName, link string, ttlMinutes int) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; line-height: 1.5;">
  <h2 style="margin: 0 0 12px;">Reset your %s password</h2>
  <p style="margin: 0 0 12px;">Click the link below to set a new password. This link expires in %d minutes.</p>
  <p style="margin: 0 0 12px;"><a href="%s" target="_blank" rel="noreferrer">Reset password</a></p>
  <p style="margin: 0; color: #666;">If you did not request this, you can ignore this email.</p>
</div>`, appName, ttlMinutes, link)
}

// MaskEmail keeps the first two characters of the local part and the domain
// label, enough for the user to recognize their own address.
func MaskEmail(email string) string {
	user, domain, found := strings.Cut(email, "@")
	if !found || user == "" || domain == "" {
		return email
	}

	maskedUser := maskPart(user)
	label, rest, found := strings.Cut(domain, ".")
	maskedDomain := maskPart(label)
	if found {
		maskedDomain += "." + rest
	}
	return maskedUser + "@" + maskedDomain
}

func maskPart(part string) string {
	runes := []rune(part)
	if len(runes) <= 2 {
		if len(runes) == 0 {
			return "**"
		}
		return string(runes[0]) + "*"
	}
	return string(runes[:2]) + "***"
}

// MaskPhone keeps only the last four digits.
func MaskPhone(phone string) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}
