package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "al***@ex***.com"},
		{"ab@cd.org", "a*@c*.org"},
		{"a@b.io", "a*@b*.io"},
		{"user@localhost", "us***@lo***"},
		{"not-an-email", "not-an-email"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+972521234567", "***4567"},
		{"0521234567", "***4567"},
		{"1234", "***"},
		{"", "***"},
		{"+1 (555) 867-5309", "***5309"},
	}
	for _, tc := range cases {
		if got := MaskPhone(tc.in); got != tc.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type fakeEmailSender struct {
	to       string
	subject  string
	htmlBody string
	textBody string
	err      error
}

func (f *fakeEmailSender) Send(_ context.Context, to, subject, htmlBody, textBody string) error {
	f.to, f.subject, f.htmlBody, f.textBody = to, subject, htmlBody, textBody
	return f.err
}

type fakeSMSSender struct {
	to   string
	body string
	err  error
}

func (f *fakeSMSSender) Send(_ context.Context, to, body string) error {
	f.to, f.body = to, body
	return f.err
}

func TestSendOTPDeliversToBothChannels(t *testing.T) {
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	svc := NewService(email, sms, "BePay", nil)

	delivered, err := svc.SendOTP(context.Background(), "alice@example.com", "+972521234567", "123456", 5*time.Minute)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}

	if email.to != "alice@example.com" {
		t.Fatalf("email to = %q", email.to)
	}
	if email.subject != "BePay verification code" {
		t.Fatalf("subject = %q", email.subject)
	}
	if !strings.Contains(email.htmlBody, "123456") {
		t.Fatal("html body missing code")
	}
	if !strings.Contains(email.textBody, "expires in 5 minutes") {
		t.Fatalf("text body = %q", email.textBody)
	}
	if sms.to != "+972521234567" || !strings.Contains(sms.body, "123456") {
		t.Fatalf("sms to=%q body=%q", sms.to, sms.body)
	}

	if delivered.Email != "al***@ex***.com" {
		t.Fatalf("delivered email = %q", delivered.Email)
	}
	if delivered.Phone != "***4567" {
		t.Fatalf("delivered phone = %q", delivered.Phone)
	}
}

func TestSendOTPWithoutProvidersLogsOnly(t *testing.T) {
	svc := NewService(nil, nil, "BePay", nil)

	delivered, err := svc.SendOTP(context.Background(), "alice@example.com", "", "123456", 5*time.Minute)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if delivered.Email != "al***@ex***.com" {
		t.Fatalf("delivered email = %q", delivered.Email)
	}
	if delivered.Phone != "" {
		t.Fatalf("delivered phone = %q", delivered.Phone)
	}
}

func TestSendOTPEmailFailureSurfaces(t *testing.T) {
	email := &fakeEmailSender{err: errors.New("smtp down")}
	svc := NewService(email, nil, "BePay", nil)

	_, err := svc.SendOTP(context.Background(), "alice@example.com", "", "123456", 5*time.Minute)
	if err == nil {
		t.Fatal("expected error when email delivery fails")
	}
}

func TestSendOTPSMSFailureIsNotFatal(t *testing.T) {
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{err: errors.New("twilio down")}
	svc := NewService(email, sms, "BePay", nil)

	delivered, err := svc.SendOTP(context.Background(), "alice@example.com", "+972521234567", "123456", 5*time.Minute)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if delivered.Phone != "" {
		t.Fatal("failed sms must not be reported as delivered")
	}
}

func TestSendPasswordReset(t *testing.T) {
	email := &fakeEmailSender{}
	svc := NewService(email, nil, "BePay", nil)

	err := svc.SendPasswordReset(context.Background(), "alice@example.com", "https://bepay.test/reset?token=abc", 15*time.Minute)
	if err != nil {
		t.Fatalf("send reset: %v", err)
	}
	if email.subject != "BePay password reset" {
		t.Fatalf("subject = %q", email.subject)
	}
	if !strings.Contains(email.htmlBody, "https://bepay.test/reset?token=abc") {
		t.Fatal("html body missing reset link")
	}
	if !strings.Contains(email.textBody, "expires in 15 minutes") {
		t.Fatalf("text body = %q", email.textBody)
	}
}

func TestSendPasswordResetWithoutProviderLogsOnly(t *testing.T) {
	svc := NewService(nil, nil, "BePay", nil)
	if err := svc.SendPasswordReset(context.Background(), "alice@example.com", "https://bepay.test/reset?token=abc", 15*time.Minute); err != nil {
		t.Fatalf("send reset: %v", err)
	}
}
