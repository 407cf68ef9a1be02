package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"school-crm-api/internal/adapters/persistence/models"

	"github.com/rs/zerolog"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func TestNotifyWelcome(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewNotificationService(mailer, "https://app.example.com", zerolog.Nop())

	org := "school"
	svc.NotifyWelcome(&models.User{
		Email:        "s@x.com",
		FirstName:    "Sam",
		LastName:     "Lee",
		Role:         "STUDENT",
		Organization: &org,
	}, "verify+token")
	svc.Close()

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	mail := mailer.sent[0]
	if mail.to != "s@x.com" || mail.subject != "Welcome to School CRM" {
		t.Fatalf("unexpected mail %+v", mail)
	}
	if !strings.Contains(mail.body, "Welcome, Sam Lee") || !strings.Contains(mail.body, "student account") {
		t.Fatalf("unexpected body %s", mail.body)
	}
	if !strings.Contains(mail.body, "https://app.example.com/verify-email?token=verify%2Btoken") {
		t.Fatalf("verification link missing or unescaped: %s", mail.body)
	}
}

func TestNotifyWelcomeHospital(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewNotificationService(mailer, "https://app.example.com", zerolog.Nop())

	org := "hospital"
	svc.NotifyWelcome(&models.User{Email: "n@x.com", FirstName: "Nia", LastName: "Ray", Role: "NURSE", Organization: &org}, "t")
	svc.Close()

	if len(mailer.sent) != 1 || !strings.Contains(mailer.sent[0].body, "hospital portal") {
		t.Fatalf("unexpected mails %+v", mailer.sent)
	}
}

func TestNotifyPasswordReset(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewNotificationService(mailer, "https://app.example.com", zerolog.Nop())

	svc.NotifyPasswordReset("a@x.com", "abc.def.ghi")
	svc.Close()

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	if !strings.Contains(mailer.sent[0].body, "https://app.example.com/reset-password?token=abc.def.ghi") {
		t.Fatalf("reset link missing: %s", mailer.sent[0].body)
	}
}

func TestNotificationDeliveryFailureIsSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("relay down")}
	svc := NewNotificationService(mailer, "https://app.example.com", zerolog.Nop())

	svc.NotifyPasswordReset("a@x.com", "token")
	svc.Close()

	if len(mailer.sent) != 0 {
		t.Fatalf("expected nothing recorded")
	}
}

func TestNotificationDisabledWithoutMailer(t *testing.T) {
	svc := NewNotificationService(nil, "https://app.example.com", zerolog.Nop())
	if svc.IsEnabled() {
		t.Fatalf("expected disabled service")
	}

	svc.NotifyPasswordReset("a@x.com", "token")
	svc.Close()
}
