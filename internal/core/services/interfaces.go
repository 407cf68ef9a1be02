package services

import "school-crm-api/internal/adapters/persistence/models"

// PasswordHasher is a one-way adaptive hash for credentials
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Notifier delivers account emails. Implementations must not block the
// caller on delivery and must not report delivery failures.
type Notifier interface {
	NotifyWelcome(user *models.User, verifyToken string)
	NotifyPasswordReset(email, resetToken string)
}

// NoopNotifier drops every notification
type NoopNotifier struct{}

func (NoopNotifier) NotifyWelcome(*models.User, string) {}
func (NoopNotifier) NotifyPasswordReset(string, string) {}
