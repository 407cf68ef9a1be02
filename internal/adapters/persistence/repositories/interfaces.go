package repositories

import (
	"context"
	"time"

	"school-crm-api/internal/adapters/persistence/models"
)

// UserFilter narrows List results. Empty fields are ignored.
type UserFilter struct {
	Role         string
	Organization string
	Search       string
}

// UserRepository defines user repository interface
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Update writes email, names, role, organization and active flag only.
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]*models.User, int64, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CountByRole(ctx context.Context, role string) (int64, error)
}

// RefreshTokenRepository defines refresh token repository interface.
// Tokens are looked up by the SHA-256 digest of the bearer string.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	// GetByTokenHash returns the stored token with its owning user loaded.
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteAllByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	CountByUserID(ctx context.Context, userID string) (int64, error)
}
