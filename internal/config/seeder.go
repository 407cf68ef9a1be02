package config

import (
	"context"

	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/core/domain"
	"school-crm-api/internal/pkg/password"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db     *gorm.DB
	hasher *password.Bcrypt
	seed   SeedConfig
	log    zerolog.Logger
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, hasher *password.Bcrypt, seed SeedConfig, log zerolog.Logger) *Seeder {
	return &Seeder{db: db, hasher: hasher, seed: seed, log: log}
}

// Run executes all seeders
func (s *Seeder) Run(ctx context.Context) error {
	s.log.Info().Msg("running database seeders")

	if err := s.seedAdminUser(ctx); err != nil {
		s.log.Warn().Err(err).Msg("admin seeder skipped")
	}

	return nil
}

// seedAdminUser creates the first ADMIN account from SEED_ADMIN_* settings.
// Nothing happens when an admin already exists or the settings are empty.
func (s *Seeder) seedAdminUser(ctx context.Context) error {
	if s.seed.AdminEmail == "" || s.seed.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", string(domain.RoleAdmin)).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := s.hasher.Hash(s.seed.AdminPassword)
	if err != nil {
		return err
	}

	admin := &models.User{
		Email:      s.seed.AdminEmail,
		Password:   hashedPassword,
		FirstName:  "System",
		LastName:   "Administrator",
		Role:       string(domain.RoleAdmin),
		IsActive:   true,
		IsVerified: true,
	}

	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	s.log.Info().Str("email", admin.Email).Msg("admin user created")
	return nil
}
