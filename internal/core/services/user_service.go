package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/core/domain"
	"school-crm-api/internal/pkg/pagination"
	"school-crm-api/internal/pkg/password"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// User service errors
var (
	ErrUserNotFound         = fmt.Errorf("%w: user not found", domain.ErrNotFound)
	ErrEmailAlreadyExists   = fmt.Errorf("%w: email already exists", domain.ErrConflict)
	ErrOldPasswordWrong     = fmt.Errorf("%w: old password is incorrect", domain.ErrInvalidInput)
	ErrCannotDeleteSelf     = fmt.Errorf("%w: cannot delete your own account", domain.ErrInvalidInput)
	ErrCannotChangeOwnRole  = fmt.Errorf("%w: cannot change your own role", domain.ErrInvalidInput)
	ErrCannotDeactivateSelf = fmt.Errorf("%w: cannot deactivate your own account", domain.ErrInvalidInput)
)

// UserService handles account management outside the session lifecycle
type UserService struct {
	userRepo         repositories.UserRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	hasher           PasswordHasher
	log              zerolog.Logger
}

// NewUserService creates a new user service
func NewUserService(
	userRepo repositories.UserRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	hasher PasswordHasher,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		hasher:           hasher,
		log:              log.With().Str("component", "users").Logger(),
	}
}

// ListUsersInput represents list users input
type ListUsersInput struct {
	Page         int
	Limit        int
	Role         string
	Organization string
	Search       string
}

// ListUsersOutput represents list users output
type ListUsersOutput struct {
	Users []*models.UserResponse `json:"users"`
	Meta  *pagination.Meta       `json:"meta"`
}

// UpdateUserByAdminInput represents update user input (for admin)
type UpdateUserByAdminInput struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Role         *string
	Organization *string
	IsActive     *bool
}

// UpdateProfileInput represents update profile input (for self)
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
}

// ChangePasswordInput represents change password input
type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// ListUsers lists users with pagination and filters
func (s *UserService) ListUsers(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
	if input.Role != "" && !domain.Role(input.Role).IsValid() {
		return nil, ErrInvalidRole
	}
	if input.Organization != "" && !domain.Organization(input.Organization).IsValid() {
		return nil, ErrInvalidOrganization
	}

	params := pagination.NewParams(input.Page, input.Limit)
	filter := repositories.UserFilter{
		Role:         input.Role,
		Organization: input.Organization,
		Search:       strings.TrimSpace(input.Search),
	}

	users, total, err := s.userRepo.List(ctx, filter, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}

	userResponses := make([]*models.UserResponse, len(users))
	for i, user := range users {
		userResponses[i] = user.ToResponse()
	}

	return &ListUsersOutput{
		Users: userResponses,
		Meta:  pagination.GetMeta(params, total),
	}, nil
}

// GetUserByID gets a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.UserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

// UpdateUserByAdmin updates a user by admin
func (s *UserService) UpdateUserByAdmin(ctx context.Context, id, adminID string, input *UpdateUserByAdminInput) (*models.UserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	// Prevent admin from changing own role or locking themselves out
	if id == adminID && input.Role != nil && *input.Role != user.Role {
		return nil, ErrCannotChangeOwnRole
	}
	if id == adminID && input.IsActive != nil && !*input.IsActive {
		return nil, ErrCannotDeactivateSelf
	}

	if input.Email != nil && *input.Email != user.Email {
		exists, err := s.userRepo.ExistsByEmail(ctx, *input.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrEmailAlreadyExists
		}
		user.Email = *input.Email
	}

	if input.Role != nil {
		if !domain.Role(*input.Role).IsValid() {
			return nil, ErrInvalidRole
		}
		user.Role = *input.Role
	}

	if input.Organization != nil {
		org, ok := domain.ParseOrganization(*input.Organization)
		if !ok {
			return nil, ErrInvalidOrganization
		}
		user.Organization = nil
		if org != nil {
			value := string(*org)
			user.Organization = &value
		}
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}

	s.log.Info().Str("user_id", id).Str("admin_id", adminID).Msg("user updated by admin")
	return user.ToResponse(), nil
}

// DeleteUser permanently deletes a user and its refresh tokens
func (s *UserService) DeleteUser(ctx context.Context, id, adminID string) error {
	if id == adminID {
		return ErrCannotDeleteSelf
	}

	if _, err := s.getUser(ctx, id); err != nil {
		return err
	}

	if err := s.refreshTokenRepo.DeleteAllByUserID(ctx, id); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("user_id", id).Str("admin_id", adminID).Msg("user deleted")
	return nil
}

// GetProfile gets own profile
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.UserResponse, error) {
	return s.GetUserByID(ctx, userID)
}

// UpdateProfile updates own profile
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input *UpdateProfileInput) (*models.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user.ToResponse(), nil
}

// ChangePassword changes user's password. Existing sessions are kept.
func (s *UserService) ChangePassword(ctx context.Context, userID string, input *ChangePasswordInput) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(input.OldPassword, user.Password) {
		return ErrOldPasswordWrong
	}

	if !password.ValidatePassword(input.NewPassword) {
		return ErrWeakPassword
	}

	hashedPassword, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

func (s *UserService) getUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
