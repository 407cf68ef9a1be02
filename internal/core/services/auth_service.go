package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/core/domain"
	"school-crm-api/internal/pkg/jwt"
	"school-crm-api/internal/pkg/metrics"
	"school-crm-api/internal/pkg/password"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Auth errors
var (
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)
	ErrUserInactive        = fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	ErrInvalidToken        = fmt.Errorf("%w: invalid or expired refresh token", domain.ErrUnauthorized)
	ErrInvalidResetToken   = fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)
	ErrInvalidVerifyToken  = fmt.Errorf("%w: invalid or expired verification token", domain.ErrUnauthorized)
	ErrUserAlreadyExists   = fmt.Errorf("%w: email already registered", domain.ErrConflict)
	ErrInvalidRole         = fmt.Errorf("%w: invalid role", domain.ErrInvalidInput)
	ErrInvalidOrganization = fmt.Errorf("%w: invalid organization", domain.ErrInvalidInput)
	ErrWeakPassword        = fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, password.MinLength)
)

// ResetTokenPlaceholder is returned instead of a grant when no account matches
// a password reset request.
const ResetTokenPlaceholder = "reset-token-placeholder"

// AuthService owns the session lifecycle: it turns credentials into
// sessions and ends them. A session is a stored refresh token row.
type AuthService struct {
	userRepo         repositories.UserRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	tokens           *jwt.Manager
	hasher           PasswordHasher
	notifier         Notifier
	log              zerolog.Logger
	now              func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service. A nil notifier disables emails.
func NewAuthService(
	userRepo repositories.UserRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	tokens *jwt.Manager,
	hasher PasswordHasher,
	notifier Notifier,
	log zerolog.Logger,
) *AuthService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &AuthService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		tokens:           tokens,
		hasher:           hasher,
		notifier:         notifier,
		log:              log.With().Str("component", "auth").Logger(),
		now:              time.Now,
	}
}

// RegisterInput represents registration input
type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Role         string
	Organization string
}

// LoginInput represents login input
type LoginInput struct {
	Email    string
	Password string
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *models.UserResponse `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

// RefreshResult carries the new access token only; the refresh token is reused
type RefreshResult struct {
	AccessToken string `json:"access_token"`
}

// PasswordResetRequest is the outcome of RequestPasswordReset. When Found is
// false Token holds ResetTokenPlaceholder and nothing should be sent.
type PasswordResetRequest struct {
	Found bool
	Email string
	Token string
}

// Register registers a new user and opens its first session
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (result *AuthResponse, err error) {
	defer func() { observe("register", err) }()

	role, ok := domain.ParseRole(input.Role)
	if !ok {
		return nil, ErrInvalidRole
	}
	org, ok := domain.ParseOrganization(input.Organization)
	if !ok {
		return nil, ErrInvalidOrganization
	}
	if !password.ValidatePassword(input.Password) {
		return nil, ErrWeakPassword
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	hashedPassword, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Email:     input.Email,
		Password:  hashedPassword,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Role:      string(role),
		IsActive:  true,
	}
	if org != nil {
		value := string(*org)
		user.Organization = &value
	}

	// the unique index settles concurrent registrations of one email
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	result, err = s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	verifyToken, err := s.tokens.GenerateActionToken(user.ID, jwt.TypeEmailVerification, jwt.EmailVerificationLifetime)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("could not sign verification token, welcome email skipped")
	} else {
		s.notifier.NotifyWelcome(user, verifyToken)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user registered")
	return result, nil
}

// Login authenticates a user and opens a new session. Existing sessions are kept.
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (result *AuthResponse, err error) {
	defer func() { observe("login", err) }()

	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.verifyDummy(input.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if !s.hasher.Verify(input.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	result, err = s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return result, nil
}

// RefreshToken mints a new access token from a stored refresh token.
// The refresh token is not rotated and no row changes.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (result *RefreshResult, err error) {
	defer func() { observe("refresh", err) }()

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.log.Debug().Err(err).Msg("refresh token rejected by codec")
		return nil, ErrInvalidToken
	}

	storedToken, err := s.refreshTokenRepo.GetByTokenHash(ctx, password.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debug().Str("token_id", claims.TokenID).Msg("refresh token not stored")
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if storedToken.IsExpiredAt(s.now()) {
		s.log.Debug().Str("token_id", storedToken.ID).Msg("stored refresh token expired")
		return nil, ErrInvalidToken
	}

	user := &storedToken.User
	if user.ID == "" || user.ID != claims.UserID {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role, organizationOf(user))
	if err != nil {
		return nil, err
	}

	return &RefreshResult{AccessToken: accessToken}, nil
}

// Logout deletes the refresh token if it is stored. It always succeeds;
// store failures are only logged.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	var err error
	defer func() { observe("logout", err) }()

	if refreshToken == "" {
		return
	}

	if err = s.refreshTokenRepo.DeleteByTokenHash(ctx, password.HashToken(refreshToken)); err != nil {
		s.log.Warn().Err(err).Msg("logout: refresh token delete failed")
		return
	}

	s.log.Info().Msg("user logged out")
}

// LogoutAll deletes every refresh token of a user
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (err error) {
	defer func() { observe("logout_all", err) }()

	if err = s.refreshTokenRepo.DeleteAllByUserID(ctx, userID); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Msg("all sessions revoked")
	return nil
}

// RequestPasswordReset signs a one hour reset grant for the account with this
// email. It has no side effects; delivering the grant is up to the caller.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (result PasswordResetRequest, err error) {
	defer func() { observe("password_reset_request", err) }()

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PasswordResetRequest{Token: ResetTokenPlaceholder}, nil
		}
		return PasswordResetRequest{}, err
	}

	token, err := s.tokens.GenerateActionToken(user.ID, jwt.TypePasswordReset, jwt.PasswordResetLifetime)
	if err != nil {
		return PasswordResetRequest{}, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset requested")
	return PasswordResetRequest{Found: true, Email: user.Email, Token: token}, nil
}

// ResetPassword overwrites the password of the grant's account and deletes
// all of its refresh tokens. The grant stays usable until it expires.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { observe("password_reset", err) }()

	claims, err := s.tokens.ValidateActionToken(resetToken, jwt.TypePasswordReset)
	if err != nil {
		s.log.Debug().Err(err).Msg("reset token rejected by codec")
		return ErrInvalidResetToken
	}

	if !password.ValidatePassword(newPassword) {
		return ErrWeakPassword
	}

	hashedPassword, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePassword(ctx, claims.UserID, hashedPassword); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if err := s.refreshTokenRepo.DeleteAllByUserID(ctx, claims.UserID); err != nil {
		return err
	}

	s.log.Info().Str("user_id", claims.UserID).Msg("password reset, all sessions revoked")
	return nil
}

// VerifyEmail marks the account of an email-verification grant as verified
func (s *AuthService) VerifyEmail(ctx context.Context, verifyToken string) (err error) {
	defer func() { observe("verify_email", err) }()

	claims, err := s.tokens.ValidateActionToken(verifyToken, jwt.TypeEmailVerification)
	if err != nil {
		s.log.Debug().Err(err).Msg("verification token rejected by codec")
		return ErrInvalidVerifyToken
	}

	if err := s.userRepo.MarkVerified(ctx, claims.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidVerifyToken
		}
		return err
	}

	s.log.Info().Str("user_id", claims.UserID).Msg("email verified")
	return nil
}

// ValidateAccessToken validates an access token
func (s *AuthService) ValidateAccessToken(accessToken string) (*jwt.Claims, error) {
	return s.tokens.ValidateAccessToken(accessToken)
}

// GetUserByID gets a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// CountActiveSessions counts the stored refresh tokens of a user
func (s *AuthService) CountActiveSessions(ctx context.Context, userID string) (int64, error) {
	return s.refreshTokenRepo.CountByUserID(ctx, userID)
}

// startSession signs an access/refresh pair and stores the refresh token
func (s *AuthService) startSession(ctx context.Context, user *models.User) (*AuthResponse, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role, organizationOf(user))
	if err != nil {
		return nil, err
	}

	tokenID := uuid.NewString()
	refreshToken, expiresAt, err := s.tokens.GenerateRefreshToken(user.ID, tokenID)
	if err != nil {
		return nil, err
	}

	if err := s.refreshTokenRepo.Create(ctx, &models.RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: password.HashToken(refreshToken),
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func organizationOf(user *models.User) string {
	if user.Organization == nil {
		return ""
	}
	return *user.Organization
}

// observe records the outcome of an auth operation
func observe(operation string, err error) {
	switch {
	case err == nil:
		metrics.ObserveAuth(operation, metrics.OutcomeSuccess)
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound):
		metrics.ObserveAuth(operation, metrics.OutcomeFailure)
	default:
		metrics.ObserveAuth(operation, metrics.OutcomeError)
	}
}

// verifyDummy spends one hash comparison on a throwaway hash so an unknown
// email costs as much as a wrong password.
func (s *AuthService) verifyDummy(plain string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("unknown-account-" + uuid.NewString())
		if err != nil {
			s.log.Warn().Err(err).Msg("could not prepare dummy hash")
			return
		}
		s.dummyHash = hash
	})
	s.hasher.Verify(plain, s.dummyHash)
}
