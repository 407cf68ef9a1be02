package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// Token type discriminators
const (
	TypeRefresh           = "refresh"
	TypePasswordReset     = "password-reset"
	TypeEmailVerification = "email-verification"
)

// Fixed lifetimes
const (
	RefreshTokenLifetime      = 7 * 24 * time.Hour
	PasswordResetLifetime     = time.Hour
	EmailVerificationLifetime = 24 * time.Hour
)

// Claims represents the access token claims
type Claims struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Organization string `json:"organization,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the refresh token claims
type RefreshClaims struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
	Type    string `json:"type"`
	jwt.RegisteredClaims
}

// ActionClaims carry a single-purpose grant such as a password reset
type ActionClaims struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// Options configures a Manager
type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
}

// Manager signs and validates HS256 tokens. It holds no mutable state
// and is safe for concurrent use.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

// NewManager creates a token manager
func NewManager(opts Options) *Manager {
	return &Manager{
		accessSecret:  []byte(opts.AccessSecret),
		refreshSecret: []byte(opts.RefreshSecret),
		accessTTL:     opts.AccessTTL,
		issuer:        opts.Issuer,
		audience:      opts.Audience,
		now:           time.Now,
	}
}

// WithClock returns a copy of m that reads time from now
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// AccessTTL returns the configured access token lifetime
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

// GenerateAccessToken generates a new access token
func (m *Manager) GenerateAccessToken(userID, email, role, organization string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:       userID,
		Email:        email,
		Role:         role,
		Organization: organization,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   userID,
		},
	}

	return m.sign(claims, m.accessSecret)
}

// GenerateRefreshToken generates a new refresh token and returns its expiry
func (m *Manager) GenerateRefreshToken(userID, tokenID string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(RefreshTokenLifetime)
	claims := RefreshClaims{
		UserID:  userID,
		TokenID: tokenID,
		Type:    TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token, err := m.sign(claims, m.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// GenerateActionToken signs a typed grant with the access secret
func (m *Manager) GenerateActionToken(userID, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := ActionClaims{
		UserID: userID,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	return m.sign(claims, m.accessSecret)
}

// ValidateAccessToken validates an access token and returns claims.
// Issuer and audience must match.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims, m.accessSecret,
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateRefreshToken validates a refresh token and returns claims
func (m *Manager) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenString, claims, m.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateActionToken validates a typed grant. A grant of another type is invalid.
func (m *Manager) ValidateActionToken(tokenString, tokenType string) (*ActionClaims, error) {
	claims := &ActionClaims{}
	if err := m.parse(tokenString, claims, m.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != tokenType || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (m *Manager) parse(tokenString string, claims jwt.Claims, secret []byte, opts ...jwt.ParserOption) error {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
