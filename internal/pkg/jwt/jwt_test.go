package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		Issuer:        "school-crm-api",
		Audience:      "school-crm-frontend",
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken("user-1", "a@x.com", "TEACHER", "school")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@x.com" || claims.Role != "TEACHER" || claims.Organization != "school" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "school-crm-api" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "school-crm-frontend" {
		t.Fatalf("unexpected audience %v", claims.Audience)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	m := newTestManager()
	issued := time.Now().Add(-time.Hour)
	token, err := m.WithClock(func() time.Time { return issued }).
		GenerateAccessToken("user-1", "a@x.com", "USER", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestAccessTokenRejectsOtherAudience(t *testing.T) {
	m := newTestManager()
	other := NewManager(Options{
		AccessSecret: "access-secret",
		AccessTTL:    time.Minute,
		Issuer:       "school-crm-api",
		Audience:     "someone-else",
	})

	token, err := other.GenerateAccessToken("user-1", "a@x.com", "USER", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestAccessTokenRejectsTampering(t *testing.T) {
	m := newTestManager()
	token, _ := m.GenerateAccessToken("user-1", "a@x.com", "USER", "")

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".c2lnbmF0dXJl"
	if _, err := m.ValidateAccessToken(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	m := newTestManager()
	now := time.Now()
	m = m.WithClock(func() time.Time { return now })

	token, expiresAt, err := m.GenerateRefreshToken("user-1", "tok-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !expiresAt.Equal(now.Add(RefreshTokenLifetime)) {
		t.Fatalf("expected 7 day expiry, got %v", expiresAt)
	}

	claims, err := m.ValidateRefreshToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.TokenID != "tok-1" || claims.ID != "tok-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// signed with the refresh secret, so never an access token
	if _, err := m.ValidateAccessToken(token); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}
}

func TestRefreshTokensAreDistinct(t *testing.T) {
	m := newTestManager()
	a, _, _ := m.GenerateRefreshToken("user-1", "tok-1")
	b, _, _ := m.GenerateRefreshToken("user-1", "tok-2")
	if a == b {
		t.Fatalf("expected distinct tokens for distinct ids")
	}
}

func TestActionTokenType(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateActionToken("user-1", TypePasswordReset, PasswordResetLifetime)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.ValidateActionToken(token, TypePasswordReset)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected user %q", claims.UserID)
	}

	if _, err := m.ValidateActionToken(token, TypeEmailVerification); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong type to be invalid, got %v", err)
	}
	if _, err := m.ValidateAccessToken(token); err == nil {
		t.Fatalf("reset grant accepted as access token")
	}
}

func TestActionTokenRejectsAccessToken(t *testing.T) {
	m := newTestManager()
	access, _ := m.GenerateAccessToken("user-1", "a@x.com", "USER", "")

	if _, err := m.ValidateActionToken(access, TypePasswordReset); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestActionTokenExpired(t *testing.T) {
	m := newTestManager()
	past := time.Now().Add(-2 * time.Hour)
	token, _ := m.WithClock(func() time.Time { return past }).
		GenerateActionToken("user-1", TypePasswordReset, PasswordResetLifetime)

	if _, err := m.ValidateActionToken(token, TypePasswordReset); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}
