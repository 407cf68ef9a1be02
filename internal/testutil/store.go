// Package testutil provides an in-memory credential store for tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/core/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store keeps users and refresh tokens in maps. It mirrors the GORM
// repositories: misses return gorm.ErrRecordNotFound and unique
// violations return domain.ErrDuplicateEntry.
type Store struct {
	mu     sync.Mutex
	users  map[string]models.User
	tokens map[string]models.RefreshToken // keyed by token hash

	// FailTokenDelete makes DeleteByTokenHash return this error
	FailTokenDelete error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:  make(map[string]models.User),
		tokens: make(map[string]models.RefreshToken),
	}
}

// Users returns the store as a UserRepository
func (s *Store) Users() repositories.UserRepository { return userRepo{s} }

// RefreshTokens returns the store as a RefreshTokenRepository
func (s *Store) RefreshTokens() repositories.RefreshTokenRepository { return tokenRepo{s} }

// UserCount returns the number of stored users
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// TokenCount returns the number of refresh tokens owned by userID
func (s *Store) TokenCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// TotalTokens returns the number of stored refresh tokens
func (s *Store) TotalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// SetTokenExpiry overwrites the expiry of every token owned by userID
func (s *Store) SetTokenExpiry(userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.tokens {
		if t.UserID == userID {
			t.ExpiresAt = expiresAt
			s.tokens[hash] = t
		}
	}
}

// SetActive flips the active flag of a user
func (s *Store) SetActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsActive = active
		s.users[userID] = u
	}
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return domain.ErrDuplicateEntry
		}
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r userRepo) Update(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, u := range r.s.users {
		if id != user.ID && u.Email == user.Email {
			return domain.ErrDuplicateEntry
		}
	}
	stored, ok := r.s.users[user.ID]
	if !ok {
		return nil
	}
	user.UpdatedAt = time.Now()
	stored.Email = user.Email
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Role = user.Role
	stored.Organization = user.Organization
	stored.IsActive = user.IsActive
	stored.UpdatedAt = user.UpdatedAt
	r.s.users[user.ID] = stored
	return nil
}

func (r userRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(u *models.User) { u.LastLogin = &at })
}

func (r userRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.mutate(id, func(u *models.User) { u.Password = passwordHash })
}

func (r userRepo) MarkVerified(_ context.Context, id string) error {
	return r.mutate(id, func(u *models.User) { u.IsVerified = true })
}

func (r userRepo) mutate(id string, fn func(*models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

func (r userRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.users, id)
	return nil
}

func (r userRepo) List(_ context.Context, filter repositories.UserFilter, offset, limit int) ([]*models.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*models.User
	for _, u := range r.s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Organization != "" && (u.Organization == nil || *u.Organization != filter.Organization) {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(u.Email, filter.Search) &&
			!strings.Contains(u.FirstName, filter.Search) &&
			!strings.Contains(u.LastName, filter.Search) {
			continue
		}
		found := u
		matched = append(matched, &found)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Email < matched[j].Email
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.User{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r userRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r userRepo) CountByRole(_ context.Context, role string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(_ context.Context, token *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[token.TokenHash]; ok {
		return domain.ErrDuplicateEntry
	}
	stored := *token
	stored.User = models.User{}
	stored.CreatedAt = time.Now()
	r.s.tokens[token.TokenHash] = stored
	return nil
}

func (r tokenRepo) GetByTokenHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	t.User = r.s.users[t.UserID]
	return &t, nil
}

func (r tokenRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTokenDelete != nil {
		return r.s.FailTokenDelete
	}
	delete(r.s.tokens, tokenHash)
	return nil
}

func (r tokenRepo) DeleteAllByUserID(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for hash, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, hash)
		}
	}
	return nil
}

func (r tokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for hash, t := range r.s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

func (r tokenRepo) CountByUserID(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}
