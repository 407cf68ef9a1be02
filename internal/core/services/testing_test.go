package services

import (
	"sync"
	"testing"
	"time"

	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/pkg/jwt"
	"school-crm-api/internal/pkg/password"
	"school-crm-api/internal/testutil"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type sentNotification struct {
	kind  string
	email string
	token string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) NotifyWelcome(user *models.User, verifyToken string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: "welcome", email: user.Email, token: verifyToken})
}

func (n *recordingNotifier) NotifyPasswordReset(email, resetToken string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: "reset", email: email, token: resetToken})
}

func (n *recordingNotifier) last() (sentNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentNotification{}, false
	}
	return n.sent[len(n.sent)-1], true
}

type authFixture struct {
	store    *testutil.Store
	tokens   *jwt.Manager
	notifier *recordingNotifier
	auth     *AuthService
	users    *UserService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	store := testutil.NewStore()
	tokens := jwt.NewManager(jwt.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		Issuer:        "school-crm-api",
		Audience:      "school-crm-frontend",
	})
	hasher := password.NewBcrypt(bcrypt.MinCost)
	notifier := &recordingNotifier{}

	return &authFixture{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		auth:     NewAuthService(store.Users(), store.RefreshTokens(), tokens, hasher, notifier, zerolog.Nop()),
		users:    NewUserService(store.Users(), store.RefreshTokens(), hasher, zerolog.Nop()),
	}
}
