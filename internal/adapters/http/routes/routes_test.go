package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"school-crm-api/internal/adapters/http/middleware"
	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/config"
	"school-crm-api/internal/pkg/metrics"
	"school-crm-api/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type resetMail struct {
	email string
	token string
}

type captureNotifier struct {
	mu    sync.Mutex
	reset []resetMail
}

func (n *captureNotifier) NotifyWelcome(*models.User, string) {}

func (n *captureNotifier) NotifyPasswordReset(email, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset = append(n.reset, resetMail{email: email, token: token})
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reset)
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

type testServer struct {
	app      *fiber.App
	store    *testutil.Store
	notifier *captureNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		AppMode: "dev",
		JWT: config.JWTConfig{
			Secret:          "access-secret",
			RefreshSecret:   "refresh-secret",
			AccessTokenMins: 15,
			Issuer:          "school-crm-api",
			Audience:        "school-crm-frontend",
		},
		Cookie:   config.CookieConfig{SameSite: "lax"},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
	}
}

func newTestServer(t *testing.T, registry *prometheus.Registry) *testServer {
	t.Helper()

	store := testutil.NewStore()
	notifier := &captureNotifier{}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})

	register(app, testConfig(), Deps{
		Log:      zerolog.Nop(),
		Notifier: notifier,
		Registry: registry,
	}, nil, store.Users(), store.RefreshTokens())

	return &testServer{app: app, store: store, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, header map[string]string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	_ = json.Unmarshal(raw, &env)
	return resp, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *testServer) registerUser(t *testing.T, body map[string]string) envelope {
	t.Helper()
	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/register", body, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d %+v", resp.StatusCode, env)
	}
	return env
}

func tokenOf(t *testing.T, env envelope, key string) string {
	t.Helper()
	token, _ := env.Data[key].(string)
	if token == "" {
		t.Fatalf("missing %s in %+v", key, env.Data)
	}
	return token
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	reg := s.registerUser(t, map[string]string{
		"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do",
	})
	regRefresh := tokenOf(t, reg, "refresh_token")
	user, _ := reg.Data["user"].(map[string]interface{})
	userID, _ := user["id"].(string)
	if _, leaked := user["password"]; leaked {
		t.Fatalf("account view contains the password field")
	}
	if s.store.TokenCount(userID) != 1 {
		t.Fatalf("after register: %d rows", s.store.TokenCount(userID))
	}

	resp, login := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "Secret123!"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %+v", resp.StatusCode, login)
	}
	loginRefresh := tokenOf(t, login, "refresh_token")
	if s.store.TokenCount(userID) != 2 {
		t.Fatalf("after login: %d rows", s.store.TokenCount(userID))
	}

	resp, refreshed := s.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": loginRefresh}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d %+v", resp.StatusCode, refreshed)
	}
	if _, ok := refreshed.Data["refresh_token"]; ok {
		t.Fatalf("refresh must not rotate the refresh token")
	}
	access := tokenOf(t, refreshed, "access_token")

	resp, me := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(access))
	if resp.StatusCode != http.StatusOK || me.Data["active_sessions"] != float64(2) {
		t.Fatalf("me: %d %+v", resp.StatusCode, me)
	}

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refresh_token": regRefresh}, nil)
	if resp.StatusCode != http.StatusOK || s.store.TokenCount(userID) != 1 {
		t.Fatalf("logout: %d, %d rows", resp.StatusCode, s.store.TokenCount(userID))
	}

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/reset-password-request", map[string]string{"email": "a@x.com"}, nil)
	if resp.StatusCode != http.StatusOK || s.notifier.count() != 1 {
		t.Fatalf("reset request: %d, %d mails", resp.StatusCode, s.notifier.count())
	}
	grant := s.notifier.reset[0].token

	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{"token": grant, "new_password": "NewPass123!"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: %d %+v", resp.StatusCode, env)
	}
	if s.store.TokenCount(userID) != 0 {
		t.Fatalf("after reset: %d rows", s.store.TokenCount(userID))
	}

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": loginRefresh}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after reset: expected 401, got %d", resp.StatusCode)
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	s := newTestServer(t, nil)

	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "not-an-email", "password": "Secret123!", "first_name": "Jo", "last_name": "Do",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(env.Error, "email") {
		t.Fatalf("expected 400 on email, got %d %+v", resp.StatusCode, env)
	}

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do", "organization": "bank",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(env.Error, "organization") {
		t.Fatalf("expected 400 on organization, got %d %+v", resp.StatusCode, env)
	}

	body := map[string]string{"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do"}
	s.registerUser(t, body)

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/register", body, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %+v", resp.StatusCode, env)
	}
	if s.store.UserCount() != 1 || s.store.TotalTokens() != 1 {
		t.Fatalf("conflict changed state")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerUser(t, map[string]string{"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do"})

	resp1, wrong := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "Wrong1234!"}, nil)
	resp2, unknown := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "b@x.com", "password": "Secret123!"}, nil)

	if resp1.StatusCode != http.StatusUnauthorized || resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", resp1.StatusCode, resp2.StatusCode)
	}
	if wrong.Error != unknown.Error || wrong.Error == "" {
		t.Fatalf("messages differ: %q vs %q", wrong.Error, unknown.Error)
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	s := newTestServer(t, nil)

	for _, body := range []interface{}{nil, map[string]string{"refresh_token": "garbage"}} {
		resp, env := s.do(t, http.MethodPost, "/api/v1/auth/logout", body, nil)
		if resp.StatusCode != http.StatusOK || !env.Success {
			t.Fatalf("logout: %d %+v", resp.StatusCode, env)
		}
	}
}

func TestRefreshFromCookie(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.registerUser(t, map[string]string{"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do"})

	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, map[string]string{
		"Cookie": "refresh_token=" + tokenOf(t, reg, "refresh_token"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh from cookie: %d %+v", resp.StatusCode, env)
	}

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestResetRequestDoesNotRevealAccounts(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerUser(t, map[string]string{"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do"})

	resp1, known := s.do(t, http.MethodPost, "/api/v1/auth/reset-password-request", map[string]string{"email": "a@x.com"}, nil)
	resp2, unknown := s.do(t, http.MethodPost, "/api/v1/auth/reset-password-request", map[string]string{"email": "b@x.com"}, nil)

	if resp1.StatusCode != http.StatusOK || resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", resp1.StatusCode, resp2.StatusCode)
	}
	if known.Message != unknown.Message || known.Data != nil || unknown.Data != nil {
		t.Fatalf("responses differ: %+v vs %+v", known, unknown)
	}
	if s.notifier.count() != 1 || s.notifier.reset[0].email != "a@x.com" {
		t.Fatalf("expected a single reset mail for the known account")
	}
}

func TestResetPasswordRejectsInvalidGrant(t *testing.T) {
	s := newTestServer(t, nil)

	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{"token": "reset-token-placeholder", "new_password": "NewPass123!"}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error != "Invalid or expired token" {
		t.Fatalf("expected 401 invalid token, got %d %+v", resp.StatusCode, env)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.registerUser(t, map[string]string{"email": "admin@x.com", "password": "Secret123!", "first_name": "Ad", "last_name": "Min", "role": "ADMIN"})
	user := s.registerUser(t, map[string]string{"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do"})

	resp, _ := s.do(t, http.MethodGet, "/api/v1/users", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/v1/users", nil, bearer(tokenOf(t, user, "access_token")))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for USER, got %d", resp.StatusCode)
	}

	adminToken := tokenOf(t, admin, "access_token")
	resp, env := s.do(t, http.MethodGet, "/api/v1/users?role=user", nil, bearer(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: %d %+v", resp.StatusCode, env)
	}
	if users, _ := env.Data["users"].([]interface{}); len(users) != 1 {
		t.Fatalf("expected 1 USER, got %+v", env.Data)
	}

	resp, env = s.do(t, http.MethodGet, "/api/v1/dashboard/admin", nil, bearer(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %+v", resp.StatusCode, env)
	}
	if total, _ := env.Data["total_users"].(float64); total != 2 {
		t.Fatalf("expected 2 users on dashboard, got %+v", env.Data)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/v1/users/missing", nil, bearer(adminToken))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	userObj, _ := user.Data["user"].(map[string]interface{})
	userID, _ := userObj["id"].(string)

	resp, env = s.do(t, http.MethodPut, "/api/v1/users/"+userID, map[string]interface{}{"is_active": false}, bearer(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: %d %+v", resp.StatusCode, env)
	}

	// a valid access token no longer authenticates a deactivated account
	resp, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(tokenOf(t, user, "access_token")))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated account, got %d", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/users/"+userID, nil, bearer(adminToken))
	if resp.StatusCode != http.StatusOK || s.store.UserCount() != 1 {
		t.Fatalf("delete: %d, %d users", resp.StatusCode, s.store.UserCount())
	}
}

func TestProfileRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.registerUser(t, map[string]string{"email": "a@x.com", "password": "Secret123!", "first_name": "Jo", "last_name": "Do"})
	token := bearer(tokenOf(t, reg, "access_token"))

	resp, env := s.do(t, http.MethodPut, "/api/v1/profile", map[string]string{"first_name": "Joe"}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update profile: %d %+v", resp.StatusCode, env)
	}

	resp, env = s.do(t, http.MethodPut, "/api/v1/profile/password", map[string]string{"old_password": "Wrong1234!", "new_password": "NewPass123!"}, token)
	if resp.StatusCode != http.StatusBadRequest || env.Error != "Old password is incorrect" {
		t.Fatalf("expected 400 wrong old password, got %d %+v", resp.StatusCode, env)
	}

	resp, _ = s.do(t, http.MethodPut, "/api/v1/profile/password", map[string]string{"old_password": "Secret123!", "new_password": "NewPass123!"}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: %d", resp.StatusCode)
	}
}

func TestOrganizationMembers(t *testing.T) {
	s := newTestServer(t, nil)
	teacher := s.registerUser(t, map[string]string{
		"email": "t@x.com", "password": "Secret123!", "first_name": "Tia", "last_name": "One", "role": "TEACHER", "organization": "school",
	})
	s.registerUser(t, map[string]string{
		"email": "d@x.com", "password": "Secret123!", "first_name": "Dan", "last_name": "Doc", "role": "DOCTOR", "organization": "hospital",
	})
	token := bearer(tokenOf(t, teacher, "access_token"))

	resp, env := s.do(t, http.MethodGet, "/api/v1/organizations/school/members", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("school members: %d %+v", resp.StatusCode, env)
	}
	if users, _ := env.Data["users"].([]interface{}); len(users) != 1 {
		t.Fatalf("expected only school members, got %+v", env.Data)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/v1/organizations/hospital/members", nil, token)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for other organization, got %d", resp.StatusCode)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	s := newTestServer(t, nil)

	resp, _ := s.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without database, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	s := newTestServer(t, registry)

	_, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "Secret123!"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "auth_operations_total") {
		t.Fatalf("metrics missing auth counter: %d", resp.StatusCode)
	}
}
