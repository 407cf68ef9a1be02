package routes

import (
	"school-crm-api/internal/adapters/http/handlers"
	"school-crm-api/internal/adapters/http/middleware"
	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/config"
	"school-crm-api/internal/core/domain"
	"school-crm-api/internal/core/services"
	"school-crm-api/internal/pkg/jwt"
	"school-crm-api/internal/pkg/metrics"
	"school-crm-api/internal/pkg/password"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps carries process-scoped collaborators created in main. A nil Storage
// keeps rate limit counters in memory; a nil Registry hides /metrics.
type Deps struct {
	Log      zerolog.Logger
	Notifier services.Notifier
	Storage  fiber.Storage
	Registry *prometheus.Registry
}

// Setup configures all routes for the application
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config, deps Deps) {
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)

	register(app, cfg, deps, db, userRepo, refreshTokenRepo)
}

// register wires services and handlers over the given repositories
func register(
	app *fiber.App,
	cfg *config.Config,
	deps Deps,
	db *gorm.DB,
	userRepo repositories.UserRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
) {
	tokens := jwt.NewManager(jwt.Options{
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL(),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
	})
	hasher := password.NewBcrypt(cfg.Security.BcryptCost)
	notifier := deps.Notifier
	if notifier == nil {
		notifier = services.NoopNotifier{}
	}

	authService := services.NewAuthService(userRepo, refreshTokenRepo, tokens, hasher, notifier, deps.Log)
	userService := services.NewUserService(userRepo, refreshTokenRepo, hasher, deps.Log)
	dashboardService := services.NewDashboardService(userRepo)

	healthHandler := handlers.NewHealthHandler(db, cfg.AppMode)
	authHandler := handlers.NewAuthHandler(authService, notifier, cfg, deps.Log)
	userHandler := handlers.NewUserHandler(userService, deps.Log)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, deps.Log)

	authRequired := middleware.AuthMiddleware(tokens, userRepo)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)
	if deps.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(deps.Registry)))
	}

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	setupAuthRoutes(apiV1.Group("/auth", middleware.NoCacheHeaders()), authHandler, authRequired, deps.Storage)

	userRoutes := apiV1.Group("/users", authRequired, middleware.AdminOnly())
	setupUserRoutes(userRoutes, userHandler)

	apiV1.Get("/dashboard/admin", authRequired, middleware.AdminOnly(), dashboardHandler.GetAdminDashboard)

	profileRoutes := apiV1.Group("/profile", authRequired)
	setupProfileRoutes(profileRoutes, userHandler)

	orgRoutes := apiV1.Group("/organizations", authRequired)
	setupOrganizationRoutes(orgRoutes, userHandler)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, authRequired fiber.Handler, storage fiber.Storage) {
	authLimit := middleware.AuthRateLimiter(storage)
	strictLimit := middleware.StrictRateLimiter(storage)

	// Public routes
	router.Post("/register", authLimit, handler.Register)
	router.Post("/login", authLimit, handler.Login)
	router.Post("/refresh", handler.RefreshToken)
	router.Post("/logout", handler.Logout)
	router.Post("/reset-password-request", strictLimit, handler.RequestPasswordReset)
	router.Post("/reset-password", strictLimit, handler.ResetPassword)
	router.Get("/verify-email/:token", handler.VerifyEmail)

	// Protected routes
	router.Get("/me", authRequired, handler.Me)
	router.Post("/logout-all", authRequired, handler.LogoutAll)
}

// setupUserRoutes configures user management routes (Admin only)
func setupUserRoutes(router fiber.Router, handler *handlers.UserHandler) {
	router.Get("/", handler.ListUsers)
	router.Get("/:id", handler.GetUser)
	router.Put("/:id", handler.UpdateUser)
	router.Delete("/:id", handler.DeleteUser)
}

// setupProfileRoutes configures profile routes (Authenticated)
func setupProfileRoutes(router fiber.Router, handler *handlers.UserHandler) {
	router.Get("/", handler.GetProfile)
	router.Put("/", handler.UpdateProfile)
	router.Put("/password", handler.ChangePassword)
}

// setupOrganizationRoutes exposes one member directory per organization
func setupOrganizationRoutes(router fiber.Router, handler *handlers.UserHandler) {
	for _, org := range []domain.Organization{domain.OrganizationSchool, domain.OrganizationHospital} {
		router.Get("/"+string(org)+"/members", middleware.OrganizationMiddleware(string(org)), handler.ListMembers)
	}
}
