package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	AppMode  string
	Port     string
	LogLevel string
	Database DatabaseConfig
	JWT      JWTConfig
	Cookie   CookieConfig
	Security SecurityConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	Frontend FrontendConfig
	Cron     CronConfig
	Seed     SeedConfig

	allowedOrigins string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // mysql or postgres
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds token signing configuration.
// Refresh and password-reset lifetimes are fixed in the jwt package.
type JWTConfig struct {
	Secret          string
	RefreshSecret   string
	AccessTokenMins int
	Issuer          string
	Audience        string
}

// AccessTTL returns the access token lifetime
func (j JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTokenMins) * time.Minute
}

// CookieConfig holds cookie configuration
type CookieConfig struct {
	Secure   bool
	SameSite string
	Domain   string
}

// SecurityConfig holds password hashing settings
type SecurityConfig struct {
	BcryptCost int
}

// RedisConfig is optional. An empty Addr keeps rate limits in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SMTPConfig is optional. An empty Host disables email delivery.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// FrontendConfig holds the base URL used in emailed links
type FrontendConfig struct {
	URL string
}

// CronConfig holds background job schedules (six fields, seconds first)
type CronConfig struct {
	CleanupSchedule string
}

// SeedConfig holds the bootstrap admin account. Empty values skip seeding.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	// Trim spaces for Windows compatibility
	appMode := strings.TrimSpace(v.GetString("APP_MODE"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	config := &Config{
		AppMode:  appMode,
		Port:     v.GetString("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Database: loadDatabaseConfig(v, appMode),
		JWT:      loadJWTConfig(v, appMode),
		Cookie:   loadCookieConfig(v, appMode),
		Security: SecurityConfig{
			BcryptCost: v.GetInt("BCRYPT_COST"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		SMTP: SMTPConfig{
			Host:        v.GetString("SMTP_HOST"),
			Port:        v.GetInt("SMTP_PORT"),
			Username:    v.GetString("SMTP_USER"),
			Password:    v.GetString("SMTP_PASS"),
			FromName:    v.GetString("EMAIL_FROM_NAME"),
			FromAddress: v.GetString("EMAIL_FROM_ADDRESS"),
		},
		Frontend: FrontendConfig{
			URL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		},
		Cron: CronConfig{
			CleanupSchedule: v.GetString("CLEANUP_SCHEDULE"),
		},
		Seed: SeedConfig{
			AdminEmail:    v.GetString("SEED_ADMIN_EMAIL"),
			AdminPassword: v.GetString("SEED_ADMIN_PASSWORD"),
		},
		allowedOrigins: v.GetString("ALLOWED_ORIGINS"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_MODE", "dev")
	v.SetDefault("PORT", "3000")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("ACCESS_TOKEN_MINUTES", 15)
	v.SetDefault("JWT_ISSUER", "school-crm-api")
	v.SetDefault("JWT_AUDIENCE", "school-crm-frontend")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_FROM_NAME", "School CRM")
	v.SetDefault("EMAIL_FROM_ADDRESS", "noreply@school-crm.local")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("CLEANUP_SCHEDULE", "0 30 3 * * *")
	v.SetDefault("COOKIE_SAMESITE", "lax")

	for _, prefix := range []string{"DEV_", "PROD_"} {
		v.SetDefault(prefix+"DB_HOST", "localhost")
		v.SetDefault(prefix+"DB_USER", "root")
		v.SetDefault(prefix+"DB_NAME", "school_crm")
		v.SetDefault(prefix+"DB_SSLMODE", "disable")
		v.SetDefault(prefix+"COOKIE_SECURE", false)
	}
	v.SetDefault("DEV_JWT_SECRET", "dev_secret")
	v.SetDefault("DEV_JWT_REFRESH_SECRET", "dev_refresh_secret")
}

func modePrefix(mode string) string {
	if mode == "prod" {
		return "PROD_"
	}
	return "DEV_"
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(v *viper.Viper, mode string) DatabaseConfig {
	prefix := modePrefix(mode)
	driver := strings.ToLower(v.GetString("DB_DRIVER"))

	port := v.GetString(prefix + "DB_PORT")
	if port == "" {
		port = "3306"
		if driver == "postgres" {
			port = "5432"
		}
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     v.GetString(prefix + "DB_HOST"),
		Port:     port,
		User:     v.GetString(prefix + "DB_USER"),
		Password: v.GetString(prefix + "DB_PASS"),
		DBName:   v.GetString(prefix + "DB_NAME"),
		SSLMode:  v.GetString(prefix + "DB_SSLMODE"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(v *viper.Viper, mode string) JWTConfig {
	prefix := modePrefix(mode)

	return JWTConfig{
		Secret:          v.GetString(prefix + "JWT_SECRET"),
		RefreshSecret:   v.GetString(prefix + "JWT_REFRESH_SECRET"),
		AccessTokenMins: v.GetInt("ACCESS_TOKEN_MINUTES"),
		Issuer:          v.GetString("JWT_ISSUER"),
		Audience:        v.GetString("JWT_AUDIENCE"),
	}
}

// loadCookieConfig loads cookie config based on mode
func loadCookieConfig(v *viper.Viper, mode string) CookieConfig {
	prefix := modePrefix(mode)

	return CookieConfig{
		Secure:   v.GetBool(prefix + "COOKIE_SECURE"),
		SameSite: v.GetString("COOKIE_SAMESITE"),
		Domain:   v.GetString("COOKIE_DOMAIN"),
	}
}

func (c *Config) validate() error {
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid DB_DRIVER: '%s' (must be 'mysql' or 'postgres')", c.Database.Driver)
	}
	if c.JWT.Secret == "" || c.JWT.RefreshSecret == "" {
		return fmt.Errorf("%sJWT_SECRET and %sJWT_REFRESH_SECRET are required", modePrefix(c.AppMode), modePrefix(c.AppMode))
	}
	if c.JWT.Secret == c.JWT.RefreshSecret {
		return fmt.Errorf("access and refresh secrets must differ")
	}
	if c.JWT.AccessTokenMins < 1 {
		return fmt.Errorf("ACCESS_TOKEN_MINUTES must be positive")
	}
	return nil
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	if c.allowedOrigins == "" {
		if c.IsDev() {
			return "*"
		}
		return c.Frontend.URL
	}
	return c.allowedOrigins
}
