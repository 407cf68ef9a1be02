package middleware

import (
	"errors"
	"strings"

	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/pkg/jwt"
	"school-crm-api/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AuthMiddleware validates the access token and loads the account. A
// deleted or deactivated account is refused even while its token is valid.
func AuthMiddleware(tokens *jwt.Manager, userRepo repositories.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := bearerToken(c)
		if accessToken == "" {
			return response.Unauthorized(c, "Access token required")
		}

		claims, err := tokens.ValidateAccessToken(accessToken)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return response.Unauthorized(c, "Access token expired")
			}
			return response.Unauthorized(c, "Invalid access token")
		}

		user, err := userRepo.GetByID(c.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.Unauthorized(c, "User not found")
			}
			return response.InternalServerError(c, "Failed to load user")
		}
		if !user.IsActive {
			return response.Unauthorized(c, "Account is disabled")
		}

		c.Locals("userID", user.ID)
		c.Locals("email", user.Email)
		c.Locals("role", user.Role)
		organization := ""
		if user.Organization != nil {
			organization = *user.Organization
		}
		c.Locals("organization", organization)

		return c.Next()
	}
}

// bearerToken reads the Authorization header first, then the access_token cookie
func bearerToken(c *fiber.Ctx) string {
	if authHeader := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Cookies("access_token")
}

// RoleMiddleware creates role-based authorization middleware
func RoleMiddleware(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("role").(string)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}

		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				return c.Next()
			}
		}

		return response.Forbidden(c, "You don't have permission to access this resource")
	}
}

// AdminOnly middleware allows only ADMIN role
func AdminOnly() fiber.Handler {
	return RoleMiddleware("ADMIN")
}

// OrganizationMiddleware restricts a route to members of one organization
func OrganizationMiddleware(organization string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if own, _ := c.Locals("organization").(string); own != organization {
			return response.Forbidden(c, "Access denied for this organization")
		}
		return c.Next()
	}
}
