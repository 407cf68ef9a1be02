package handlers

import (
	"errors"
	"strings"

	"school-crm-api/internal/core/domain"
	"school-crm-api/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// serviceError maps a service error to its HTTP status. Errors without a
// domain kind are logged and answered with fallback.
func serviceError(c *fiber.Ctx, log zerolog.Logger, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return response.BadRequest(c, publicMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		return response.Unauthorized(c, publicMessage(err))
	case errors.Is(err, domain.ErrForbidden):
		return response.Forbidden(c, publicMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		return response.NotFound(c, publicMessage(err))
	case errors.Is(err, domain.ErrConflict):
		return response.Conflict(c, publicMessage(err))
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg(fallback)
		return response.InternalServerError(c, fallback)
	}
}

func isUnauthorized(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}

// publicMessage drops the "kind: " prefix and capitalizes the rest
func publicMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// currentUserID returns the user id set by the auth middleware
func currentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("userID").(string)
	return userID, ok && userID != ""
}
