// Package jwtware protects fiber routes with access token validation and
// optional role checks. It holds no signing material of its own; a
// TokenValidator, normally the auth package's token service, does the
// cryptographic work.
package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	auth "github.com/authxlabs/go-authx"
)

var ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")

// TokenValidator validates an access token and returns its claims.
type TokenValidator interface {
	ValidateAccess(tokenString string) (*auth.AccessClaims, error)
}

// Config holds the middleware configuration.
type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(*fiber.Ctx) bool
	// ErrorHandler renders validation failures. Defaults to a JSON 401.
	ErrorHandler fiber.ErrorHandler
	// TokenValidator is required
	TokenValidator TokenValidator
	// ContextKey is the fiber locals key the claims are stored under.
	// Defaults to "claims".
	ContextKey string
	// AuthScheme is the Authorization header scheme. Defaults to "Bearer".
	AuthScheme string

	// RequiredRole demands an exact role match
	RequiredRole auth.UserRole
	// MinimumRole demands at least this role in the hierarchy
	MinimumRole auth.UserRole

	// ContextEnricher propagates claims into the request's standard
	// context, so code below the handler can use auth.GetClaims.
	ContextEnricher func(ctx context.Context, claims *auth.AccessClaims) context.Context
}

// New creates the middleware.
func New(config Config) fiber.Handler {
	if config.TokenValidator == nil {
		panic("jwtware: TokenValidator is required")
	}

	if config.ContextKey == "" {
		config.ContextKey = "claims"
	}

	if config.AuthScheme == "" {
		config.AuthScheme = "Bearer"
	}

	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultErrorHandler
	}

	return func(c *fiber.Ctx) error {
		if config.Filter != nil && config.Filter(c) {
			return c.Next()
		}

		token, err := tokenFromHeader(c, config.AuthScheme)
		if err != nil {
			return config.ErrorHandler(c, err)
		}

		claims, err := config.TokenValidator.ValidateAccess(token)
		if err != nil {
			return config.ErrorHandler(c, err)
		}

		if config.RequiredRole != "" && !claims.HasRole(config.RequiredRole) {
			return config.ErrorHandler(c, auth.ErrForbidden)
		}

		if config.MinimumRole != "" && !claims.IsAtLeast(config.MinimumRole) {
			return config.ErrorHandler(c, auth.ErrForbidden)
		}

		c.Locals(config.ContextKey, claims)

		if config.ContextEnricher != nil {
			c.SetUserContext(config.ContextEnricher(c.UserContext(), claims))
		}

		return c.Next()
	}
}

// ClaimsFromLocals retrieves the claims a successful run stored on the
// request. The key must match Config.ContextKey.
func ClaimsFromLocals(c *fiber.Ctx, key string) (*auth.AccessClaims, bool) {
	if key == "" {
		key = "claims"
	}
	claims, ok := c.Locals(key).(*auth.AccessClaims)
	return claims, ok
}

func tokenFromHeader(c *fiber.Ctx, scheme string) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, scheme+" ")
	if !ok || token == "" {
		return "", ErrJWTMissingOrMalformed
	}
	return token, nil
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	message := "Invalid or expired JWT"

	if errors.Is(err, ErrJWTMissingOrMalformed) {
		status = fiber.StatusBadRequest
		message = ErrJWTMissingOrMalformed.Error()
	}

	if errors.Is(err, auth.ErrForbidden) {
		status = fiber.StatusForbidden
		message = auth.ErrForbidden.Message
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"message": message},
	})
}
