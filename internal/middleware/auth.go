package middleware

import (
	"strings"

	"activation-portal/internal/auth"
	"activation-portal/internal/model"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by Auth.
const (
	LocalUser  = "user"
	LocalToken = "token"
)

// BearerToken returns the token of an "Authorization: Bearer ..." header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", false
	}

	// 获取 Bearer token
	tokenParts := strings.Fields(authHeader)
	if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
		return "", false
	}
	return tokenParts[1], true
}

func Auth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or malformed bearer token",
			})
		}

		// 验证令牌
		user, err := svc.CurrentUser(c.UserContext(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired session",
			})
		}

		c.Locals(LocalUser, user)
		c.Locals(LocalToken, token)
		return c.Next()
	}
}

// AdminOnly must run after Auth.
func AdminOnly(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil || !svc.IsAdminUser(user) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "administrator access required",
			})
		}
		return c.Next()
	}
}

// CurrentUser returns the user stored by Auth, or nil.
func CurrentUser(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(LocalUser).(*model.User)
	return user
}
