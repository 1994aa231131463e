package handler

import (
	"errors"
	"strings"

	"activation-portal/internal/auth"
	"activation-portal/internal/middleware"
	"activation-portal/internal/model"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid input",
		})
	}
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email and password are required",
		})
	}

	token, user, err := h.auth.Login(c.UserContext(), input.Email, input.Password, ClientIP(c), c.Get(fiber.HeaderUserAgent))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserDisabled):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid email or password",
		})
	case err != nil:
		h.log.Error("login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"token":   token,
		"user":    userView(user),
		"isAdmin": h.auth.IsAdminUser(user),
	})
}

func (h *Handler) HandleLogout(c *fiber.Ctx) error {
	token, _ := c.Locals(middleware.LocalToken).(string)
	if err := h.auth.SignOut(c.UserContext(), token); err != nil {
		h.log.Error("sign out failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
	return c.JSON(fiber.Map{
		"message": "signed out",
	})
}

// HandleValidateAdmin tells the admin UI whether the bearer of the token
// is the administrator. A missing or invalid session is a 401.
func (h *Handler) HandleValidateAdmin(c *fiber.Ctx) error {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"isAdmin": false,
			"error":   "no authenticated user",
		})
	}

	user, err := h.auth.CurrentUser(c.UserContext(), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"isAdmin": false,
			"error":   "invalid session",
		})
	}

	isAdmin := h.auth.IsAdminUser(user)
	message := "user is not an administrator"
	if isAdmin {
		message = "valid administrator"
	}
	return c.JSON(fiber.Map{
		"isAdmin": isAdmin,
		"message": message,
	})
}

func userView(user *model.User) fiber.Map {
	return fiber.Map{
		"id":        user.ID,
		"email":     user.Email,
		"status":    user.Status,
		"createdat": user.CreatedAt,
		"updatedat": user.UpdatedAt,
		"lastlogin": user.LastLogin,
	}
}
