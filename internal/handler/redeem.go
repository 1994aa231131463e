package handler

import (
	"strings"

	"activation-portal/internal/format"
	"activation-portal/internal/i18n"
	"activation-portal/internal/service"

	"github.com/gofiber/fiber/v2"
)

type GetCIDInput struct {
	ActivationKey string `json:"activationKey"`
	IID           string `json:"iid"`
}

// HandleGetCID redeems an activation key for a confirmation id. Every
// outcome is answered with the redemption response shape, never a bare 500.
func (h *Handler) HandleGetCID(c *fiber.Ctx) error {
	lang := i18n.Negotiate(c.Get(fiber.HeaderAcceptLanguage))

	input := new(GetCIDInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":   false,
			"message":   i18n.Text(lang, i18n.MissingFields),
			"errorCode": fiber.StatusBadRequest,
		})
	}

	res := h.redeemer.Redeem(c.UserContext(), service.RedeemRequest{
		ActivationKey:  input.ActivationKey,
		InstallationID: input.IID,
		ClientIP:       ClientIP(c),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
	})

	if res.Success {
		return c.JSON(fiber.Map{
			"success":   true,
			"cid":       res.ConfirmationID,
			"cidGroups": format.ConfirmationIDGroups(res.ConfirmationID),
			"message":   i18n.Text(lang, res.Message),
		})
	}
	return c.Status(res.Status).JSON(fiber.Map{
		"success":   false,
		"message":   i18n.Text(lang, res.Message),
		"errorCode": res.Status,
	})
}

// ClientIP picks the caller address from proxy headers, falling back to
// the socket peer. Loopback forms collapse to 127.0.0.1.
func ClientIP(c *fiber.Ctx) string {
	var ip string
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		ip = strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if ip == "" {
		ip = strings.TrimSpace(c.Get("X-Real-IP"))
	}
	if ip == "" {
		ip = strings.TrimSpace(c.Get("CF-Connecting-IP"))
	}
	if ip == "" {
		ip = c.IP()
	}

	switch ip {
	case "::1", "::ffff:127.0.0.1":
		return "127.0.0.1"
	}
	return ip
}
