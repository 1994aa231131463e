package handler

import (
	"strings"

	"activation-portal/internal/model"
	"activation-portal/internal/service"

	"github.com/gofiber/fiber/v2"
)

type KeyInput struct {
	Value       string `json:"key_value"`
	Description string `json:"description"`
	MaxUsage    *int   `json:"max_usage"`
	// Active defaults to true when omitted on create. An update without it
	// keeps the stored flag.
	Active *bool `json:"is_active"`
	// UsageCount resets the counter on update; ignored on create.
	UsageCount *int `json:"usage_count"`
}

func (in *KeyInput) toService() service.KeyInput {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return service.KeyInput{
		Value:       in.Value,
		Description: in.Description,
		MaxUsage:    in.MaxUsage,
		Active:      active,
	}
}

// BulkKeyInput carries one key per line in Keys.
type BulkKeyInput struct {
	Keys        string `json:"keys"`
	Description string `json:"description"`
	MaxUsage    *int   `json:"max_usage"`
	Active      *bool  `json:"is_active"`
}

func (h *Handler) HandleListKeys(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	filter := service.KeyFilter{
		Search:          c.Query("search"),
		IncludeInactive: c.QueryBool("include_inactive", true),
	}

	keys, total, err := h.keys.List(c.UserContext(), filter, page)
	if err != nil {
		return h.keyError(c, err)
	}
	return c.JSON(paged(keys, total, page))
}

func (h *Handler) HandleGetKey(c *fiber.Ctx) error {
	key, err := h.keys.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.keyError(c, err)
	}
	return c.JSON(key)
}

func (h *Handler) HandleCreateKey(c *fiber.Ctx) error {
	input := new(KeyInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid input",
		})
	}

	key, err := h.keys.Create(c.UserContext(), input.toService())
	if err != nil {
		return h.keyError(c, err)
	}

	h.recordOperation(c, model.ActionKeyCreate, "activation_key", key.ID, fiber.Map{"key_value": key.Value})
	h.mirrorKey(key)
	return c.Status(fiber.StatusCreated).JSON(key)
}

func (h *Handler) HandleBulkCreateKeys(c *fiber.Ctx) error {
	input := new(BulkKeyInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid input",
		})
	}

	template := (&KeyInput{Description: input.Description, MaxUsage: input.MaxUsage, Active: input.Active}).toService()
	keys, err := h.keys.CreateBulk(c.UserContext(), strings.Split(input.Keys, "\n"), template)
	if err != nil {
		return h.keyError(c, err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.ID)
		h.mirrorKey(key)
	}
	h.recordOperation(c, model.ActionKeyBulkCreate, "activation_key", "", fiber.Map{"ids": ids})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"created": len(keys),
		"keys":    keys,
	})
}

func (h *Handler) HandleUpdateKey(c *fiber.Ctx) error {
	input := new(KeyInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid input",
		})
	}

	key, err := h.keys.Update(c.UserContext(), c.Params("id"), service.KeyUpdate{
		KeyInput:   input.toService(),
		UsageCount: input.UsageCount,
		KeepActive: input.Active == nil,
	})
	if err != nil {
		return h.keyError(c, err)
	}

	h.recordOperation(c, model.ActionKeyUpdate, "activation_key", key.ID, input)
	h.mirrorKey(key)
	return c.JSON(key)
}

func (h *Handler) HandleToggleKey(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key, err := h.keys.Get(ctx, c.Params("id"))
	if err != nil {
		return h.keyError(c, err)
	}

	key, err = h.keys.SetActive(ctx, key.ID, !key.Active)
	if err != nil {
		return h.keyError(c, err)
	}

	h.recordOperation(c, model.ActionKeyToggle, "activation_key", key.ID, fiber.Map{"is_active": key.Active})
	h.mirrorKey(key)
	return c.JSON(key)
}

func (h *Handler) HandleDeleteKey(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.keys.Delete(c.UserContext(), id); err != nil {
		return h.keyError(c, err)
	}

	h.recordOperation(c, model.ActionKeyDelete, "activation_key", id, nil)
	h.unmirrorKey(id)
	return c.JSON(fiber.Map{
		"message": "activation key deleted",
	})
}
