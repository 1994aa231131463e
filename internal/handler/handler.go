package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"activation-portal/internal/auth"
	"activation-portal/internal/middleware"
	"activation-portal/internal/model"
	"activation-portal/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// KeyMirror receives key changes for an external copy of the key table.
type KeyMirror interface {
	SyncKey(ctx context.Context, key *model.ActivationKey) error
	RemoveKey(ctx context.Context, id string) error
}

const mirrorTimeout = 30 * time.Second

// Handler serves the public redemption endpoint and the admin API.
type Handler struct {
	keys     *service.KeyStore
	ledger   *service.Ledger
	redeemer *service.Redeemer
	auth     *auth.Service
	audit    *service.AuditLog
	mirror   KeyMirror
	log      *zap.Logger
}

type Deps struct {
	Keys     *service.KeyStore
	Ledger   *service.Ledger
	Redeemer *service.Redeemer
	Auth     *auth.Service
	Audit    *service.AuditLog
	// Mirror is optional.
	Mirror KeyMirror
	Log    *zap.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		keys:     d.Keys,
		ledger:   d.Ledger,
		redeemer: d.Redeemer,
		auth:     d.Auth,
		audit:    d.Audit,
		mirror:   d.Mirror,
		log:      d.Log.Named("handler"),
	}
}

// pageFromQuery reads page and page_size; Page.Normalize applies the bounds.
func pageFromQuery(c *fiber.Ctx) service.Page {
	number, _ := strconv.Atoi(c.Query("page", "1"))
	size, _ := strconv.Atoi(c.Query("page_size", "10"))
	return service.Page{Number: number, Size: size}.Normalize()
}

func paged(items any, total int64, page service.Page) fiber.Map {
	return fiber.Map{
		"items": items,
		"total": total,
		"page":  page.Number,
		"size":  page.Size,
	}
}

// recordOperation writes the audit trail. Failures are logged only.
func (h *Handler) recordOperation(c *fiber.Ctx, action, target, targetID string, details any) {
	var userID uint
	if user := middleware.CurrentUser(c); user != nil {
		userID = user.ID
	}
	if err := h.audit.LogOperation(c.UserContext(), userID, action, target, targetID, details); err != nil {
		h.log.Error("failed to record operation", zap.String("action", action), zap.Error(err))
	}
}

// mirrorKey pushes the key to the mirror in the background.
func (h *Handler) mirrorKey(key *model.ActivationKey) {
	if h.mirror == nil {
		return
	}
	snapshot := *key
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := h.mirror.SyncKey(ctx, &snapshot); err != nil {
			h.log.Warn("key mirror sync failed", zap.String("key_id", snapshot.ID), zap.Error(err))
		}
	}()
}

func (h *Handler) unmirrorKey(id string) {
	if h.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := h.mirror.RemoveKey(ctx, id); err != nil {
			h.log.Warn("key mirror remove failed", zap.String("key_id", id), zap.Error(err))
		}
	}()
}

// keyError maps Key Store errors to admin API responses.
func (h *Handler) keyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrKeyNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "activation key not found"})
	case errors.Is(err, service.ErrDuplicateKey):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidKeyInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	h.log.Error("key store failure", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
