package handler

import (
	"strconv"
	"time"

	"activation-portal/internal/model"
	"activation-portal/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HandleListUsageLogs 查询兑换记录
func (h *Handler) HandleListUsageLogs(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	filter := service.LogFilter{
		Search: c.Query("search"),
		KeyID:  c.Query("key_id"),
	}
	if s := c.Query("success"); s != "" {
		success, err := strconv.ParseBool(s)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "success must be true or false",
			})
		}
		filter.Success = &success
	}

	logs, total, err := h.ledger.List(c.UserContext(), filter, page)
	if err != nil {
		h.log.Error("list usage logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load usage logs",
		})
	}
	return c.JSON(paged(logs, total, page))
}

// HandlePurgeUsageLogs deletes entries created before the given date.
func (h *Handler) HandlePurgeUsageLogs(c *fiber.Ctx) error {
	before, err := time.Parse("2006-01-02", c.Query("before"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "before must be a date in YYYY-MM-DD format",
		})
	}

	n, err := h.ledger.Purge(c.UserContext(), before)
	if err != nil {
		h.log.Error("purge usage logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to purge usage logs",
		})
	}

	h.recordOperation(c, model.ActionLogPurge, "usage_log", "", fiber.Map{"before": before.Format("2006-01-02"), "deleted": n})
	return c.JSON(fiber.Map{
		"deleted": n,
	})
}

// HandleGetOperationLogs 获取操作日志
func (h *Handler) HandleGetOperationLogs(c *fiber.Ctx) error {
	page := pageFromQuery(c)

	var (
		logs  []model.OperationLog
		total int64
		err   error
	)
	if s := c.Query("user_id"); s != "" {
		userID, perr := strconv.ParseUint(s, 10, 64)
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id must be an unsigned integer",
			})
		}
		logs, total, err = h.audit.GetUserOperationLogs(c.UserContext(), uint(userID), page)
	} else {
		logs, total, err = h.audit.GetOperationLogs(c.UserContext(), page)
	}
	if err != nil {
		h.log.Error("list operation logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取操作日志失败",
		})
	}
	return c.JSON(paged(logs, total, page))
}
