package handler

import (
	"activation-portal/internal/model"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HandleStatistics 处理管理面板统计信息请求
func (h *Handler) HandleStatistics(c *fiber.Ctx) error {
	ctx := c.UserContext()

	total, active, err := h.keys.Counts(ctx)
	if err != nil {
		h.log.Error("count keys", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取统计数据失败",
		})
	}

	successful, failed, err := h.ledger.AggregateCounts(ctx)
	if err != nil {
		h.log.Error("count usage logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取统计数据失败",
		})
	}

	stats := &model.DashboardStatistics{
		TotalKeys:          total,
		ActiveKeys:         active,
		InactiveKeys:       total - active,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
	}

	return c.JSON(fiber.Map{
		"totalKeys":          stats.TotalKeys,
		"activeKeys":         stats.ActiveKeys,
		"inactiveKeys":       stats.InactiveKeys,
		"successfulRequests": stats.SuccessfulRequests,
		"failedRequests":     stats.FailedRequests,
		"totalRequests":      stats.TotalRequests(),
		"successRate":        stats.GetSuccessRate(),
	})
}
