package handler

import (
	"errors"

	"activation-portal/internal/metrics"
	"activation-portal/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type AppConfig struct {
	AppName     string
	CORSOrigins string
	// Metrics is served on /metrics when set.
	Metrics *metrics.Recorder
}

// NewApp builds the fiber application with every route registered.
func NewApp(h *Handler, cfg AppConfig, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal server error"
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
				message = fe.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error": message,
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Accept-Language, Authorization",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Gatherer(), promhttp.HandlerOpts{})))
	}

	h.Routes(app)
	return app
}

// Routes registers the API under /api/v1.
func (h *Handler) Routes(app *fiber.App) {
	api := app.Group("/api/v1")
	api.Post("/get-cid", h.HandleGetCID)

	// 认证路由
	auth := api.Group("/auth")
	auth.Post("/login", h.HandleLogin)
	auth.Post("/logout", middleware.Auth(h.auth), h.HandleLogout)
	auth.Get("/validate-admin", h.HandleValidateAdmin)

	// 管理员专用路由
	admin := api.Group("/admin", middleware.Auth(h.auth), middleware.AdminOnly(h.auth))
	admin.Get("/keys", h.HandleListKeys)
	admin.Post("/keys", h.HandleCreateKey)
	admin.Post("/keys/bulk", h.HandleBulkCreateKeys)
	admin.Get("/keys/:id", h.HandleGetKey)
	admin.Put("/keys/:id", h.HandleUpdateKey)
	admin.Delete("/keys/:id", h.HandleDeleteKey)
	admin.Post("/keys/:id/toggle", h.HandleToggleKey)
	admin.Get("/logs", h.HandleListUsageLogs)
	admin.Delete("/logs", h.HandlePurgeUsageLogs)
	admin.Get("/statistics", h.HandleStatistics)
	admin.Get("/operation-logs", h.HandleGetOperationLogs)
}
