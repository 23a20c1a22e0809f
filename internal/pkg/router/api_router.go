package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	apiv1 "github.com/PricePilot/PricePilot/internal/api/v1"
	"github.com/PricePilot/PricePilot/internal/pkg/cache"
	"github.com/PricePilot/PricePilot/internal/pkg/env"
	"github.com/PricePilot/PricePilot/internal/pkg/middleware"
)

type ApiRouter struct {
	server *apiv1.APIServer
}

func NewApiRouter(server *apiv1.APIServer) *ApiRouter {
	return &ApiRouter{server: server}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Get("/ping", h.server.GetPing)

	protected := v1.Group("", middleware.APIKeyAuthMiddleware())
	protected.Post("/plans/:id/evaluate", h.server.PostEvaluatePlan)
	protected.Get("/plans/:id/price", h.server.GetPlanPrice)
	protected.Get("/plans/:id/history", h.server.GetPlanHistory)
	protected.Post("/discounts/apply", h.server.PostApplyDiscounts)
	protected.Get("/engine/status", h.server.GetEngineStatus)

	admin := protected.Group("/engine", middleware.AdminOnlyMiddleware())
	admin.Post("/start", h.server.PostEngineStart)
	admin.Post("/stop", h.server.PostEngineStop)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold
// across instances. Database 1 keeps limiter keys out of the price cache.
func newLimiterStorage() *redis.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
