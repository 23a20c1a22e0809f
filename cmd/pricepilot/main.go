package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	apiv1 "github.com/PricePilot/PricePilot/internal/api/v1"
	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	"github.com/PricePilot/PricePilot/internal/pkg/archive"
	"github.com/PricePilot/PricePilot/internal/pkg/cache"
	"github.com/PricePilot/PricePilot/internal/pkg/database"
	"github.com/PricePilot/PricePilot/internal/pkg/discount"
	"github.com/PricePilot/PricePilot/internal/pkg/env"
	"github.com/PricePilot/PricePilot/internal/pkg/history"
	"github.com/PricePilot/PricePilot/internal/pkg/market"
	"github.com/PricePilot/PricePilot/internal/pkg/notification"
	"github.com/PricePilot/PricePilot/internal/pkg/pricecache"
	"github.com/PricePilot/PricePilot/internal/pkg/pricing"
	"github.com/PricePilot/PricePilot/internal/pkg/router"
	"github.com/PricePilot/PricePilot/internal/pkg/rules"
	"github.com/PricePilot/PricePilot/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()

	// Graceful shutdown: stop the scheduler (waiting for in-flight
	// evaluations) before closing the HTTP listener.
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		log.Println("Shutdown signal received")
		scheduler.GetManager().Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	if err := models.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
	}

	repos := repository.GetGlobalRepositories()

	resolver := market.NewResolver(repos.MarketCondition)
	ruleEngine := rules.NewEngine(repos.AutomationRule)
	priceCache := pricecache.New(models.GetAppSettings().GetPriceCacheTTL)
	notifier := notification.NewPriceChangeNotifier()
	calculator := pricing.NewCalculator(repos.Plan, resolver, ruleEngine, priceCache, notifier)
	discounts := discount.NewEngine(repos.Coupon, repos.User)
	ledger := history.NewLedger(repos.PriceHistory)
	competitor := market.NewCompetitorClient(repos.Plan, repos.MarketCondition)

	var exporter *archive.Exporter
	if cfg, err := archive.LoadConfig(); err != nil {
		log.Printf("S3 archive disabled: %v", err)
	} else if cfg.IsEnabled() {
		client, err := archive.NewClient(cfg)
		if err != nil {
			log.Printf("S3 archive disabled: %v", err)
		} else {
			exporter = archive.NewExporter(client, ledger)
		}
	}

	manager := scheduler.InitializeManager(calculator, competitor, exporter, repos.Plan, repos.MarketCondition)
	if models.GetAppSettings().IsEngineEnabled() {
		manager.Start()
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "PricePilot",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, apiv1.NewAPIServer(calculator, discounts, ledger, resolver, priceCache))

	return app
}
