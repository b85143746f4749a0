package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/shopdesk/shopdesk-backend/internal/api"
	"github.com/shopdesk/shopdesk-backend/internal/api/handlers"
	"github.com/shopdesk/shopdesk-backend/internal/config"
	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
	"github.com/shopdesk/shopdesk-backend/internal/database"
	"github.com/shopdesk/shopdesk-backend/internal/dispatch"
	"github.com/shopdesk/shopdesk-backend/internal/orchestrator"
	"github.com/shopdesk/shopdesk-backend/internal/promptbuilder"
	"github.com/shopdesk/shopdesk-backend/internal/providers/factory"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Context store: database-backed when configured, in-memory otherwise.
	var (
		store contextstore.Store
		db    *database.DB
	)
	if cfg.Database.Enabled {
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()

		if err := database.RunMigrations(cfg.Database); err != nil {
			logger.WithError(err).Fatal("failed to run migrations")
		}

		store = contextstore.NewPostgresStore(db.DB, contextstore.PostgresOptions{
			AutoCreate:    cfg.Session.AutoCreate,
			IdleTTL:       cfg.Session.IdleTTL,
			SweepInterval: cfg.Session.SweepInterval,
			Logger:        logger,
		})
	} else {
		store = contextstore.NewMemoryStore(contextstore.MemoryOptions{
			AutoCreate:    cfg.Session.AutoCreate,
			IdleTTL:       cfg.Session.IdleTTL,
			SweepInterval: cfg.Session.SweepInterval,
			Logger:        logger,
		})
	}
	defer store.Close()

	adapter := buildAdapter(db, logger)

	// Providers
	registry, errs := factory.BuildRegistry(cfg.Providers)
	for _, err := range errs {
		logger.WithError(err).Warn("provider initialization failed")
	}

	providerCfg, ok := cfg.Providers[cfg.DefaultProvider]
	if !ok {
		logger.Fatalf("default provider %q is not configured", cfg.DefaultProvider)
	}
	provider := registry.Get(cfg.DefaultProvider)
	if provider == nil {
		logger.Fatalf("default provider %q unavailable; is its API key set?", cfg.DefaultProvider)
	}

	dispatcher := dispatch.NewDispatcher(provider, dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseBackoff: cfg.Dispatch.BaseBackoff,
		CallTimeout: cfg.Dispatch.CallTimeout,
		Logger:      logger,
	})

	model := selectModel(dispatcher, providerCfg, logger)

	assembler := promptbuilder.NewAssembler(nil, cfg.Chat.FragmentCap, logger)

	orch := orchestrator.New(store, adapter, assembler, dispatcher, orchestrator.Params{
		SystemPrompt:  cfg.Chat.SystemPrompt,
		TokenBudget:   cfg.Chat.TokenBudget,
		Model:         model,
		Temperature:   cfg.Chat.Temperature,
		MaxTokens:     cfg.Chat.MaxTokens,
		BlockWhenBusy: cfg.Session.BusyPolicy != "reject",
	}, logger)

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:      "Shopdesk Backend",
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	api.SetupRoutes(app, handlers.NewChatHandler(orch, logger))

	logger.WithFields(logrus.Fields{
		"port":     cfg.Server.Port,
		"provider": cfg.DefaultProvider,
		"model":    model,
	}).Info("shopdesk backend starting")

	if err := app.Listen(listenAddr(cfg)); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

// buildAdapter wires catalog sources: SQL-backed when a database is
// available, the in-memory demo tables otherwise.
func buildAdapter(db *database.DB, logger *logrus.Logger) *dataadapter.Adapter {
	if db == nil {
		return dataadapter.NewAdapter(logger, dataadapter.DemoSources()...)
	}

	return dataadapter.NewAdapter(logger,
		dataadapter.NewSQLSource(db.DB, "orders", `
			SELECT order_id, customer_id, status, total, order_date, shipping_address, tracking_number, can_cancel, items
			FROM orders
			WHERE order_id = upper($1) OR customer_id = upper($1) OR status ILIKE '%' || $1 || '%'
			ORDER BY order_id`),
		dataadapter.NewSQLSource(db.DB, "products", `
			SELECT product_id, name, category, price, availability, stock_count, rating, description, features
			FROM products
			WHERE product_id = upper($1) OR name ILIKE '%' || $1 || '%'
			   OR category ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
			ORDER BY product_id`),
		dataadapter.NewSQLSource(db.DB, "customers", `
			SELECT customer_id, name, email, phone, address, loyalty_points, tier, order_history
			FROM customers
			WHERE customer_id = upper($1) OR email ILIKE $1 OR name ILIKE '%' || $1 || '%'
			ORDER BY customer_id`),
	)
}

// selectModel probes the configured model and walks the fallback list when
// the primary is rejected.
func selectModel(d *dispatch.Dispatcher, cfg config.ProviderConfig, logger *logrus.Logger) string {
	candidates := append([]string{cfg.DefaultModel}, cfg.FallbackModels...)

	for _, model := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := d.Probe(ctx, model)
		cancel()

		if err == nil {
			if model != cfg.DefaultModel {
				logger.WithField("model", model).Warn("primary model unavailable, using fallback")
			}
			return model
		}
		logger.WithError(err).WithField("model", model).Warn("model probe failed")
	}

	// All probes failed (e.g. offline at startup); stick with the primary
	// and let per-turn retries handle it.
	return cfg.DefaultModel
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func listenAddr(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "localhost" {
		host = ""
	}
	return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
}
