package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"zines/internal/backend"
	"zines/internal/config"
	"zines/internal/handlers"
	"zines/internal/identity"
	"zines/internal/metrics"
	"zines/internal/middleware"
	"zines/internal/repositories"
	"zines/internal/services"
	"zines/pkg/database"
	"zines/pkg/docstore"
	"zines/pkg/logger"
	"zines/pkg/rabbitmq"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "zines",
		Short:        "Zine publishing API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		logger.Init(cfg.App.Environment)
		logger.SetLevel(logLevel)
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return migrate(cfg)
		},
	})
	return root
}

func documentOpener(cfg config.DocStoreConfig) backend.DocumentOpener {
	return func(ctx context.Context) (*badger.DB, error) {
		badgerLog := logger.Component("docstore")
		return docstore.Open(docstore.Config{
			Path:       cfg.Path,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
			Logger:     &badgerLog,
		})
	}
}

func relationalOpener(cfg config.DatabaseConfig) backend.RelationalOpener {
	return func(ctx context.Context) (*gorm.DB, error) {
		return database.Open(database.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			LogQueries:      cfg.LogQueries,
		})
	}
}

// newVerifier picks signed JWT verification when a key is configured. Without
// one only the development token, if any, is accepted.
func newVerifier(cfg *config.Config) (identity.Verifier, error) {
	auth := cfg.Auth
	if auth.JWTSecret != "" || auth.JWTPublicKey != "" {
		return identity.NewJWTVerifier(identity.JWTConfig{
			Secret:       auth.JWTSecret,
			PublicKeyPEM: auth.JWTPublicKey,
			Issuer:       auth.JWTIssuer,
			Audience:     auth.JWTAudience,
		})
	}
	if cfg.IsProduction() {
		return nil, errors.New("no token verification key configured")
	}

	principals := map[string]identity.Principal{}
	if auth.DevToken != "" {
		principals[auth.DevToken] = identity.Principal{
			ExternalID:  "dev",
			Email:       "dev@localhost",
			DisplayName: "Developer",
		}
		log.Warn().Msg("accepting the development token, do not use in production")
	} else {
		log.Warn().Msg("no token verification configured, every sign-in will be rejected")
	}
	return identity.NewStaticVerifier(principals), nil
}

// newApp builds the Fiber app over an already selected repository.
func newApp(cfg *config.Config, repo repositories.Repository, verifier identity.Verifier, events services.EventPublisher, m *metrics.Metrics) *fiber.App {
	svc := handlers.Services{
		Auth:         services.NewAuthService(repo, verifier),
		Publications: services.NewPublicationService(repo, events, m),
		Social:       services.NewSocialService(repo, events, m, cfg.App.FeedPerCreator),
		Analytics:    services.NewAnalyticsService(repo, m),
	}

	app := fiber.New(fiber.Config{AppName: "zines"})

	// --- Middleware ---
	app.Use(recover.New())
	app.Use(fiberlogger.New()) // Request logger
	app.Use(middleware.RequestMetrics(m))

	// --- API Routes ---
	handlers.Mount(app.Group("/api/v1"), svc, m)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		status, code := "healthy", fiber.StatusOK
		if err := repo.Ping(c.UserContext()); err != nil {
			log.Error().Err(err).Msg("health check failed")
			status, code = "unhealthy", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":  status,
			"backend": repo.Backend(),
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	return app
}

func serve(cfg *config.Config) error {
	ctx := context.Background()
	m := metrics.New()

	selector := backend.NewSelector(documentOpener(cfg.DocStore), relationalOpener(cfg.Database), backend.Options{
		DocumentEnabled: cfg.DocStore.Enabled,
		ScanLimit:       cfg.DocStore.ScanLimit,
		MaxRetries:      cfg.DocStore.MaxRetries,
		AutoMigrate:     cfg.Database.AutoMigrate,
		Metrics:         m,
	})
	handle, err := selector.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	repo := handle.Repository()
	defer repo.Close()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	// --- Initialize RabbitMQ Client ---
	var events services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue})
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, events will not be published")
		} else {
			defer mqClient.Close()
			events = mqClient
		}
	}

	app := newApp(cfg, repo, verifier, events, m)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Str("backend", string(handle.Kind())).Msg("starting server")
		serverErr <- app.Listen(cfg.App.Port)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	log.Info().Msg("server gracefully stopped")
	return nil
}

func migrate(cfg *config.Config) error {
	db, err := relationalOpener(cfg.Database)(context.Background())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := repositories.NewGORMRepository(db)
	defer repo.Close()

	if err := repositories.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("schema migrated")
	return nil
}
