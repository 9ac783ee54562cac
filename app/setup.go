package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/learnhub-api/api"
	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/router"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/services/cron"
	"github.com/sahilchouksey/learnhub-api/services/events"
	"github.com/sahilchouksey/learnhub-api/services/razorpay"
	"github.com/sahilchouksey/learnhub-api/services/storage"
	"github.com/sahilchouksey/learnhub-api/utils/auth"
	"github.com/sahilchouksey/learnhub-api/utils/cache"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
)

// Options override parts of the dependency graph, mainly for tests
type Options struct {
	Gateway    services.Gateway           // Defaults to the Razorpay REST client
	Cache      *cache.RedisCache          // Defaults to connecting to REDIS_URL; nil on failure
	SkipRedis  bool                       // Do not connect to Redis
	ExtraSinks []services.NotificationSink // Appended after the configured sinks
	Quiet      bool                       // No access log
}

// Container holds the wired services shared by the HTTP server, CLI and cron jobs
type Container struct {
	Config        *config.Config
	Store         database.Storage
	Cache         *cache.RedisCache
	JWT           *auth.JWTManager
	Blacklist     *auth.BlacklistService
	Signer        *razorpay.Signer
	Notifications *services.NotificationService
	Dispatcher    *services.NotificationDispatcher
	Enrollments   *services.EnrollmentService
	Payments      *services.PaymentService

	publisher *events.Publisher
	quiet     bool
}

// NewContainer wires every service. Optional backends (Redis, Spaces, Kafka, SMTP) are
// skipped with a warning when not configured or unreachable.
func NewContainer(cfg *config.Config, store database.Storage, opts Options) (*Container, error) {
	db := store.DB()

	c := &Container{
		Config: cfg,
		Store:  store,
		Cache:  opts.Cache,
		JWT: auth.NewJWTManager(auth.JWTConfig{
			Secret:        cfg.JWT.Secret,
			Expiry:        cfg.JWT.Expiry,
			RefreshExpiry: cfg.JWT.RefreshExpiry,
			Issuer:        cfg.JWT.Issuer,
		}),
		Blacklist:     auth.NewBlacklistService(db),
		Signer:        razorpay.NewSigner(cfg.Razorpay.KeySecret, cfg.Razorpay.WebhookSecret),
		Notifications: services.NewNotificationService(db),
		quiet:         opts.Quiet,
	}

	if c.Cache == nil && !opts.SkipRedis {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection and distributed order locks will be disabled.", err)
		} else {
			c.Cache = redisCache
		}
	}

	sinks, err := c.buildSinks()
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, opts.ExtraSinks...)

	c.Dispatcher = services.NewNotificationDispatcher(db, services.DispatcherConfig{
		Workers:     cfg.Notifications.Workers,
		QueueSize:   cfg.Notifications.QueueSize,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		Backoff:     cfg.Notifications.Backoff,
		Timeout:     cfg.Notifications.Timeout,
	}, sinks...)

	c.Enrollments = services.NewEnrollmentService(db, c.Dispatcher)

	gateway := opts.Gateway
	if gateway == nil {
		gateway = razorpay.NewClient(razorpay.Config{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			BaseURL:   cfg.Razorpay.BaseURL,
			Timeout:   cfg.Razorpay.Timeout,
		})
	}

	var locker services.OrderLocker
	if c.Cache != nil {
		locker = services.NewRedisOrderLocker(c.Cache, cfg.Payments.OrderLock)
	}

	c.Payments = services.NewPaymentService(db, gateway, c.Signer, c.Enrollments, services.PaymentOptions{
		KeyID:    cfg.Razorpay.KeyID,
		Currency: cfg.Payments.Currency,
		Locker:   locker,
	})

	return c, nil
}

func (c *Container) buildSinks() ([]services.NotificationSink, error) {
	sinks := []services.NotificationSink{
		services.NewInAppSink(c.Notifications),
		services.NewAdminAlertSink(c.Notifications),
	}

	email := services.NewEmailService(c.Config.SMTP)
	if email.IsConfigured() {
		sinks = append(sinks, services.NewEmailSink(email))
	} else {
		log.Println("Warning: SMTP not configured, enrollment emails are disabled")
	}

	if c.Config.Spaces.Enabled() {
		spaces, err := storage.NewSpacesClient(storage.SpacesConfig{
			AccessKey: c.Config.Spaces.AccessKey,
			SecretKey: c.Config.Spaces.SecretKey,
			Bucket:    c.Config.Spaces.Bucket,
			Region:    c.Config.Spaces.Region,
			Endpoint:  c.Config.Spaces.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Spaces client: %w", err)
		}
		sinks = append(sinks, services.NewReceiptSink(spaces))
	}

	if len(c.Config.Kafka.Brokers) > 0 {
		publisher, err := events.NewPublisher(c.Config.Kafka.Brokers, c.Config.Kafka.TopicPrefix)
		if err != nil {
			log.Printf("Warning: Failed to connect to Kafka: %v. Enrollment events will not be published.", err)
		} else {
			c.publisher = publisher
			sinks = append(sinks, services.NewEventSink(publisher))
		}
	}

	return sinks, nil
}

// RouteDeps returns the dependencies the HTTP routes are built on
func (c *Container) RouteDeps() router.Deps {
	var bruteForce *middleware.BruteForceProtection
	if c.Cache != nil {
		bruteForce = middleware.NewBruteForceProtection(c.Cache)
	}

	return router.Deps{
		Store:         c.Store,
		JWT:           c.JWT,
		BruteForce:    bruteForce,
		BcryptCost:    c.Config.JWT.BcryptCost,
		Payments:      c.Payments,
		Enrollments:   c.Enrollments,
		Notifications: c.Notifications,
		Dispatcher:    c.Dispatcher,
		Security: middleware.SecurityConfig{
			AllowedOrigins:    c.Config.AllowedOrigins,
			RateLimitRequests: c.Config.RateLimitRequests,
			RateLimitWindow:   c.Config.RateLimitWindow,
			Quiet:             c.quiet,
		},
	}
}

// CronDeps returns the services the scheduled jobs operate on
func (c *Container) CronDeps() cron.Deps {
	return cron.Deps{
		Payments:      c.Payments,
		Dispatcher:    c.Dispatcher,
		Notifications: c.Notifications,
		Blacklist:     c.Blacklist,
		PendingTTL:    c.Config.Payments.PendingTTL,
	}
}

// Close stops the dispatcher and releases the optional backends. The store is left open.
func (c *Container) Close(ctx context.Context) {
	if err := c.Dispatcher.Stop(ctx); err != nil {
		log.Printf("Warning: notification dispatcher did not drain: %v", err)
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			log.Printf("Warning: failed to close Kafka producer: %v", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			log.Printf("Warning: failed to close Redis: %v", err)
		}
	}
}

// openStore connects to the configured database and runs migrations
func openStore(cfg *config.Config) (*database.GORMStore, error) {
	store, err := database.StartGORM(cfg)
	if err != nil {
		log.Println("Check whether the database is running and DB_* variables are set")
		return nil, err
	}

	if err := store.Init(); err != nil {
		log.Println("Failed to initialize database tables")
		store.Close()
		return nil, err
	}

	return store, nil
}

// SetupAndRunServer starts the HTTP server, the notification workers and the cron jobs,
// and shuts them down in reverse order on SIGINT or SIGTERM
func SetupAndRunServer(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	container, err := NewContainer(cfg, store, Options{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container.Dispatcher.Start(context.Background())

	var cronManager *cron.CronManager
	if cfg.Cron.Enabled {
		cronManager = cron.NewCronManager(store.DB(), container.CronDeps())
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Printf("Warning: Failed to start cron jobs: %v", err)
			cronManager = nil
		}
	}

	server := api.NewAPIServer(fmt.Sprintf(":%d", cfg.Port))
	router.SetupRoutes(server.GetEngine(), container.RouteDeps())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	select {
	case err = <-serverErr:
	case <-ctx.Done():
		log.Println("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("Warning: HTTP server shutdown: %v", shutdownErr)
	}
	if cronManager != nil {
		cronManager.Stop()
	}
	container.Close(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
