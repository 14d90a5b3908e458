package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/NumeroFox/app/controllers"
	"github.com/ManuelReschke/NumeroFox/app/repository"
	apiv1 "github.com/ManuelReschke/NumeroFox/internal/api/v1"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/cache"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/catalog"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/database"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/documents"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/events"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/locker"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/mail"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/messaging"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/middleware"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/payment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/render"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/router"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/tracing"
)

const shutdownTimeout = 20 * time.Second

func main() {
	env.SetupEnvFile()
	setLogLevel(env.GetEnv("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("[NumeroFox] %v", err)
	}
}

func run(ctx context.Context) error {
	shutdownTracing, err := tracing.InitTracerProvider("numerofox", env.GetEnv("JAEGER_ENDPOINT", ""))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warnf("[Tracing] Shutdown: %v", err)
		}
	}()

	if _, err := apiv1.LoadSpec(ctx); err != nil {
		return err
	}

	repos, health := openStore()
	redisClient := cache.GetClient()

	paymentCfg, err := payment.LoadConfig()
	if err != nil {
		return err
	}
	docsCfg, err := documents.LoadConfig()
	if err != nil {
		return err
	}
	docs, err := documents.NewStore(ctx, docsCfg)
	if err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	renderer, err := render.NewRenderer()
	if err != nil {
		return err
	}
	products, err := catalog.Load()
	if err != nil {
		return err
	}

	publisher := events.NewPublisher(events.LoadConfig())
	defer publisher.Close()

	queueCfg := jobqueue.LoadConfig()
	queue := jobqueue.NewQueueWithClient(redisClient, queueCfg)
	manager := jobqueue.NewManager(queue, queueCfg.ReconcileInterval)

	telegramCfg := messaging.LoadConfig()
	transport := messaging.NewTransport(telegramCfg)
	fulfillmentCfg := fulfillment.LoadConfig()
	interpretationCfg := interpretation.LoadConfig()

	orch, err := fulfillment.New(fulfillment.Deps{
		Orders:      repos.Order,
		Interpreter: interpretation.NewPipelineClient(interpretationCfg),
		Previewer:   interpretation.NewClient(interpretationCfg),
		Renderer:    renderer,
		Documents:   docs,
		Transport:   transport,
		Scheduler:   jobqueue.NewOrderScheduler(queue),
		Locker:      locker.NewRedisLocker(redisClient),
		Alerter:     mail.NewSupportAlerter(),
		Catalog:     products,
		Events:      publisher,
	}, fulfillmentCfg)
	if err != nil {
		return err
	}
	queue.RegisterHandler(jobqueue.JobTypeAdvanceOrder, jobqueue.AdvanceOrderHandler(orch))
	manager.SetReconciler(orch)

	orderController := controllers.NewOrderController(orch, repos.Order, docs,
		env.GetEnv("DOWNLOAD_TOKEN_SECRET", ""), env.GetEnvDuration("DOWNLOAD_TOKEN_TTL", 72*time.Hour))
	adminController := controllers.NewAdminController(orch, repos.Order, queue)

	app := newApplication(router.Dependencies{
		API:            apiv1.NewAPIServer(orderController, adminController, middleware.AdminKeyAuth(env.GetEnv("ADMIN_API_KEY_HASH", ""))),
		Payment:        controllers.NewPaymentController(payment.NewGateway(paymentCfg, repos.Order), repos.PaymentEvent, orch),
		Telegram:       controllers.NewTelegramController(orch, transport, fulfillmentCfg.SupportEmail),
		TelegramSecret: telegramCfg.WebhookSecret,
		LimiterStorage: router.NewLimiterStorage(),
		Limits:         router.LoadLimitConfig(),
		MonitorUsers:   monitorUsers(),
		Health: func(ctx context.Context) error {
			if err := health(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
	})

	manager.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		log.Infof("[NumeroFox] Listening on %s", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("[NumeroFox] Shutting down")
		err := app.ShutdownWithTimeout(shutdownTimeout)
		manager.Stop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newApplication(deps router.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "NumeroFox",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath:    "/docs/api/",
		FileContent: apiv1.Spec,
		Path:        "v1",
		Title:       "NumeroFox API",
	}))

	// ROUTER
	router.InstallRouter(app, deps)

	return app
}

// openStore connects the order store. ORDER_STORE=memory runs without MySQL for local development.
func openStore() (*repository.Repositories, func(context.Context) error) {
	if env.GetEnv("ORDER_STORE", "mysql") == "memory" {
		log.Warn("[NumeroFox] ORDER_STORE=memory, orders are lost on restart")
		return &repository.Repositories{
			Order:        repository.NewMemoryOrderRepository(),
			PaymentEvent: repository.NewMemoryPaymentEventRepository(),
		}, func(context.Context) error { return nil }
	}

	database.SetupDatabase()
	db := database.GetDB()
	repository.InitializeFactory(db)
	return repository.GetGlobalRepositories(), func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func monitorUsers() map[string]string {
	user, password := env.GetEnv("MONITOR_USER", ""), env.GetEnv("MONITOR_PASSWORD", "")
	if user == "" || password == "" {
		return nil
	}
	return map[string]string{user: password}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}
}
