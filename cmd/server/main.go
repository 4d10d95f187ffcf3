package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/dumu-tech/cafe-orders/internal/adapters/http"
	"github.com/dumu-tech/cafe-orders/internal/adapters/memory"
	"github.com/dumu-tech/cafe-orders/internal/adapters/payment"
	"github.com/dumu-tech/cafe-orders/internal/adapters/postgres"
	redisCache "github.com/dumu-tech/cafe-orders/internal/adapters/redis"
	"github.com/dumu-tech/cafe-orders/internal/adapters/whatsapp"
	"github.com/dumu-tech/cafe-orders/internal/cache"
	"github.com/dumu-tech/cafe-orders/internal/config"
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/events"
	"github.com/dumu-tech/cafe-orders/internal/jobs"
	"github.com/dumu-tech/cafe-orders/internal/logging"
	"github.com/dumu-tech/cafe-orders/internal/metrics"
	"github.com/dumu-tech/cafe-orders/internal/middleware"
	"github.com/dumu-tech/cafe-orders/internal/pricing"
	"github.com/dumu-tech/cafe-orders/internal/seed"
	"github.com/dumu-tech/cafe-orders/internal/service"
	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const demoBranch = "main"

// backend is everything the services need from storage
type backend struct {
	store   core.Store
	catalog core.CatalogRepository
	coupons core.CouponRepository
	staff   core.StaffRepository
	ping    func(ctx context.Context) error
	close   func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		zlog.Fatal("failed to register metrics", zap.Error(err))
	}
	if err := middleware.InitMetrics(prometheus.DefaultRegisterer); err != nil {
		zlog.Fatal("failed to register HTTP metrics", zap.Error(err))
	}

	be, err := openBackend(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer be.close()

	readCache, closeCache, err := openCache(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open cache", zap.String("driver", cfg.CacheDriver), zap.Error(err))
	}
	defer closeCache()

	loc := cfg.Location()
	bus := events.NewEventBus()
	stats := service.NewStatsService(loc, readCache, zlog)
	calc := pricing.NewCalculator(be.catalog, pricing.NewCouponBook(be.coupons), time.Now)

	orders := service.NewOrderService(be.store, calc, stats, bus, zlog, cfg.WriteRetries, nil)
	merges := service.NewMergeService(be.store, stats, bus, zlog, cfg.WriteRetries, cfg.MergeTimeout, nil)
	tables := service.NewTableService(be.store, zlog, cfg.WriteRetries, nil)
	dashboard := service.NewDashboardService(be.store, stats, readCache, cfg.StatsCacheTTL, bus, zlog, nil)
	auth := service.NewAuthService(be.staff, cfg.JWTSecret, cfg.JWTTTL, nil)

	verifier, err := payment.NewVerifier(cfg.PaymentWebhookSecret)
	if err != nil {
		zlog.Fatal("failed to initialize payment webhook verifier", zap.Error(err))
	}

	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		client, err := whatsapp.NewClient(whatsapp.DefaultBaseURL, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppToken, zlog)
		if err != nil {
			zlog.Fatal("failed to initialize WhatsApp client", zap.Error(err))
		}
		go whatsapp.NewOrderNotifier(client, zlog).Run(ctx, bus)
		zlog.Info("customer notifications enabled")
	} else {
		zlog.Info("customer notifications disabled: WhatsApp credentials not set")
	}

	scheduler := gocron.NewScheduler(loc)
	reconciler := jobs.NewStatsReconciler(be.store, stats, zlog, nil)
	if _, err := reconciler.Schedule(scheduler, cfg.ReconcileInterval); err != nil {
		zlog.Fatal("failed to schedule stats reconciliation", zap.Error(err))
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	handler := httpAdapter.NewHandler(orders, merges, tables, calc, be.catalog, be.coupons, verifier, zlog)
	dashboardHandler := httpAdapter.NewDashboardHandler(auth, dashboard, cfg.JWTTTL, cfg.AppEnv == "production", zlog)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Cafe Orders API",
		ServerHeader: "Fiber",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(middleware.PrometheusMiddleware())

	// Health check route
	app.Get("/health", func(c *fiber.Ctx) error {
		pingCtx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := be.ping(pingCtx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"project": "cafe-orders",
			"storage": cfg.StorageDriver,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpAdapter.RegisterRoutes(app, handler, dashboardHandler, auth)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.AppPort)
	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.AppEnv))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	case <-ctx.Done():
		zlog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("shutdown did not complete cleanly", zap.Error(err))
		}
	}
}

func openBackend(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*backend, error) {
	if cfg.StorageDriver == "memory" {
		return memoryBackend(ctx, zlog)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// The pool backs the health check; GORM keeps its own connections.
	dbpool, err := pgxpool.New(connectCtx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := dbpool.Ping(connectCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	zlog.Info("PostgreSQL connection established")

	repo, err := postgres.NewRepository(cfg.DBURL, zlog)
	if err != nil {
		dbpool.Close()
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		dbpool.Close()
		_ = repo.Close()
		return nil, err
	}

	return &backend{
		store:   repo,
		catalog: repo.Catalog(),
		coupons: repo.Coupons(),
		staff:   repo.Staff(),
		ping:    dbpool.Ping,
		close: func() {
			if err := repo.Close(); err != nil {
				zlog.Warn("failed to close repository", zap.Error(err))
			}
			dbpool.Close()
		},
	}, nil
}

// memoryBackend serves the demo branch from process memory. Nothing
// survives a restart.
func memoryBackend(ctx context.Context, zlog *zap.Logger) (*backend, error) {
	store := memory.NewStore()
	for _, t := range seed.Tables(demoBranch, 8) {
		if err := store.Tables().Create(ctx, t); err != nil {
			return nil, err
		}
	}

	items, err := seed.Catalog(demoBranch)
	if err != nil {
		return nil, err
	}

	users := make([]*core.StaffUser, 0, len(seed.DefaultStaff))
	for _, m := range seed.DefaultStaff {
		hash, err := service.HashPIN(m.PIN)
		if err != nil {
			return nil, err
		}
		users = append(users, &core.StaffUser{
			ID:          seed.StaffID(demoBranch, m.Phone),
			BranchID:    demoBranch,
			Name:        m.Name,
			PhoneNumber: m.Phone,
			Role:        m.Role,
			PinHash:     hash,
			IsActive:    true,
			CreatedAt:   time.Now(),
		})
	}

	zlog.Warn("using in-memory storage; data is lost on restart", zap.String("branch_id", demoBranch))
	return &backend{
		store:   store,
		catalog: memory.NewCatalog(items...),
		coupons: memory.NewCoupons(seed.Coupons()...),
		staff:   memory.NewStaff(users...),
		ping:    func(context.Context) error { return nil },
		close:   func() {},
	}, nil
}

func openCache(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (cache.Cache, func(), error) {
	if cfg.CacheDriver != "redis" {
		return cache.NewMemory(time.Now), func() {}, nil
	}

	client, err := redisCache.Connect(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info("Redis connection established")
	return redisCache.NewCache(client), func() {
		if err := client.Close(); err != nil {
			zlog.Warn("failed to close Redis client", zap.Error(err))
		}
	}, nil
}
