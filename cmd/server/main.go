package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/config"
	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/handler"
	"github.com/iliyamo/hostel-occupancy/internal/logger"
	"github.com/iliyamo/hostel-occupancy/internal/middleware"
	"github.com/iliyamo/hostel-occupancy/internal/occupancy"
	"github.com/iliyamo/hostel-occupancy/internal/queue"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
	"github.com/iliyamo/hostel-occupancy/internal/router"
)

const serviceName = "hostel-occupancy"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// ---- Storage ----
	var (
		rooms    occupancy.RoomStore
		students occupancy.StudentStore
		store    handler.Pinger
	)
	switch cfg.StorageDriver {
	case config.DriverMySQL:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if cfg.MigrationsDir != "" {
			if err := database.RunMigrations(ctx, db, cfg.MigrationsDir, log); err != nil {
				return err
			}
		}
		rooms, students, store = repository.NewRoomRepo(db), repository.NewStudentRepo(db), db
	default:
		mem := repository.NewMemoryStore()
		rooms, students = mem, mem
		log.Warn("using in-memory storage; data is lost on restart")
	}

	// ---- Redis (optional) ----
	optional := map[string]handler.Pinger{}
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis unavailable; caching and rate limiting disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		optional["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	// ---- Events ----
	var events occupancy.Events
	if cfg.EventsEnabled {
		events = queue.NewPublisher(cfg.AMQPURL, log.Named("publisher"))
	}
	if cfg.AuditConsumerEnabled {
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogPath, log.Named("audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := occupancy.NewService(rooms, students, events, log.Named("occupancy"), cfg.MaxRetries)

	// ---- HTTP ----
	e := newEcho(cfg, log, rdb, svc, handler.NewHealthHandler(store, optional))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("storage", cfg.StorageDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

func newEcho(cfg config.Config, log *zap.Logger, rdb *redis.Client, svc *occupancy.Service, health *handler.HealthHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	v := handler.NewValidator()
	e.Validator = v

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.Named("http")))

	router.RegisterRoutes(e, health)
	router.RegisterRooms(e, handler.NewRoomHandler(svc, v, log.Named("handler")), router.RoomDeps{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Log:       log,
	})
	return e
}
