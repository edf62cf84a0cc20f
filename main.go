package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mergington/config"
	"mergington/db"
	"mergington/logging"
	"mergington/middlewares"
	"mergington/models"
	"mergington/routes"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if !dotenv {
		logger.Info("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	gdb, err := db.Open(db.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		Logger:   logger.Named("gorm"),
		LogLevel: db.GormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		logger.Fatal("could not open database", zap.Error(err))
	}
	defer func() { _ = db.Close(gdb) }()
	if err := db.InitDB(ctx, gdb); err != nil {
		logger.Fatal("could not initialize database", zap.Error(err))
	}

	// Redis (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, cache and quota degrade to pass-through",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()
		defer func() { _ = rdb.Close() }()
	}

	// Gin
	gin.SetMode(gin.ReleaseMode)
	server := gin.New()
	server.Use(gin.Recovery())

	routes.RegisterRoutes(server, models.NewGormActivityRepository(gdb), routes.Options{
		Logger:    logger,
		StaticDir: cfg.StaticDir,
		RateLimiter: middlewares.NewRateLimiter(ctx, middlewares.LimiterConfig{
			RPS:     cfg.RateLimitRPS,
			Burst:   cfg.RateLimitBurst,
			IdleTTL: 3 * time.Minute,
		}),
		Redis:       rdb,
		CacheTTL:    cfg.CacheTTL,
		SignupQuota: cfg.SignupDailyQuota,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
