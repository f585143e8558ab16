package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/clock"
	"github.com/avekor/giftcode-vending/internal/config"
	"github.com/avekor/giftcode-vending/internal/database"
	"github.com/avekor/giftcode-vending/internal/handler"
	"github.com/avekor/giftcode-vending/internal/ledger"
	"github.com/avekor/giftcode-vending/internal/logger"
	"github.com/avekor/giftcode-vending/internal/middleware"
	"github.com/avekor/giftcode-vending/internal/payment"
	"github.com/avekor/giftcode-vending/internal/queue"
	"github.com/avekor/giftcode-vending/internal/repository"
	"github.com/avekor/giftcode-vending/internal/router"
	"github.com/avekor/giftcode-vending/internal/sweeper"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.InitSchema(ctx, db); err != nil {
		log.Fatal("schema init failed", zap.Error(err))
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			log.Fatal("catalog load failed", zap.String("path", cfg.CatalogPath), zap.Error(err))
		}
	}
	log.Info("catalog loaded", zap.Int("skus", len(cat)))

	store := repository.NewStore(db)
	vend := ledger.New(store, cat, clock.NewSystem(), cfg.ReserveTTL, log)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting off and payment correlation on durable path only")
	}
	// Cache entries must outlive the reservation they correlate.
	correlator := payment.NewCorrelator(rdb, vend, 2*cfg.ReserveTTL)

	go sweeper.Run(ctx, vend, cfg.SweepInterval, log)
	go queue.StartSalesConsumer(cfg.AMQPURL, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg.JWTSecret, cfg.GatewayKeyHash, cfg.AdminPasswordHash, log))
	router.RegisterShop(e, handler.NewShopHandler(vend, cat, correlator, cfg.AMQPURL, log), cfg.JWTSecret, limiter)
	router.RegisterWebhook(e, handler.NewWebhookHandler(vend, cat, correlator, cfg.GatewayKeyHash, cfg.AMQPURL, log))
	router.RegisterAdmin(e, handler.NewAdminHandler(vend, cat, log), cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server stopped", zap.Error(err))
	}
}
