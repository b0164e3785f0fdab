package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orderengine/internal/config"
	cronrunner "orderengine/internal/cron"
	"orderengine/internal/db"
	"orderengine/internal/events"
	"orderengine/internal/executor"
	"orderengine/internal/handler"
	"orderengine/internal/logger"
	"orderengine/internal/metrics"
	"orderengine/internal/oracle"
	"orderengine/internal/pricefeed"
	gormrepository "orderengine/internal/repository/gorm"
	"orderengine/internal/scheduler"
)

func main() {
	cfgPath := os.Getenv("OE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("OE_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	oracleHTTP := &http.Client{Timeout: cfg.Oracle.Timeout}
	priceOracle := oracle.NewClient(oracleHTTP, cfg.Oracle.BaseURL)

	var swapExecutor executor.SwapExecutor
	if cfg.SwapExecutor.DryRun {
		logger.Info("swap executor running in dry-run mode")
		swapExecutor = executor.DryRun{}
	} else {
		execHTTP := &http.Client{Timeout: cfg.SwapExecutor.Timeout}
		swapExecutor = executor.NewClient(execHTTP, cfg.SwapExecutor.BaseURL)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	limitHandler := &handler.LimitOrderHandler{Store: store}
	limitHandler.Register(engine)
	stopLossHandler := &handler.StopLossOrderHandler{Store: store}
	stopLossHandler.Register(engine)
	dcaHandler := &handler.DCAScheduleHandler{Store: store}
	dcaHandler.Register(engine)
	execHandler := &handler.ExecutionHandler{Store: store}
	execHandler.Register(engine)
	engine.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var feed *pricefeed.Feed
	if cfg.PriceFeed.Enabled {
		feed = &pricefeed.Feed{
			URL:        cfg.PriceFeed.URL,
			StaleAfter: cfg.PriceFeed.StaleAfter,
			Logger:     logger,
		}
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("price feed stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sched := &scheduler.Engine{
			Store:            store,
			Oracle:           priceOracle,
			Executor:         swapExecutor,
			Events:           publisher,
			Feed:             feed,
			Logger:           logger,
			TickInterval:     cfg.Scheduler.TickInterval,
			MaxCandidates:    cfg.Scheduler.MaxCandidates,
			DCARetryWindow:   cfg.DCA.MaxRetryWindow,
			FeedProximityPct: cfg.PriceFeed.ProximityPct,
		}
		go func() {
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("scheduler stopped", zap.Error(err))
			}
		}()
	}

	cronRunner := cronrunner.New(logger, ctx)

	// Safety net behind the per-order expiry in the scheduler tick: catches
	// due orders when the scheduler is disabled on this instance.
	_, err = cronRunner.Add(cfg.Scheduler.ExpirySweep, func(ctx context.Context) {
		n, err := store.ExpireDueLimitOrders(ctx, time.Now().UTC())
		if err != nil {
			logger.Warn("expiry sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("expired limit orders", zap.Int64("count", n))
		}
	})
	if err != nil {
		logger.Warn("cron register expiry sweep failed", zap.Error(err))
	}

	// A worker that dies between claiming an order and recording the outcome
	// leaves the row in executing. Release claims older than the timeout so
	// the order becomes eligible again instead of wedging forever.
	_, err = cronRunner.Add(cfg.Scheduler.ClaimSweep, func(ctx context.Context) {
		before := time.Now().UTC().Add(-cfg.Scheduler.ClaimTimeout)
		limits, err := store.ReleaseStaleLimitClaims(ctx, before)
		if err != nil {
			logger.Warn("stale limit claim sweep failed", zap.Error(err))
		} else if limits > 0 {
			logger.Warn("released stale limit claims", zap.Int64("count", limits))
		}
		dcas, err := store.ReleaseStaleDCAClaims(ctx, before)
		if err != nil {
			logger.Warn("stale dca claim sweep failed", zap.Error(err))
		} else if dcas > 0 {
			logger.Warn("released stale dca claims", zap.Int64("count", dcas))
		}
	})
	if err != nil {
		logger.Warn("cron register claim sweep failed", zap.Error(err))
	}

	_, err = cronRunner.Add(cfg.Retention.Sweep, func(ctx context.Context) {
		before := time.Now().UTC().Add(-cfg.Retention.ExecutionAudit)
		n, err := store.DeleteOldExecutions(ctx, before)
		if err != nil {
			logger.Warn("execution retention sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("pruned execution audit rows", zap.Int64("count", n))
		}
	})
	if err != nil {
		logger.Warn("cron register retention sweep failed", zap.Error(err))
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
