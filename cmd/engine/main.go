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
	"go.uber.org/zap"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	cronrunner "auctionbot/internal/cron"
	"auctionbot/internal/db"
	"auctionbot/internal/execute"
	"auctionbot/internal/feature"
	"auctionbot/internal/feed"
	"auctionbot/internal/handler"
	"auctionbot/internal/logger"
	"auctionbot/internal/monitor"
	"auctionbot/internal/pipeline"
	"auctionbot/internal/portfolio"
	"auctionbot/internal/predict"
	"auctionbot/internal/reconcile"
	gormrepository "auctionbot/internal/repository/gorm"
	"auctionbot/internal/score"
)

func main() {
	cfgPath := os.Getenv("AB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AB_ENV_ONLY"); envOnlyRaw != "" {
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
	clk := clock.Real{}

	extractor := &feature.Extractor{Vocab: feature.NewVocabulary(cfg.Vocab)}
	predictor := predict.New(cfg.Predictor, logger)
	trainer := predict.NewTrainer(store, extractor, cfg.Predictor, logger)
	scorer := score.New(cfg.Scorer)

	ledger := portfolio.NewLedger(cfg.Budget, store, clk, logger)
	allocator := portfolio.NewAllocator(store, ledger, cfg.Strategy, clk, logger)

	reconciler := reconcile.New(store, cfg.Reconcile, logger)
	hub := feed.NewHub(store, reconciler, cfg.Feeds, clk, logger)
	pipe := pipeline.New(store, extractor, predictor, scorer, allocator, clk, logger)

	var fallback execute.Transport
	primary := execute.NewHTTPTransport("primary", cfg.Executor.PrimaryEndpoint, cfg.Executor.TransportTimeout)
	if cfg.Executor.FallbackEndpoint != "" {
		fallback = execute.NewHTTPTransport("fallback", cfg.Executor.FallbackEndpoint, cfg.Executor.TransportTimeout)
	}
	executor := execute.New(store, allocator, primary, fallback, cfg.Executor, clk, logger)

	watcher := monitor.New(monitor.Deps{
		Repo:       store,
		Allocator:  allocator,
		Reconciler: reconciler,
		Predictor:  predictor,
		Scorer:     scorer,
		Extractor:  extractor,
		Executor:   executor,
		Fetcher:    hub,
		Clock:      clk,
		Logger:     logger,
	}, cfg.Monitor, cfg.Executor)

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
	itemHandler := &handler.ItemHandler{Repo: store}
	itemHandler.Register(engine)
	oppHandler := &handler.OpportunityHandler{Repo: store}
	oppHandler.Register(engine)
	portfolioHandler := &handler.PortfolioHandler{Repo: store, Allocator: allocator, Ledger: ledger}
	portfolioHandler.Register(engine)
	attemptHandler := &handler.AttemptHandler{Repo: store}
	attemptHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Train the ensemble from whatever closed history exists before the
	// first pipeline tick; the heuristic covers a cold start.
	if err := trainer.Train(ctx, predictor); err != nil && !errors.Is(err, predict.ErrNotEnoughSamples) {
		logger.Warn("initial ensemble training failed", zap.Error(err))
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.CloseSweep, func(ctx context.Context) {
			n, err := reconciler.CloseSweep(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("close sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("close sweep finished", zap.Int("closed", n))
			}
		})
		if err != nil {
			logger.Warn("cron register close sweep failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.ObservationPrune, func(ctx context.Context) {
			cutoff := time.Now().UTC().Add(-cfg.Cron.ObservationRetention)
			n, err := store.DeleteObservationsBefore(ctx, cutoff)
			if err != nil {
				logger.Warn("observation prune failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("pruned observations", zap.Int64("count", n))
			}
		})
		if err != nil {
			logger.Warn("cron register observation prune failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.OptimizeReport, func(ctx context.Context) {
			warnings, err := allocator.Optimize(ctx)
			if err != nil {
				logger.Warn("optimize report failed", zap.Error(err))
				return
			}
			for _, w := range warnings {
				logger.Warn("portfolio warning",
					zap.String("kind", w.Kind),
					zap.String("severity", w.Severity),
					zap.String("message", w.Message))
			}
		})
		if err != nil {
			logger.Warn("cron register optimize report failed", zap.Error(err))
		}

		retrain := "@every " + cfg.Predictor.RetrainInterval.String()
		_, err = cronRunner.Add(retrain, func(ctx context.Context) {
			if err := trainer.Train(ctx, predictor); err != nil && !errors.Is(err, predict.ErrNotEnoughSamples) {
				logger.Warn("ensemble retraining failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register retraining failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("feed hub stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := pipe.Run(ctx, reconciler.Updates()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("pipeline stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := executor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("executor stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("monitor stopped", zap.Error(err))
		}
	}()

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
