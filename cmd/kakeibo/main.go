package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"kakeibo/internal/auth"
	"kakeibo/internal/cache"
	"kakeibo/internal/chart"
	"kakeibo/internal/cli"
	apphttp "kakeibo/internal/http"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.OpenBackend(context.Background(), logger, cfg)
	publisher := res.Publisher()

	sessions := auth.NewSessionManager(cfg.SessionTTL)
	sessions.StartCleanup(cfg.SessionCleanupInterval)

	monthCache := services.NewMonthCache(cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(monthCache)
	cacheManager.StartCleanup(cfg.CacheTTL)

	svc := apphttp.Services{
		Auth: services.NewAuthService(res.Store, sessions, monthCache, services.AuthOptions{
			BcryptCost:     cfg.BcryptCost,
			CheckEmailHost: cfg.CheckEmailHost,
			SeedCategories: storage.LoadSeedCategories(cfg.SeedCategoriesFile),
		}, logger),
		Categories: services.NewCategoryService(res.Store, monthCache, publisher, logger),
		Expenses:   services.NewExpenseService(res.Store, monthCache, publisher, logger),
		Budgets:    services.NewBudgetService(res.Store, monthCache, publisher, logger),
		Dashboard:  services.NewDashboardService(res.Store, monthCache, logger),
	}

	opts := apphttp.Options{
		Logger:             logger,
		Sessions:           sessions,
		Store:              res.Store,
		MonthCache:         monthCache,
		Charts:             chart.NewRenderer(),
		SessionTTL:         cfg.SessionTTL,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	if res.Events != nil {
		opts.Events = res.Events
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, opts)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		sessions.Stop()
		cacheManager.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting kakeibo server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", cfg.EventsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
