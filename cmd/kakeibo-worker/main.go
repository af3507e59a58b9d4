package main

import (
	"context"
	"flag"
	"os"

	"kakeibo/internal/cli"
	"kakeibo/internal/log"
	gsheet "kakeibo/internal/sheets/google"
	"kakeibo/internal/worker"
)

func main() {
	resyncUser := flag.String("resync-user", "", "write every expense of this user ID to the sheet, then exit")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting kakeibo-worker", log.FieldOperation, log.OpStartup)
	cfg := cli.LoadAndValidateConfig(logger)

	if !cfg.MirrorEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the mirror worker")
		os.Exit(1)
	}

	startCtx := context.Background()
	res := cli.OpenBackend(startCtx, logger, cfg)

	mirror, err := gsheet.New(startCtx, cli.MirrorOptions(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	w := worker.NewMirrorWorker(res.Store, mirror, logger)

	if *resyncUser != "" {
		n, err := w.Resync(startCtx, *resyncUser)
		if cerr := res.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup error", log.FieldError, cerr)
		}
		if err != nil {
			logger.Error("Resync failed", log.FieldError, err, log.FieldUserID, *resyncUser, log.FieldCount, n)
			os.Exit(1)
		}
		logger.Info("Resync complete", log.FieldUserID, *resyncUser, log.FieldCount, n)
		return
	}

	if res.Events == nil {
		logger.Error("AMQP_URL is required to consume change events")
		_ = res.Cleanup()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := w.Stop(ctx); err != nil {
			logger.Error("Worker stop error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := w.Start(ctx, res.Events); err != nil {
		logger.Error("Failed to start mirror worker", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
