package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-forecaster/internal/api/http"
	"github.com/i474232898/weather-forecaster/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. DATASET_PATH or DATASET_URL is loaded on startup when set,
and RETRAIN_INTERVAL enables periodic retraining.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := newService()
	defer service.Close()

	if summary, ok, err := loadDataset(ctx, service, cfg.DatasetPath, cfg.DatasetURL); err != nil {
		logger.Warn("startup dataset not loaded", zap.Error(err))
	} else if ok {
		logger.Info("startup dataset loaded",
			zap.String("source", summary.Source),
			zap.Int("rows", summary.Rows))
	}

	sched := scheduler.New(service, cfg.RetrainInterval, cfg.TrainTimeout, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, httpapi.Options{
		BodyLimit:    cfg.MaxUploadBytes,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: 0, // event streams stay open
		AccessLog:    true,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	service.CancelTraining()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	return nil
}
