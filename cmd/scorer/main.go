// Package main serves a trained model over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/healthcareai-go/internal/config"
	"github.com/your-org/healthcareai-go/internal/datastore"
	"github.com/your-org/healthcareai-go/internal/dbconn"
	"github.com/your-org/healthcareai-go/internal/http/handler"
	"github.com/your-org/healthcareai-go/internal/trainer"
	"github.com/your-org/healthcareai-go/pkg/logger"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/trainer.yaml", "Path to the configuration file")
	modelPath := flag.String("model", "", "Path to the model JSON, overrides output.model_path")
	withRuns := flag.Bool("runs", false, "Serve stored prediction runs from the configured database")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Model ---
	path := cfg.Output.ModelPath
	if *modelPath != "" {
		path = *modelPath
	}
	tm, err := trainer.LoadFile(path)
	if err != nil {
		logger.Fatalf("Failed to load model: %v", err)
	}
	logger.Infof("Loaded %s model %s from %s", tm.AlgorithmName, tm.ID, path)

	opts := handler.RouterOptions{
		Model:  tm,
		Info:   handler.ModelInfo{ID: tm.ID, Algorithm: tm.AlgorithmName, ModelType: tm.ModelType},
		Logger: logger.L(),
	}

	// --- Stored runs (optional) ---
	if *withRuns {
		conn, err := dbconn.Open(ctx, cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()
		opts.Store = datastore.NewRepository(conn.DB, conn.Dialect)
		logger.Infof("Serving prediction runs from %s", conn.Dialect)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Scoring server starting on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Scoring server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down scoring server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
	logger.Info("Scoring server shut down gracefully.")
}
