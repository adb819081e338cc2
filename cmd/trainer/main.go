// Package main is the entry point of the batch trainer: it trains the
// configured algorithm, saves the model and writes top factors for the data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/config"
	"github.com/your-org/healthcareai-go/internal/csvwriter"
	"github.com/your-org/healthcareai-go/internal/datastore"
	"github.com/your-org/healthcareai-go/internal/dbconn"
	"github.com/your-org/healthcareai-go/internal/dbwriter"
	"github.com/your-org/healthcareai-go/internal/frame"
	"github.com/your-org/healthcareai-go/internal/trainer"
	"github.com/your-org/healthcareai-go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/trainer.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.App.LogLevel)
	defer logger.Sync()
	logger.Infof("Loaded configuration from: %s", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := run(ctx, cfg, logger.L())
	if err != nil {
		logger.Fatalf("Training failed: %v", err)
	}
	logger.Infof("Trainer finished, run %s", runID)
}

// run trains, saves and scores according to cfg and returns the run id.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) (string, error) {
	var conn *dbconn.Conn
	if cfg.Source.Query != "" || cfg.Output.ToDB.Bool() {
		c, err := dbconn.Open(ctx, cfg.Database)
		if err != nil {
			return "", err
		}
		defer c.Close()
		conn = c
	}

	f, err := loadFrame(ctx, cfg, conn)
	if err != nil {
		return "", err
	}
	log.Info("Loaded training data", zap.Int("rows", f.NumRows()), zap.Strings("columns", f.Names()))

	t, err := trainer.New(f, trainer.Options{
		PredictedColumn: cfg.Trainer.PredictedColumn,
		ModelType:       cfg.Trainer.ModelType,
		GrainColumn:     cfg.Trainer.GrainColumn,
		Impute:          cfg.Trainer.Impute.Bool(),
		TestSize:        cfg.Trainer.TestSize,
		Seed:            cfg.Trainer.Seed,
		Trees:           cfg.Trainer.Trees,
		Logger:          log,
	})
	if err != nil {
		return "", err
	}
	tm, err := t.Train(ctx, cfg.Trainer.Algorithm)
	if err != nil {
		return "", err
	}
	if cfg.Trainer.Verbose.Bool() {
		tm.PrintTrainingResults(os.Stdout)
	} else {
		tm.PrintTrainingResults(nil)
	}

	if cfg.Output.ModelPath != "" {
		if err := tm.SaveFile(cfg.Output.ModelPath); err != nil {
			return "", err
		}
		log.Info("Saved model", zap.String("path", cfg.Output.ModelPath), zap.String("model_id", tm.ID))
	}

	runID := uuid.NewString()
	if !cfg.Factors.Enabled.Bool() || (cfg.Output.CSVPath == "" && !cfg.Output.ToDB.Bool()) {
		return runID, nil
	}

	preds, err := tm.PredictWithFactors(f, cfg.Factors.K)
	if err != nil {
		return "", err
	}

	if cfg.Output.CSVPath != "" {
		if err := writeCSV(cfg, preds, log); err != nil {
			return "", err
		}
	}
	var out *dbconn.Conn
	if cfg.Output.ToDB.Bool() {
		if err := createRun(ctx, cfg, conn, runID, tm, log); err != nil {
			return "", err
		}
		out = conn
	}
	if err := writeFactors(ctx, cfg, out, runID, preds, log); err != nil {
		return "", err
	}
	return runID, nil
}

func loadFrame(ctx context.Context, cfg *config.Config, conn *dbconn.Conn) (*frame.Frame, error) {
	switch {
	case cfg.Source.CSVPath != "":
		return frame.LoadCSV(cfg.Source.CSVPath)
	case cfg.Source.Query != "":
		return datastore.NewRepository(conn.DB, conn.Dialect).LoadFrame(ctx, cfg.Source.Query)
	}
	return nil, errors.New("no training data: set source.csv_path or source.query")
}

func writeCSV(cfg *config.Config, preds []trainer.Prediction, log *zap.Logger) error {
	w, err := csvwriter.NewWriter(cfg.Output.CSVPath, cfg.Trainer.GrainColumn, cfg.Factors.K, log)
	if err != nil {
		return err
	}
	if err := w.Write(preds); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Info("Wrote top factors to CSV", zap.String("path", cfg.Output.CSVPath), zap.Int("rows", len(preds)))
	return nil
}

// createRun migrates if asked and registers the run the factor rows belong to.
func createRun(ctx context.Context, cfg *config.Config, conn *dbconn.Conn, runID string, tm *trainer.TrainedModel, log *zap.Logger) error {
	if cfg.Output.Migrate.Bool() {
		if err := datastore.Migrate(conn.DB, conn.Dialect, log); err != nil {
			return err
		}
	}
	return datastore.NewRepository(conn.DB, conn.Dialect).CreateRun(ctx, datastore.Run{
		ID:        runID,
		ModelID:   tm.ID,
		Algorithm: tm.AlgorithmName,
		ModelType: tm.ModelType,
		K:         cfg.Factors.K,
		CreatedAt: time.Now().UTC(),
	})
}

// writeFactors hands preds to the factor writer for conn; a nil conn gets the
// dummy writer.
func writeFactors(ctx context.Context, cfg *config.Config, conn *dbconn.Conn, runID string, preds []trainer.Prediction, log *zap.Logger) error {
	w := dbwriter.New(conn, cfg.Writer, log)
	defer w.Close()
	if err := w.Write(ctx, runID, preds); err != nil {
		return err
	}
	if conn != nil {
		log.Info("Wrote top factors to database", zap.String("run_id", runID), zap.Int("rows", len(preds)))
	}
	return nil
}
