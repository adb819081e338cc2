// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Model types understood by the trainer.
const (
	ModelTypeClassification = "classification"
	ModelTypeRegression     = "regression"
)

// Database drivers understood by dbconn.Open.
const (
	DriverSQLite   = "sqlite"
	DriverMSSQL    = "mssql"
	DriverPostgres = "postgres"
)

// Config defines the structure for all application configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Trainer  TrainerConfig  `yaml:"trainer"`
	Factors  FactorsConfig  `yaml:"factors"`
	Output   OutputConfig   `yaml:"output"`
	Writer   DBWriterConfig `yaml:"writer"`
	Server   ServerConfig   `yaml:"server"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig describes how to reach the database that holds training data
// and receives factor output.
type DatabaseConfig struct {
	Driver   string   `yaml:"driver"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Name     string   `yaml:"name"`
	SSLMode  string   `yaml:"sslmode"`
	Path     string   `yaml:"path"`    // sqlite file, ":memory:" for in-memory
	Trusted  FlexBool `yaml:"trusted"` // mssql trusted (windows) connection
}

// SourceConfig selects where the training frame comes from: a CSV file or a
// query against Database.
type SourceConfig struct {
	CSVPath string `yaml:"csv_path"`
	Query   string `yaml:"query"`
}

// TrainerConfig holds the SupervisedModelTrainer options.
type TrainerConfig struct {
	PredictedColumn string   `yaml:"predicted_column"`
	ModelType       string   `yaml:"model_type"`
	GrainColumn     string   `yaml:"grain_column"`
	Impute          FlexBool `yaml:"impute"`
	Algorithm       string   `yaml:"algorithm"`
	TestSize        float64  `yaml:"test_size"`
	Seed            int64    `yaml:"seed"`
	Trees           int      `yaml:"trees"`
	Verbose         FlexBool `yaml:"verbose"`
}

// FactorsConfig controls top-factor scoring.
type FactorsConfig struct {
	Enabled FlexBool `yaml:"enabled"`
	K       int      `yaml:"k"`
}

// OutputConfig says where artifacts go.
type OutputConfig struct {
	ModelPath string   `yaml:"model_path"`
	CSVPath   string   `yaml:"csv_path"`
	ToDB      FlexBool `yaml:"to_db"`
	Migrate   FlexBool `yaml:"migrate"`
}

// DBWriterConfig holds batching settings for dbwriter.
type DBWriterConfig struct {
	BatchSize int `yaml:"batch_size"`
	// UseCopy streams rows with COPY instead of batched INSERTs (postgres only).
	UseCopy FlexBool `yaml:"use_copy"`
}

// ServerConfig holds scorer HTTP settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Algorithms accepted by TrainerConfig.Algorithm.
var Algorithms = []string{"knn", "random_forest", "logistic_regression", "linear_regression", "ensemble"}

func defaults() *Config {
	return &Config{
		App:      AppConfig{LogLevel: "info"},
		Database: DatabaseConfig{Driver: DriverSQLite, SSLMode: "disable"},
		Trainer: TrainerConfig{
			Impute:    true,
			Algorithm: "ensemble",
			TestSize:  0.2,
			Trees:     200,
		},
		Factors: FactorsConfig{Enabled: true, K: 3},
		Output:  OutputConfig{Migrate: true},
		Writer:  DBWriterConfig{BatchSize: 500},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

var current atomic.Pointer[Config]

// LoadConfig loads configuration from the specified YAML file path, a .env
// file next to the working directory (if present) and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// ReloadConfig re-reads the file and atomically swaps the config returned by GetConfig.
func ReloadConfig(configPath string) (*Config, error) {
	return LoadConfig(configPath)
}

// GetConfig returns the most recently loaded config, or nil.
func GetConfig() *Config {
	return current.Load()
}

// Load sensitive data and overrides from environment variables
func applyEnv(cfg *Config) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error

	switch c.Database.Driver {
	case DriverSQLite, DriverMSSQL, DriverPostgres:
	default:
		err = multierr.Append(err, fmt.Errorf("database.driver %q is not one of sqlite, mssql, postgres", c.Database.Driver))
	}

	t := c.Trainer
	if t.ModelType != "" && t.ModelType != ModelTypeClassification && t.ModelType != ModelTypeRegression {
		err = multierr.Append(err, fmt.Errorf("trainer.model_type %q must be classification or regression", t.ModelType))
	}
	if !contains(Algorithms, t.Algorithm) {
		err = multierr.Append(err, fmt.Errorf("trainer.algorithm %q must be one of %s", t.Algorithm, strings.Join(Algorithms, ", ")))
	}
	if t.TestSize <= 0 || t.TestSize >= 1 {
		err = multierr.Append(err, fmt.Errorf("trainer.test_size %.3f must be in (0, 1)", t.TestSize))
	}
	if t.Trees <= 0 {
		err = multierr.Append(err, fmt.Errorf("trainer.trees must be positive, got %d", t.Trees))
	}
	if c.Factors.K < 1 {
		err = multierr.Append(err, fmt.Errorf("factors.k must be at least 1, got %d", c.Factors.K))
	}
	if c.Source.CSVPath != "" && c.Source.Query != "" {
		err = multierr.Append(err, errors.New("source.csv_path and source.query are mutually exclusive"))
	}
	if c.Writer.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("writer.batch_size must be positive, got %d", c.Writer.BatchSize))
	}
	return err
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
