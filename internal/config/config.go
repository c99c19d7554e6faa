package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weather-forecaster/internal/nn"
)

type AppConfig struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error dpanic panic fatal"`

	// HTTPTimeout applies to outbound dataset fetches and server reads.
	// Server writes have no timeout so event streams stay open.
	HTTPTimeout    time.Duration `validate:"gt=0"`
	MaxUploadBytes int           `validate:"gt=0"`

	// Optional dataset to load on startup; the path wins over the URL.
	DatasetPath  string
	DatasetURL   string `validate:"omitempty,url"`
	StrictLabels bool

	OpenMeteoURL string `validate:"omitempty,url"`

	Epochs       int     `validate:"gte=1,lte=10000"`
	BatchSize    int     `validate:"gte=1"`
	LearningRate float64 `validate:"gt=0,lte=1"`
	Seed         uint64
	Shuffle      bool

	TrainTimeout time.Duration `validate:"gte=0"`
	// RetrainInterval of 0 disables periodic retraining.
	RetrainInterval time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.DatasetPath = os.Getenv("DATASET_PATH")
	cfg.DatasetURL = os.Getenv("DATASET_URL")
	cfg.OpenMeteoURL = os.Getenv("OPENMETEO_ARCHIVE_URL")

	var err error
	if cfg.MaxUploadBytes, err = getenvInt("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.TrainTimeout, err = getenvDuration("TRAIN_TIMEOUT", "10m"); err != nil {
		return nil, err
	}
	if cfg.RetrainInterval, err = getenvDuration("RETRAIN_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if cfg.StrictLabels, err = getenvBool("STRICT_LABELS", false); err != nil {
		return nil, err
	}
	if cfg.Shuffle, err = getenvBool("TRAIN_SHUFFLE", true); err != nil {
		return nil, err
	}

	defaults := nn.DefaultFitConfig()
	if cfg.Epochs, err = getenvInt("TRAIN_EPOCHS", defaults.Epochs); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getenvInt("TRAIN_BATCH_SIZE", defaults.BatchSize); err != nil {
		return nil, err
	}

	lrStr := getenvDefault("TRAIN_LEARNING_RATE", strconv.FormatFloat(defaults.LearningRate, 'g', -1, 64))
	if cfg.LearningRate, err = strconv.ParseFloat(lrStr, 64); err != nil {
		return nil, fmt.Errorf("invalid TRAIN_LEARNING_RATE: %w", err)
	}

	seedStr := getenvDefault("TRAIN_SEED", strconv.FormatUint(defaults.Seed, 10))
	if cfg.Seed, err = strconv.ParseUint(seedStr, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid TRAIN_SEED: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FitConfig returns the training hyperparameters.
func (c *AppConfig) FitConfig() nn.FitConfig {
	return nn.FitConfig{
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		LearningRate: c.LearningRate,
		Shuffle:      c.Shuffle,
		Seed:         c.Seed,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
