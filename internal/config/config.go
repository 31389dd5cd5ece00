package config

import (
	"os"
	"strconv"
	"strings"

	"riskiq/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Model    ModelConfig
	Risk     RiskConfig
	Paths    PathConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string
	Host    string
	Port    int
	SSLMode string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// ModelConfig holds ensemble training and scoring settings. These are the
// externally supplied constants of the scoring core: the ensemble reads
// them, it does not own them.
type ModelConfig struct {
	ModelNames           []string
	BlendWeights         []float64
	HorizonFactors       map[string]float64
	MinTrainingSamples   int
	TrainingSeed         int64
	AnomalyContamination float64
	BackgroundSamples    int
}

// RiskConfig holds risk band boundaries on the 0-100 score scale.
type RiskConfig struct {
	ThresholdLow      float64
	ThresholdMedium   float64
	ThresholdHigh     float64
	ThresholdCritical float64
}

// PathConfig holds file system paths
type PathConfig struct {
	ModelDir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			Host:    getEnvOrDefault("DB_HOST", ""),
			Port:    getEnvIntOrDefault("DB_PORT", 5432),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Model: ModelConfig{
			ModelNames:   []string{"gbrt_a", "gbrt_b", "random_forest", "gradient_boosting", "neural_network"},
			BlendWeights: getEnvFloatsOrDefault("ENSEMBLE_WEIGHTS", []float64{0.30, 0.25, 0.20, 0.15, 0.10}),
			HorizonFactors: map[string]float64{
				"24h": getEnvFloatOrDefault("HORIZON_FACTOR_24H", 0.25),
				"72h": getEnvFloatOrDefault("HORIZON_FACTOR_72H", 0.55),
				"7d":  getEnvFloatOrDefault("HORIZON_FACTOR_7D", 1.0),
				"30d": getEnvFloatOrDefault("HORIZON_FACTOR_30D", 1.45),
			},
			MinTrainingSamples:   getEnvIntOrDefault("MIN_TRAINING_SAMPLES", 50),
			TrainingSeed:         int64(getEnvIntOrDefault("TRAINING_SEED", 42)),
			AnomalyContamination: getEnvFloatOrDefault("ANOMALY_CONTAMINATION", 0.05),
			BackgroundSamples:    getEnvIntOrDefault("EXPLAIN_BACKGROUND_SAMPLES", 100),
		},
		Risk: RiskConfig{
			ThresholdLow:      getEnvFloatOrDefault("RISK_THRESHOLD_LOW", 30),
			ThresholdMedium:   getEnvFloatOrDefault("RISK_THRESHOLD_MEDIUM", 55),
			ThresholdHigh:     getEnvFloatOrDefault("RISK_THRESHOLD_HIGH", 75),
			ThresholdCritical: getEnvFloatOrDefault("RISK_THRESHOLD_CRITICAL", 90),
		},
		Paths: PathConfig{
			ModelDir: getEnvOrDefault("MODEL_DIR", "./trained_models"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if len(config.Model.BlendWeights) != len(config.Model.ModelNames) {
		return errors.ConfigInvalid("ENSEMBLE_WEIGHTS must provide one weight per ensemble model")
	}
	for _, w := range config.Model.BlendWeights {
		if w < 0 {
			return errors.ConfigInvalid("ensemble weights must be non-negative")
		}
	}
	if config.Risk.ThresholdMedium >= config.Risk.ThresholdHigh ||
		config.Risk.ThresholdHigh >= config.Risk.ThresholdCritical {
		return errors.ConfigInvalid("risk thresholds must be strictly increasing")
	}
	if config.Model.AnomalyContamination <= 0 || config.Model.AnomalyContamination >= 0.5 {
		return errors.ConfigInvalid("ANOMALY_CONTAMINATION must be in (0, 0.5)")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvFloatsOrDefault(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}
