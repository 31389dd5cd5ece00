// Command train runs one training pass over the configured cohort, prints
// the cross-validation metrics, and persists the model artifacts.
package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"os"

	"github.com/joho/godotenv"

	"riskiq/adapters/excel"
	"riskiq/adapters/postgres"
	"riskiq/app/scorer"
	"riskiq/domain/patient"
	"riskiq/internal/config"
	"riskiq/internal/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal("configuration error: ", err)
	}
	logger := log.NewDefault()

	cohort := loadCohort(cfg, logger)
	if len(cohort) == 0 {
		stdlog.Fatal("no cohort available: set DATABASE_URL or COHORT_FILE")
	}

	sc := scorer.New(cfg, logger)
	metrics, err := sc.Initialize(cohort)
	if err != nil {
		stdlog.Fatal("training failed: ", err)
	}
	if err := sc.SaveModels(); err != nil {
		stdlog.Fatal("model persistence failed: ", err)
	}

	out, _ := json.MarshalIndent(metrics, "", "  ")
	os.Stdout.Write(out)
	os.Stdout.WriteString("\n")
	logger.Info("models saved to %s", cfg.Paths.ModelDir)
}

func loadCohort(cfg *config.Config, logger *log.Logger) []patient.RawPatientRecord {
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(cfg.Database)
		if err != nil {
			stdlog.Fatal("database connection failed: ", err)
		}
		cohort, err := postgres.NewPatientRepository(db).ListAll(context.Background())
		if err != nil {
			stdlog.Fatal("cohort load failed: ", err)
		}
		logger.Info("loaded %d patients from database", len(cohort))
		return cohort
	}
	if path := os.Getenv("COHORT_FILE"); path != "" {
		cohort, err := excel.NewCohortReader(path, logger).Read()
		if err != nil {
			stdlog.Fatal("cohort import failed: ", err)
		}
		return cohort
	}
	return nil
}
