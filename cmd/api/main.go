// Command api serves the readmission risk API. On startup it loads the
// cohort (Postgres, spreadsheet, or a seeded synthetic fallback), trains the
// ensemble, and exposes the scoring endpoints.
package main

import (
	"context"
	stdlog "log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"riskiq/adapters/api"
	"riskiq/adapters/excel"
	"riskiq/adapters/postgres"
	"riskiq/app/scorer"
	"riskiq/domain/patient"
	"riskiq/internal/config"
	"riskiq/internal/log"
	"riskiq/internal/testkit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal("configuration error: ", err)
	}
	logger := log.NewDefault()

	cohort, store := loadCohort(cfg, logger)
	if len(cohort) == 0 {
		stdlog.Fatal("no cohort available: set DATABASE_URL, COHORT_FILE, or SEED_PATIENTS")
	}

	sc := scorer.New(cfg, logger)
	if _, err := sc.Initialize(cohort); err != nil {
		stdlog.Fatal("scorer initialization failed: ", err)
	}
	if err := sc.SaveModels(); err != nil {
		logger.Warn("model persistence failed: %v", err)
	}

	server := api.NewServer(sc, store, logger)
	if err := server.Start(cfg.Server.Port); err != nil {
		stdlog.Fatal("server failed: ", err)
	}
}

// loadCohort resolves the patient source: Postgres when configured, then a
// spreadsheet path, then a seeded synthetic cohort.
func loadCohort(cfg *config.Config, logger *log.Logger) ([]patient.RawPatientRecord, api.AssessmentStore) {
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(cfg.Database)
		if err != nil {
			stdlog.Fatal("database connection failed: ", err)
		}
		ctx := context.Background()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			stdlog.Fatal("schema setup failed: ", err)
		}
		cohort, err := postgres.NewPatientRepository(db).ListAll(ctx)
		if err != nil {
			stdlog.Fatal("cohort load failed: ", err)
		}
		logger.Info("loaded %d patients from database", len(cohort))
		return cohort, postgres.NewAssessmentRepository(db)
	}

	if path := os.Getenv("COHORT_FILE"); path != "" {
		cohort, err := excel.NewCohortReader(path, logger).Read()
		if err != nil {
			stdlog.Fatal("cohort import failed: ", err)
		}
		return cohort, nil
	}

	n := envInt("SEED_PATIENTS", 500)
	logger.Info("no cohort source configured, generating %d synthetic patients", n)
	return testkit.NewGenerator(cfg.Model.TrainingSeed).Cohort(n), nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
