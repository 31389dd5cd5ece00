// Command seed fills the patients table with a reproducible synthetic
// cohort for demos and local development.
package main

import (
	"context"
	stdlog "log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"riskiq/adapters/postgres"
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

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		stdlog.Fatal("database connection failed: ", err)
	}

	ctx := context.Background()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		stdlog.Fatal("schema setup failed: ", err)
	}

	n := envInt("SEED_PATIENTS", 500)
	cohort := testkit.NewGenerator(cfg.Model.TrainingSeed).Cohort(n)

	if err := postgres.NewPatientRepository(db).UpsertBatch(ctx, cohort); err != nil {
		stdlog.Fatal("seeding failed: ", err)
	}
	logger.Info("seeded %d patients (seed %d)", n, cfg.Model.TrainingSeed)
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
