// Package postgres provides the storage boundary: patient records in, scored
// assessments out. The scoring core never touches the database directly.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"riskiq/internal/config"
	"riskiq/internal/errors"
)

// Connect opens a pooled connection using the configured database URL.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "database connection failed")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patients (
			patient_id      TEXT PRIMARY KEY,
			name            TEXT,
			age             DOUBLE PRECISION,
			gender          TEXT,
			diagnosis_code  TEXT,
			diagnosis_name  TEXT,
			ward            TEXT,
			insurance       TEXT,
			admission_date  TIMESTAMPTZ,
			discharge_date  TIMESTAMPTZ,
			readmitted_7d   BOOLEAN,
			record          JSONB NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS assessments (
			assessment_id  UUID PRIMARY KEY,
			patient_id     TEXT NOT NULL REFERENCES patients(patient_id),
			overall_score  DOUBLE PRECISION NOT NULL,
			risk_level     TEXT NOT NULL,
			report         JSONB NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_assessments_patient
			ON assessments (patient_id, created_at DESC);
	`)
	if err != nil {
		return errors.Wrap(err, "schema creation failed")
	}
	return nil
}
