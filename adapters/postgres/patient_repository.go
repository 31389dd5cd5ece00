package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"riskiq/domain/patient"
	"riskiq/internal/errors"
)

// PatientRepository persists raw patient records. The full record travels as
// JSONB; scalar columns exist for filtering and listing without unmarshal.
type PatientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Upsert inserts or replaces one patient record keyed by patient ID.
func (r *PatientRepository) Upsert(ctx context.Context, rec *patient.RawPatientRecord) error {
	if rec.PatientID == "" {
		return errors.InvalidInput("patient record has no patient_id")
	}
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "patient record marshal failed")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patients (
			patient_id, name, age, gender, diagnosis_code, diagnosis_name,
			ward, insurance, admission_date, discharge_date, readmitted_7d,
			record, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (patient_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			diagnosis_code = EXCLUDED.diagnosis_code,
			diagnosis_name = EXCLUDED.diagnosis_name,
			ward = EXCLUDED.ward,
			insurance = EXCLUDED.insurance,
			admission_date = EXCLUDED.admission_date,
			discharge_date = EXCLUDED.discharge_date,
			readmitted_7d = EXCLUDED.readmitted_7d,
			record = EXCLUDED.record,
			updated_at = NOW()`,
		rec.PatientID, rec.Name, rec.Age, rec.Gender, rec.DiagnosisCode,
		rec.DiagnosisName, rec.Ward, rec.Insurance, rec.AdmissionDate,
		rec.DischargeDate, rec.Readmitted7d, recordJSON)
	if err != nil {
		return errors.Wrap(err, "patient upsert failed")
	}
	return nil
}

// UpsertBatch writes a cohort inside one transaction.
func (r *PatientRepository) UpsertBatch(ctx context.Context, cohort []patient.RawPatientRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "transaction begin failed")
	}
	defer tx.Rollback()

	for i := range cohort {
		rec := &cohort[i]
		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "patient record marshal failed")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO patients (
				patient_id, name, age, gender, diagnosis_code, diagnosis_name,
				ward, insurance, admission_date, discharge_date, readmitted_7d,
				record, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (patient_id) DO UPDATE SET
				record = EXCLUDED.record,
				readmitted_7d = EXCLUDED.readmitted_7d,
				updated_at = NOW()`,
			rec.PatientID, rec.Name, rec.Age, rec.Gender, rec.DiagnosisCode,
			rec.DiagnosisName, rec.Ward, rec.Insurance, rec.AdmissionDate,
			rec.DischargeDate, rec.Readmitted7d, recordJSON)
		if err != nil {
			return errors.Wrapf(err, "patient upsert failed for %s", rec.PatientID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "transaction commit failed")
	}
	return nil
}

// Get returns one patient record by ID.
func (r *PatientRepository) Get(ctx context.Context, patientID string) (*patient.RawPatientRecord, error) {
	var recordJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT record FROM patients WHERE patient_id = $1`, patientID,
	).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("patient " + patientID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "patient lookup failed")
	}

	var rec patient.RawPatientRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, errors.Wrap(err, "patient record unmarshal failed")
	}
	return &rec, nil
}

// ListAll returns the full cohort ordered by discharge date, newest first.
func (r *PatientRepository) ListAll(ctx context.Context) ([]patient.RawPatientRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT record FROM patients ORDER BY discharge_date DESC, patient_id`)
	if err != nil {
		return nil, errors.Wrap(err, "patient listing failed")
	}
	defer rows.Close()

	var cohort []patient.RawPatientRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, errors.Wrap(err, "patient row scan failed")
		}
		var rec patient.RawPatientRecord
		if err := json.Unmarshal(recordJSON, &rec); err != nil {
			return nil, errors.Wrap(err, "patient record unmarshal failed")
		}
		cohort = append(cohort, rec)
	}
	return cohort, rows.Err()
}

// Count returns the cohort size.
func (r *PatientRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "patient count failed")
	}
	return n, nil
}
