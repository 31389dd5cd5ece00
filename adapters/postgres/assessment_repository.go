package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"riskiq/domain/risk"
	"riskiq/internal/errors"
)

// AssessmentRepository persists completed assessments as JSONB documents.
type AssessmentRepository struct {
	db *sqlx.DB
}

func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Save writes one assessment. Assessment IDs are unique per scoring call, so
// this is insert-only.
func (r *AssessmentRepository) Save(ctx context.Context, a *risk.Assessment) error {
	reportJSON, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "assessment marshal failed")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO assessments (assessment_id, patient_id, overall_score, risk_level, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.AssessmentID, a.PatientID, a.OverallScore, string(a.Level), reportJSON, a.Timestamp)
	if err != nil {
		return errors.Wrap(err, "assessment insert failed")
	}
	return nil
}

// Get returns one assessment by ID.
func (r *AssessmentRepository) Get(ctx context.Context, assessmentID string) (*risk.Assessment, error) {
	var reportJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT report FROM assessments WHERE assessment_id = $1`, assessmentID,
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("assessment " + assessmentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "assessment lookup failed")
	}

	var a risk.Assessment
	if err := json.Unmarshal(reportJSON, &a); err != nil {
		return nil, errors.Wrap(err, "assessment unmarshal failed")
	}
	return &a, nil
}

// Latest returns the most recent assessment for a patient.
func (r *AssessmentRepository) Latest(ctx context.Context, patientID string) (*risk.Assessment, error) {
	var reportJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT report FROM assessments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, patientID,
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("assessment for patient " + patientID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "assessment lookup failed")
	}

	var a risk.Assessment
	if err := json.Unmarshal(reportJSON, &a); err != nil {
		return nil, errors.Wrap(err, "assessment unmarshal failed")
	}
	return &a, nil
}

// HistoryScores returns a patient's past overall scores oldest first, the
// shape the trajectory analysis expects.
func (r *AssessmentRepository) HistoryScores(ctx context.Context, patientID string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT overall_score FROM (
			SELECT overall_score, created_at FROM assessments
			WHERE patient_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, patientID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "assessment history failed")
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "assessment history scan failed")
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
