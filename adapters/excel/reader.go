// Package excel imports patient cohorts from spreadsheet or CSV exports.
// Cells are coerced leniently: malformed numerics fall back to the scoring
// defaults instead of aborting the whole load.
package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"riskiq/domain/patient"
	"riskiq/internal/errors"
	"riskiq/internal/features"
	"riskiq/internal/log"
)

// CohortReader reads patient records from .xlsx or .csv files.
type CohortReader struct {
	path     string
	fileType string // "xlsx" or "csv"
	logger   *log.Logger
}

func NewCohortReader(path string, logger *log.Logger) *CohortReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		fileType = "csv"
	}
	return &CohortReader{path: path, fileType: fileType, logger: logger}
}

// Read loads the whole cohort. The first row must be a header; column names
// are matched case-insensitively against the canonical record fields.
func (r *CohortReader) Read() ([]patient.RawPatientRecord, error) {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, errors.NotFound("cohort file " + r.path)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readExcel()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.InvalidInput("cohort file needs a header row and at least one data row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	cohort := make([]patient.RawPatientRecord, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		cells := make(map[string]string, len(header))
		for j, cell := range row {
			if j < len(header) {
				cells[header[j]] = strings.TrimSpace(cell)
			}
		}
		rec := recordFromCells(cells)
		if rec.PatientID == "" {
			skipped++
			continue
		}
		cohort = append(cohort, rec)
	}

	if skipped > 0 {
		r.logger.Warn("cohort import skipped %d rows without a patient_id", skipped)
	}
	r.logger.Info("cohort import read %d patients from %s", len(cohort), r.path)
	return cohort, nil
}

func (r *CohortReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "excel open failed")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "excel sheet %q read failed", sheet)
	}
	return rows, nil
}

func (r *CohortReader) readCSV() ([][]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "csv open failed")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "csv read failed")
	}
	return rows, nil
}

func recordFromCells(cells map[string]string) patient.RawPatientRecord {
	rec := patient.RawPatientRecord{
		PatientID:     cells["patient_id"],
		Name:          cells["name"],
		Gender:        cells["gender"],
		DiagnosisCode: cells["diagnosis_code"],
		DiagnosisName: cells["diagnosis_name"],
		Ward:          cells["ward"],
		Insurance:     cells["insurance"],
		SmokingStatus: cells["smoking_status"],
		AlcoholUse:    cells["alcohol_use"],
		ClinicalNotes: cells["clinical_notes"],
	}

	rec.Age = optFloat(cells, "age")
	rec.LengthOfStay = optFloat(cells, "length_of_stay")
	rec.NumPreviousAdmissions = optFloat(cells, "num_previous_admissions")
	rec.AdmissionsLast6Months = optFloat(cells, "admissions_last_6months")
	rec.MedicationCount = optFloat(cells, "medication_count")
	rec.MissedAppointments = optFloat(cells, "missed_appointments")
	rec.BMI = optFloat(cells, "bmi")
	rec.DischargeHour = optFloat(cells, "discharge_hour")
	rec.IsWeekendDischarge = parseBool(cells["is_weekend_discharge"])

	if conditions := cells["chronic_conditions"]; conditions != "" {
		for _, c := range strings.Split(conditions, ";") {
			if c = strings.TrimSpace(c); c != "" {
				rec.ChronicConditions = append(rec.ChronicConditions, c)
			}
		}
	}

	rec.AdmissionDate = parseDate(cells["admission_date"])
	rec.DischargeDate = parseDate(cells["discharge_date"])
	if dates := cells["previous_admission_dates"]; dates != "" {
		for _, d := range strings.Split(dates, ";") {
			if t := parseDate(strings.TrimSpace(d)); !t.IsZero() {
				rec.PreviousAdmissionDates = append(rec.PreviousAdmissionDates, t)
			}
		}
	}

	rec.Vitals = patient.Vitals{
		BPSystolic:       optFloat(cells, "bp_systolic"),
		BPDiastolic:      optFloat(cells, "bp_diastolic"),
		HeartRate:        optFloat(cells, "heart_rate"),
		Temperature:      optFloat(cells, "temperature"),
		OxygenSaturation: optFloat(cells, "oxygen_saturation"),
		RespiratoryRate:  optFloat(cells, "respiratory_rate"),
	}
	rec.Labs = patient.Labs{
		Hemoglobin: optFloat(cells, "hemoglobin"),
		WBCCount:   optFloat(cells, "wbc_count"),
		Creatinine: optFloat(cells, "creatinine"),
		Glucose:    optFloat(cells, "glucose"),
		BUN:        optFloat(cells, "bun"),
		Sodium:     optFloat(cells, "sodium"),
		Potassium:  optFloat(cells, "potassium"),
	}
	rec.Social = patient.SocialFactors{
		LivesAlone:           optBool(cells, "lives_alone"),
		HasCaregiver:         optBool(cells, "has_caregiver"),
		TransportationAccess: optBool(cells, "transportation_access"),
		HousingStable:        optBool(cells, "housing_stable"),
	}

	if v, ok := cells["readmitted_7d"]; ok && v != "" {
		b := parseBool(v)
		rec.Readmitted7d = &b
	}
	return rec
}

// optFloat keeps absent cells absent; present cells go through the lenient
// coercion so "n/a" style garbage degrades to the extraction default later.
func optFloat(cells map[string]string, key string) *float64 {
	v, ok := cells[key]
	if !ok || v == "" {
		return nil
	}
	f := features.CoerceFloat(v, 0)
	if f == 0 && features.CoerceFloat(v, -1) == -1 {
		// Unparseable cell; treat as absent rather than as a literal zero.
		return nil
	}
	return &f
}

func optBool(cells map[string]string, key string) *bool {
	v, ok := cells[key]
	if !ok || v == "" {
		return nil
	}
	b := parseBool(v)
	return &b
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
