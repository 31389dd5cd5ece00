package excel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"riskiq/internal/errors"
	"riskiq/internal/log"
)

const cohortCSV = `patient_id,name,age,gender,chronic_conditions,admissions_last_6months,oxygen_saturation,lives_alone,readmitted_7d,admission_date,discharge_date
PT-00001,Alex Rivera,72,Male,Heart Failure; Chronic Kidney Disease,3,91,yes,true,2026-06-01,2026-06-08
PT-00002,Sam Okafor,n/a,Female,,0,,,false,2026-07-10,2026-07-12
,No ID,50,Male,,0,,,,,
`

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cohort.csv")
	require.NoError(t, os.WriteFile(path, []byte(cohortCSV), 0o644))
	return path
}

func TestReadCSVCohort(t *testing.T) {
	r := NewCohortReader(writeCSV(t), log.NewDefault())
	cohort, err := r.Read()
	require.NoError(t, err)

	// The row without a patient_id is skipped.
	require.Len(t, cohort, 2)

	p := cohort[0]
	assert.Equal(t, "PT-00001", p.PatientID)
	assert.Equal(t, "Alex Rivera", p.Name)
	require.NotNil(t, p.Age)
	assert.Equal(t, 72.0, *p.Age)
	assert.Equal(t, []string{"Heart Failure", "Chronic Kidney Disease"}, p.ChronicConditions)
	require.NotNil(t, p.Vitals.OxygenSaturation)
	assert.Equal(t, 91.0, *p.Vitals.OxygenSaturation)
	require.NotNil(t, p.Social.LivesAlone)
	assert.True(t, *p.Social.LivesAlone)
	require.NotNil(t, p.Readmitted7d)
	assert.True(t, *p.Readmitted7d)
	assert.Equal(t, 2026, p.AdmissionDate.Year())
	assert.True(t, p.AdmissionDate.Before(p.DischargeDate))

	// Garbage numerics and empty cells stay absent, not zero.
	q := cohort[1]
	assert.Nil(t, q.Age)
	assert.Nil(t, q.Vitals.OxygenSaturation)
	assert.Nil(t, q.Social.LivesAlone)
	require.NotNil(t, q.Readmitted7d)
	assert.False(t, *q.Readmitted7d)
	assert.Empty(t, q.ChronicConditions)
}

func TestReadExcelCohort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{
		"patient_id", "age", "ward", "medication_count",
	}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{
		"PT-00009", 64, "Cardiology", 12,
	}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cohort, err := NewCohortReader(path, log.NewDefault()).Read()
	require.NoError(t, err)
	require.Len(t, cohort, 1)

	p := cohort[0]
	assert.Equal(t, "PT-00009", p.PatientID)
	assert.Equal(t, "Cardiology", p.Ward)
	require.NotNil(t, p.Age)
	assert.Equal(t, 64.0, *p.Age)
	require.NotNil(t, p.MedicationCount)
	assert.Equal(t, 12.0, *p.MedicationCount)
}

func TestReadMissingFile(t *testing.T) {
	_, err := NewCohortReader(filepath.Join(t.TempDir(), "nope.csv"), log.NewDefault()).Read()
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestReadHeaderOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("patient_id,age\n"), 0o644))

	_, err := NewCohortReader(path, log.NewDefault()).Read()
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}
