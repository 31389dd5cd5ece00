package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskiq/internal/features"
)

func TestCohortDeterministicForSeed(t *testing.T) {
	a := NewGenerator(42).Cohort(20)
	b := NewGenerator(42).Cohort(20)
	assert.Equal(t, a, b)

	c := NewGenerator(7).Cohort(20)
	assert.NotEqual(t, a, c)
}

func TestCohortFieldsPlausible(t *testing.T) {
	cohort := NewGenerator(42).Cohort(200)
	require.Len(t, cohort, 200)

	readmitted := 0
	for _, p := range cohort {
		require.NotNil(t, p.Age)
		assert.GreaterOrEqual(t, *p.Age, 18.0)
		assert.LessOrEqual(t, *p.Age, 100.0)
		assert.NotEmpty(t, p.PatientID)
		assert.NotEmpty(t, p.ClinicalNotes)
		assert.NotEmpty(t, p.DiagnosisCode)
		assert.True(t, p.AdmissionDate.Before(p.DischargeDate))

		require.NotNil(t, p.Vitals.OxygenSaturation)
		assert.GreaterOrEqual(t, *p.Vitals.OxygenSaturation, 82.0)
		assert.LessOrEqual(t, *p.Vitals.OxygenSaturation, 100.0)

		require.NotNil(t, p.LengthOfStay)
		assert.GreaterOrEqual(t, *p.LengthOfStay, 1.0)
		assert.LessOrEqual(t, *p.LengthOfStay, 45.0)

		require.NotNil(t, p.Readmitted7d)
		if *p.Readmitted7d {
			readmitted++
		}
	}

	// Outcome rates should land near the configured base rate, with both
	// classes present so training never degenerates.
	assert.Greater(t, readmitted, 10)
	assert.Less(t, readmitted, 150)
}

func TestCohortFeedsFeatureExtraction(t *testing.T) {
	cohort := NewGenerator(1).Cohort(50)
	for _, p := range cohort {
		vec := features.Extract(&p)
		for i, v := range vec {
			assert.False(t, v != v, "feature %d is NaN for %s", i, p.PatientID)
		}
	}
}

func TestUniquePatientIDs(t *testing.T) {
	cohort := NewGenerator(3).Cohort(100)
	seen := make(map[string]bool)
	for _, p := range cohort {
		assert.False(t, seen[p.PatientID])
		seen[p.PatientID] = true
	}
}
