package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskiq/domain/patient"
)

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

func TestExtractEmptyRecordUsesDefaults(t *testing.T) {
	raw := &patient.RawPatientRecord{PatientID: "PT-00001"}
	vec := Extract(raw)
	require.Len(t, vec, len(patient.FeatureNames))

	get := func(name patient.FeatureName) float64 {
		v, ok := vec.Value(name)
		require.True(t, ok, "missing feature %s", name)
		return v
	}

	assert.Equal(t, float64(DefaultAge), get("age"))
	assert.Equal(t, float64(DefaultLengthOfStay), get("length_of_stay"))
	assert.Equal(t, float64(DefaultMedicationCount), get("medication_count"))
	assert.Equal(t, DefaultTemperature, get("temperature"))
	assert.Equal(t, float64(DefaultOxygenSaturation), get("oxygen_saturation"))
	assert.Equal(t, DefaultPotassium, get("potassium"))

	// Absent social context defaults to the protective reading.
	assert.Equal(t, 0.0, get("lives_alone"))
	assert.Equal(t, 1.0, get("has_caregiver"))
	assert.Equal(t, 1.0, get("transportation_access"))
	assert.Equal(t, 1.0, get("housing_stable"))
	assert.Equal(t, 0.0, get("social_vulnerability_score"))

	// Defaults are all in normal ranges, so composites are quiet.
	assert.Equal(t, 0.0, get("vital_instability_score"))
	assert.Equal(t, 0.0, get("lab_abnormality_score"))
	assert.Equal(t, 0.0, get("comorbidity_interaction_score"))
	assert.Equal(t, 0.0, get("readmission_velocity"))
}

func TestExtractDeterministic(t *testing.T) {
	raw := &patient.RawPatientRecord{
		PatientID:             "PT-00002",
		Age:                   f(78),
		Gender:                "Male",
		ChronicConditions:     []string{"Heart Failure", "Chronic Kidney Disease"},
		AdmissionsLast6Months: f(3),
		Vitals:                patient.Vitals{OxygenSaturation: f(91)},
	}
	assert.Equal(t, Extract(raw), Extract(raw))
}

func TestExtractEncodesDemographics(t *testing.T) {
	raw := &patient.RawPatientRecord{
		Age:           f(70),
		Gender:        "Male",
		Insurance:     "Medicaid",
		SmokingStatus: "current",
		AlcoholUse:    "heavy",
	}
	vec := Extract(raw)

	v, _ := vec.Value("gender_encoded")
	assert.Equal(t, 1.0, v)
	v, _ = vec.Value("insurance_encoded")
	assert.Equal(t, 2.0, v)
	v, _ = vec.Value("smoking_encoded")
	assert.Equal(t, 2.0, v)
	v, _ = vec.Value("alcohol_encoded")
	assert.Equal(t, 3.0, v)
}

func TestComorbidityInteractionScore(t *testing.T) {
	assert.Equal(t, 0.0, ComorbidityInteractionScore(nil))
	assert.Equal(t, 0.0, ComorbidityInteractionScore([]string{"Heart Failure"}))

	// Each matched pair contributes 0.15.
	one := ComorbidityInteractionScore([]string{"Heart Failure", "Chronic Kidney Disease"})
	assert.InDelta(t, 0.15, one, 1e-9)

	// HF+CKD+T2D+HTN+COPD hits five pairs.
	many := ComorbidityInteractionScore([]string{
		"Heart Failure", "Chronic Kidney Disease", "Type 2 Diabetes", "Hypertension", "COPD",
	})
	assert.InDelta(t, 0.75, many, 1e-9)
	assert.LessOrEqual(t, many, 1.0)
}

func TestClinicalComplexityScoreBounds(t *testing.T) {
	assert.Equal(t, 0.0, ClinicalComplexityScore(0, 0, 0, 100, 0))

	// Extreme burden saturates at 1.
	assert.Equal(t, 1.0, ClinicalComplexityScore(10, 25, 10, 80, 10))

	mid := ClinicalComplexityScore(2, 8, 1, 96, 1)
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, 1.0)
}

func TestVitalInstabilityScore(t *testing.T) {
	assert.Equal(t, 0.0, VitalInstabilityScore(patient.Vitals{}))

	unstable := patient.Vitals{
		BPSystolic:       f(170),
		HeartRate:        f(110),
		Temperature:      f(101.2),
		OxygenSaturation: f(90),
		RespiratoryRate:  f(28),
	}
	assert.Equal(t, 1.0, VitalInstabilityScore(unstable))

	// Borderline saturation takes partial credit.
	borderline := patient.Vitals{OxygenSaturation: f(94)}
	assert.InDelta(t, 0.15, VitalInstabilityScore(borderline), 1e-9)
}

func TestLabAbnormalityScore(t *testing.T) {
	assert.Equal(t, 0.0, LabAbnormalityScore(patient.Labs{}))

	abnormal := patient.Labs{
		Hemoglobin: f(8),
		WBCCount:   f(15),
		Creatinine: f(2.4),
		Glucose:    f(260),
		BUN:        f(40),
		Sodium:     f(130),
		Potassium:  f(5.6),
	}
	assert.Equal(t, 1.0, LabAbnormalityScore(abnormal))

	justBUN := patient.Labs{BUN: f(35)}
	assert.InDelta(t, 0.1, LabAbnormalityScore(justBUN), 1e-9)
}

func TestSocialVulnerabilityScore(t *testing.T) {
	worst := patient.SocialFactors{
		LivesAlone:           b(true),
		HasCaregiver:         b(false),
		TransportationAccess: b(false),
		HousingStable:        b(false),
	}
	assert.Equal(t, 1.0, SocialVulnerabilityScore(worst))

	best := patient.SocialFactors{
		LivesAlone:           b(false),
		HasCaregiver:         b(true),
		TransportationAccess: b(true),
		HousingStable:        b(true),
	}
	assert.Equal(t, 0.0, SocialVulnerabilityScore(best))
}

func TestReadmissionVelocityCapped(t *testing.T) {
	raw := &patient.RawPatientRecord{AdmissionsLast6Months: f(12)}
	vec := Extract(raw)
	v, _ := vec.Value("readmission_velocity")
	assert.Equal(t, 10.0, v)
}

func TestCoerceFloat(t *testing.T) {
	assert.Equal(t, 42.0, CoerceFloat("42", 0))
	assert.Equal(t, 3.5, CoerceFloat(" 3.5 ", 0))
	assert.Equal(t, 7.0, CoerceFloat("", 7))
	assert.Equal(t, 7.0, CoerceFloat("abc", 7))
	assert.Equal(t, 7.0, CoerceFloat("NaN", 7))
	assert.Equal(t, 7.0, CoerceFloat("+Inf", 7))
}
