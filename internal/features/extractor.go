// Package features maps raw patient records onto the fixed model feature
// vector. Extraction is a pure function: deterministic for identical input,
// no shared state, and it never fails — every missing or malformed field
// has a documented default.
package features

import (
	"math"
	"strconv"
	"strings"

	"riskiq/domain/patient"
)

// Documented defaults substituted for absent inputs.
const (
	DefaultAge              = 50
	DefaultLengthOfStay     = 3
	DefaultMedicationCount  = 3
	DefaultBMI              = 26
	DefaultDischargeHour    = 14
	DefaultBPSystolic       = 120
	DefaultBPDiastolic      = 80
	DefaultHeartRate        = 75
	DefaultTemperature      = 98.6
	DefaultOxygenSaturation = 97
	DefaultRespiratoryRate  = 16
	DefaultHemoglobin       = 13.5
	DefaultWBCCount         = 7.5
	DefaultCreatinine       = 1.0
	DefaultGlucose          = 100
	DefaultBUN              = 15
	DefaultSodium           = 140
	DefaultPotassium        = 4.2
)

// Extract computes the full feature vector for one patient record.
func Extract(raw *patient.RawPatientRecord) patient.FeatureVector {
	v := make(patient.FeatureVector, len(patient.FeatureNames))

	vitals := raw.Vitals
	labs := raw.Labs
	social := raw.Social

	set := func(name patient.FeatureName, value float64) {
		v[patient.FeatureIndex(name)] = value
	}

	set("age", orDefault(raw.Age, DefaultAge))
	set("gender_encoded", boolToFloat(raw.Gender == "Male"))
	set("length_of_stay", orDefault(raw.LengthOfStay, DefaultLengthOfStay))
	set("num_previous_admissions", orDefault(raw.NumPreviousAdmissions, 0))
	set("admissions_last_6months", orDefault(raw.AdmissionsLast6Months, 0))
	set("num_chronic_conditions", float64(len(raw.ChronicConditions)))
	set("medication_count", orDefault(raw.MedicationCount, DefaultMedicationCount))
	set("missed_appointments", orDefault(raw.MissedAppointments, 0))

	set("has_diabetes", boolToFloat(raw.HasCondition("Type 2 Diabetes") || raw.HasCondition("Type 1 Diabetes")))
	set("has_heart_failure", boolToFloat(raw.HasCondition("Heart Failure")))
	set("has_copd", boolToFloat(raw.HasCondition("COPD")))
	set("has_ckd", boolToFloat(raw.HasCondition("Chronic Kidney Disease")))
	set("has_hypertension", boolToFloat(raw.HasCondition("Hypertension")))
	set("has_depression", boolToFloat(raw.HasCondition("Depression")))
	set("has_afib", boolToFloat(raw.HasCondition("Atrial Fibrillation")))

	set("bp_systolic", orDefault(vitals.BPSystolic, DefaultBPSystolic))
	set("bp_diastolic", orDefault(vitals.BPDiastolic, DefaultBPDiastolic))
	set("heart_rate", orDefault(vitals.HeartRate, DefaultHeartRate))
	set("temperature", orDefault(vitals.Temperature, DefaultTemperature))
	set("oxygen_saturation", orDefault(vitals.OxygenSaturation, DefaultOxygenSaturation))
	set("respiratory_rate", orDefault(vitals.RespiratoryRate, DefaultRespiratoryRate))
	set("bmi", orDefault(raw.BMI, DefaultBMI))

	set("hemoglobin", orDefault(labs.Hemoglobin, DefaultHemoglobin))
	set("wbc_count", orDefault(labs.WBCCount, DefaultWBCCount))
	set("creatinine", orDefault(labs.Creatinine, DefaultCreatinine))
	set("glucose", orDefault(labs.Glucose, DefaultGlucose))
	set("bun", orDefault(labs.BUN, DefaultBUN))
	set("sodium", orDefault(labs.Sodium, DefaultSodium))
	set("potassium", orDefault(labs.Potassium, DefaultPotassium))

	set("discharge_hour", orDefault(raw.DischargeHour, DefaultDischargeHour))
	set("is_weekend_discharge", boolToFloat(raw.IsWeekendDischarge))

	set("lives_alone", boolToFloat(boolOrDefault(social.LivesAlone, false)))
	set("has_caregiver", boolToFloat(boolOrDefault(social.HasCaregiver, true)))
	set("transportation_access", boolToFloat(boolOrDefault(social.TransportationAccess, true)))
	set("housing_stable", boolToFloat(boolOrDefault(social.HousingStable, true)))

	set("insurance_encoded", patient.EncodeInsurance(raw.Insurance))
	set("smoking_encoded", patient.EncodeSmoking(raw.SmokingStatus))
	set("alcohol_encoded", patient.EncodeAlcohol(raw.AlcoholUse))

	set("comorbidity_interaction_score", ComorbidityInteractionScore(raw.ChronicConditions))
	set("clinical_complexity_score", ClinicalComplexityScore(
		float64(len(raw.ChronicConditions)),
		orDefault(raw.MedicationCount, DefaultMedicationCount),
		orDefault(raw.AdmissionsLast6Months, 0),
		orDefault(vitals.OxygenSaturation, DefaultOxygenSaturation),
		orDefault(raw.MissedAppointments, 0),
	))
	set("social_vulnerability_score", SocialVulnerabilityScore(social))
	set("vital_instability_score", VitalInstabilityScore(vitals))
	set("lab_abnormality_score", LabAbnormalityScore(labs))
	set("readmission_velocity", math.Min(10, orDefault(raw.AdmissionsLast6Months, 0)*2))

	return v
}

// comorbidityPairs are disease combinations known to compound readmission
// risk. Each matched pair contributes 0.15, capped at 1.0.
var comorbidityPairs = [][2]string{
	{"Heart Failure", "Chronic Kidney Disease"},
	{"Heart Failure", "Type 2 Diabetes"},
	{"COPD", "Heart Failure"},
	{"Type 2 Diabetes", "Chronic Kidney Disease"},
	{"Hypertension", "Heart Failure"},
}

// ComorbidityInteractionScore scores compounding disease-pair risk in [0,1].
func ComorbidityInteractionScore(conditions []string) float64 {
	present := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		present[c] = true
	}

	score := 0.0
	for _, pair := range comorbidityPairs {
		if present[pair[0]] && present[pair[1]] {
			score += 0.15
		}
	}
	return math.Min(1.0, score)
}

// ClinicalComplexityScore is a bounded weighted sum of care-burden signals.
func ClinicalComplexityScore(chronicCount, medicationCount, admissions6m, oxygenSat, missedAppts float64) float64 {
	score := chronicCount*0.15 +
		(medicationCount/25)*0.2 +
		(admissions6m/5)*0.25 +
		(1-oxygenSat/100)*0.2 +
		(missedAppts/5)*0.2
	return round3(clip01(score))
}

// SocialVulnerabilityScore weights four 0/1 social risk indicators equally.
func SocialVulnerabilityScore(social patient.SocialFactors) float64 {
	score := 0.0
	if boolOrDefault(social.LivesAlone, false) {
		score += 0.25
	}
	if !boolOrDefault(social.HasCaregiver, true) {
		score += 0.25
	}
	if !boolOrDefault(social.TransportationAccess, true) {
		score += 0.25
	}
	if !boolOrDefault(social.HousingStable, true) {
		score += 0.25
	}
	return round3(score)
}

// VitalInstabilityScore accumulates penalties for out-of-range vitals,
// capped at 1.0.
func VitalInstabilityScore(vitals patient.Vitals) float64 {
	systolic := orDefault(vitals.BPSystolic, DefaultBPSystolic)
	heartRate := orDefault(vitals.HeartRate, DefaultHeartRate)
	temperature := orDefault(vitals.Temperature, DefaultTemperature)
	oxygenSat := orDefault(vitals.OxygenSaturation, DefaultOxygenSaturation)
	respRate := orDefault(vitals.RespiratoryRate, DefaultRespiratoryRate)

	score := 0.0
	if systolic > 160 || systolic < 90 {
		score += 0.2
	}
	if heartRate > 100 || heartRate < 50 {
		score += 0.2
	}
	if temperature > 100.4 {
		score += 0.2
	}
	switch {
	case oxygenSat < 92:
		score += 0.25
	case oxygenSat < 95:
		// Partial credit for borderline saturation.
		score += 0.15
	}
	if respRate > 24 || respRate < 12 {
		score += 0.15
	}
	return round3(math.Min(1.0, score))
}

// LabAbnormalityScore accumulates penalties for abnormal lab values,
// capped at 1.0.
func LabAbnormalityScore(labs patient.Labs) float64 {
	score := 0.0
	if orDefault(labs.Hemoglobin, DefaultHemoglobin) < 10 {
		score += 0.15
	}
	if orDefault(labs.WBCCount, DefaultWBCCount) > 12 {
		score += 0.15
	}
	if orDefault(labs.Creatinine, DefaultCreatinine) > 1.5 {
		score += 0.2
	}
	if orDefault(labs.Glucose, DefaultGlucose) > 200 {
		score += 0.15
	}
	if orDefault(labs.BUN, DefaultBUN) > 30 {
		score += 0.1
	}
	if orDefault(labs.Sodium, DefaultSodium) < 135 {
		score += 0.15
	}
	if orDefault(labs.Potassium, DefaultPotassium) > 5.0 {
		score += 0.15
	}
	return round3(math.Min(1.0, score))
}

// CoerceFloat parses a caller-supplied numeric string, substituting the
// default on any failure. Import adapters use this so malformed cells
// degrade to defaults instead of aborting a whole cohort load.
func CoerceFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func orDefault(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	return *v
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
