package patient

// FeatureName identifies one column of the model feature matrix.
type FeatureName string

// Canonical feature order. The ensemble, anomaly detector and explainer all
// index their matrices against this list, so its order is load-bearing and
// must only ever be appended to alongside a retrain.
var FeatureNames = []FeatureName{
	"age", "gender_encoded", "length_of_stay",
	"num_previous_admissions", "admissions_last_6months",
	"num_chronic_conditions", "medication_count", "missed_appointments",
	"has_diabetes", "has_heart_failure", "has_copd", "has_ckd",
	"has_hypertension", "has_depression", "has_afib",
	"bp_systolic", "bp_diastolic", "heart_rate", "temperature",
	"oxygen_saturation", "respiratory_rate", "bmi",
	"hemoglobin", "wbc_count", "creatinine", "glucose", "bun",
	"sodium", "potassium",
	"discharge_hour", "is_weekend_discharge",
	"lives_alone", "has_caregiver", "transportation_access", "housing_stable",
	"insurance_encoded", "smoking_encoded", "alcohol_encoded",
	"comorbidity_interaction_score", "clinical_complexity_score",
	"social_vulnerability_score", "vital_instability_score",
	"lab_abnormality_score", "readmission_velocity",
}

// FeatureVector is one patient's row of the feature matrix, aligned to
// FeatureNames. It is a fixed-width value type: extraction always produces
// all columns, substituting documented defaults for missing inputs.
type FeatureVector []float64

// Value returns the named feature, or (0, false) for an unknown name.
func (v FeatureVector) Value(name FeatureName) (float64, bool) {
	idx, ok := featureIndex[name]
	if !ok || idx >= len(v) {
		return 0, false
	}
	return v[idx], true
}

// Clone returns an independent copy of the vector.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

var featureIndex = func() map[FeatureName]int {
	m := make(map[FeatureName]int, len(FeatureNames))
	for i, n := range FeatureNames {
		m[n] = i
	}
	return m
}()

// FeatureIndex returns the column index of the named feature, or -1.
func FeatureIndex(name FeatureName) int {
	if idx, ok := featureIndex[name]; ok {
		return idx
	}
	return -1
}

// Human-readable names used by the explanation layer.
var featureDisplayNames = map[FeatureName]string{
	"age":                           "Patient Age",
	"gender_encoded":                "Gender",
	"length_of_stay":                "Length of Stay",
	"num_previous_admissions":       "Previous Admissions (Total)",
	"admissions_last_6months":       "Admissions in Last 6 Months",
	"num_chronic_conditions":        "Number of Chronic Conditions",
	"medication_count":              "Number of Medications",
	"missed_appointments":           "Missed Appointments",
	"has_diabetes":                  "Diabetes",
	"has_heart_failure":             "Heart Failure",
	"has_copd":                      "COPD",
	"has_ckd":                       "Chronic Kidney Disease",
	"has_hypertension":              "Hypertension",
	"has_depression":                "Depression",
	"has_afib":                      "Atrial Fibrillation",
	"bp_systolic":                   "Blood Pressure (Systolic)",
	"bp_diastolic":                  "Blood Pressure (Diastolic)",
	"heart_rate":                    "Heart Rate",
	"temperature":                   "Body Temperature",
	"oxygen_saturation":             "Oxygen Saturation",
	"respiratory_rate":              "Respiratory Rate",
	"bmi":                           "Body Mass Index",
	"hemoglobin":                    "Hemoglobin Level",
	"wbc_count":                     "White Blood Cell Count",
	"creatinine":                    "Creatinine Level",
	"glucose":                       "Blood Glucose",
	"bun":                           "Blood Urea Nitrogen",
	"sodium":                        "Sodium Level",
	"potassium":                     "Potassium Level",
	"discharge_hour":                "Discharge Hour",
	"is_weekend_discharge":          "Weekend Discharge",
	"lives_alone":                   "Lives Alone",
	"has_caregiver":                 "Has Caregiver",
	"transportation_access":         "Transportation Access",
	"housing_stable":                "Stable Housing",
	"insurance_encoded":             "Insurance Type",
	"smoking_encoded":               "Smoking Status",
	"alcohol_encoded":               "Alcohol Use",
	"comorbidity_interaction_score": "Comorbidity Interaction Score",
	"clinical_complexity_score":     "Clinical Complexity Score",
	"social_vulnerability_score":    "Social Vulnerability Score",
	"vital_instability_score":       "Vital Sign Instability",
	"lab_abnormality_score":         "Lab Abnormality Score",
	"readmission_velocity":          "Readmission Velocity",
}

// DisplayName returns the clinician-facing label for a feature.
func DisplayName(name FeatureName) string {
	if d, ok := featureDisplayNames[name]; ok {
		return d
	}
	return string(name)
}

// Categorical encodings are fixed lookup tables. Unseen categories map to a
// designated "other" bucket rather than failing.

// EncodeInsurance maps an insurance label to its numeric code (0-4).
func EncodeInsurance(insurance string) float64 {
	switch insurance {
	case "Private":
		return 0
	case "Medicare", "Medicare Advantage":
		return 1
	case "Medicaid":
		return 2
	case "Self-Pay":
		return 3
	default:
		return 4
	}
}

// EncodeSmoking maps smoking status to its numeric code (0-2).
func EncodeSmoking(status string) float64 {
	switch status {
	case "former":
		return 1
	case "current":
		return 2
	default: // "never" and anything unrecognized
		return 0
	}
}

// EncodeAlcohol maps alcohol use to its numeric code (0-3).
func EncodeAlcohol(use string) float64 {
	switch use {
	case "social":
		return 1
	case "moderate":
		return 2
	case "heavy":
		return 3
	default: // "none" and anything unrecognized
		return 0
	}
}
