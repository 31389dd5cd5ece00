package patient

import "time"

// Vitals holds the most recent vital sign readings for a patient.
// Fields are pointers so that an absent reading is distinguishable from a
// legitimate zero; extraction substitutes the documented default for nil.
type Vitals struct {
	BPSystolic       *float64 `json:"bp_systolic,omitempty"`
	BPDiastolic      *float64 `json:"bp_diastolic,omitempty"`
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	RespiratoryRate  *float64 `json:"respiratory_rate,omitempty"`
}

// Labs holds the most recent laboratory panel for a patient.
type Labs struct {
	Hemoglobin *float64 `json:"hemoglobin,omitempty"`
	WBCCount   *float64 `json:"wbc_count,omitempty"`
	Creatinine *float64 `json:"creatinine,omitempty"`
	Glucose    *float64 `json:"glucose,omitempty"`
	BUN        *float64 `json:"bun,omitempty"`
	Sodium     *float64 `json:"sodium,omitempty"`
	Potassium  *float64 `json:"potassium,omitempty"`
}

// SocialFactors captures discharge-relevant social context.
// Pointers carry the same absent-vs-false distinction as Vitals.
type SocialFactors struct {
	LivesAlone           *bool `json:"lives_alone,omitempty"`
	HasCaregiver         *bool `json:"has_caregiver,omitempty"`
	TransportationAccess *bool `json:"transportation_access,omitempty"`
	HousingStable        *bool `json:"housing_stable,omitempty"`
}

// RawPatientRecord is the storage layer's view of a discharged patient.
// It is read-only input to the scoring core; the core never mutates it.
type RawPatientRecord struct {
	PatientID string   `json:"patient_id"`
	Name      string   `json:"name,omitempty"`
	Age       *float64 `json:"age,omitempty"`
	Gender    string   `json:"gender,omitempty"`

	DiagnosisCode string `json:"diagnosis_code,omitempty"`
	DiagnosisName string `json:"diagnosis_name,omitempty"`
	Ward          string `json:"ward,omitempty"`
	Insurance     string `json:"insurance,omitempty"`

	AdmissionDate time.Time `json:"admission_date,omitempty"`
	DischargeDate time.Time `json:"discharge_date,omitempty"`

	LengthOfStay           *float64    `json:"length_of_stay,omitempty"`
	NumPreviousAdmissions  *float64    `json:"num_previous_admissions,omitempty"`
	AdmissionsLast6Months  *float64    `json:"admissions_last_6months,omitempty"`
	MedicationCount        *float64    `json:"medication_count,omitempty"`
	MissedAppointments     *float64    `json:"missed_appointments,omitempty"`
	BMI                    *float64    `json:"bmi,omitempty"`
	DischargeHour          *float64    `json:"discharge_hour,omitempty"`
	IsWeekendDischarge     bool        `json:"is_weekend_discharge,omitempty"`
	ChronicConditions      []string    `json:"chronic_conditions,omitempty"`
	SmokingStatus          string      `json:"smoking_status,omitempty"`
	AlcoholUse             string      `json:"alcohol_use,omitempty"`
	PreviousAdmissionDates []time.Time `json:"previous_admission_dates,omitempty"`

	Vitals Vitals        `json:"vitals"`
	Labs   Labs          `json:"labs"`
	Social SocialFactors `json:"social_factors"`

	ClinicalNotes string `json:"clinical_notes,omitempty"`

	// Known outcome, present only on historical records used for training.
	Readmitted7d *bool `json:"readmitted_7d,omitempty"`
}

// HasCondition reports whether the named chronic condition is on record.
func (r *RawPatientRecord) HasCondition(name string) bool {
	for _, c := range r.ChronicConditions {
		if c == name {
			return true
		}
	}
	return false
}
