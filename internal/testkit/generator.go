// Package testkit generates seeded synthetic patient cohorts with realistic
// clinical correlations: age-dependent comorbidities, condition-correlated
// vitals and labs, and notes that embed the textual risk signals the
// note scanner looks for. It backs the seed command and the integration
// tests; no production scoring path depends on it.
package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"riskiq/domain/patient"
)

var chronicConditions = []string{
	"Hypertension", "Type 2 Diabetes", "Heart Failure", "COPD",
	"Chronic Kidney Disease", "Depression", "Atrial Fibrillation",
	"Coronary Artery Disease", "Obesity", "Dementia", "Asthma", "Type 1 Diabetes",
}

var diagnoses = map[string]string{
	"I50": "Heart Failure",
	"J44": "COPD Exacerbation",
	"E11": "Type 2 Diabetes",
	"N18": "Chronic Kidney Disease",
	"I10": "Essential Hypertension",
	"J18": "Pneumonia",
	"N39": "Urinary Tract Infection",
	"A41": "Sepsis",
	"I63": "Cerebral Infarction",
	"K92": "GI Bleed",
}

var wards = []string{
	"ICU", "Cardiology", "Pulmonology", "General Medicine",
	"Surgery", "Neurology", "Oncology", "Orthopedics",
}

var highRiskNoteTemplates = []string{
	"Patient is %dyo %s presenting with %s. History of %s and %s. " +
		"Non-compliant with medications. %d admissions in last 6 months. " +
		"Lives alone, limited support system. Unstable vitals on admission. " +
		"Patient declined home health referral. Transportation issues noted.",
	"Readmission for %s exacerbation. Patient has multiple comorbidities including " +
		"%s, %s. Frequent flyer - %dx in 6 months. " +
		"Altered mental status on arrival. Substance abuse history noted. " +
		"No fixed address, shelter referral made. Poor prognosis discussed.",
}

var mediumRiskNoteTemplates = []string{
	"Patient is %dyo %s admitted for %s. Known history of %s. " +
		"Generally compliant with medications but reports occasional missed doses. " +
		"Follow-up needed with PCP within 7 days. Limited mobility, requires assistance with ADLs. " +
		"Family involved in care planning.",
	"%dyo %s with %s. Comorbidities include %s. " +
		"Borderline lab values, close monitoring recommended. Partial compliance with diet. " +
		"Anxiety noted, counseling referral placed. Transportation arranged for follow-up.",
}

var lowRiskNoteTemplates = []string{
	"Patient is %dyo %s admitted for %s. No significant past medical history beyond %s. " +
		"Vital signs stable throughout admission. Independent with ADLs. " +
		"Strong family support, caregiver available 24/7. Follow-up scheduled with PCP. " +
		"Goals of care met, medically stable for discharge.",
	"Uncomplicated %s admission. Patient is %dyo %s. " +
		"Improving steadily, stable for discharge. Motivated patient with strong support system. " +
		"Cleared for discharge by all services. Transportation confirmed.",
}

// Generator produces synthetic cohorts from a seeded stream, so the same
// seed always yields the same patients.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Cohort generates n synthetic discharged patients with known outcomes.
func (g *Generator) Cohort(n int) []patient.RawPatientRecord {
	out := make([]patient.RawPatientRecord, n)
	for i := range out {
		out[i] = g.Patient(i)
	}
	return out
}

// Patient generates one patient. The readmission outcome is drawn from a
// probability assembled from the same risk factors the models are meant to
// learn, so trained ensembles find real signal in the cohort.
func (g *Generator) Patient(idx int) patient.RawPatientRecord {
	age := g.age()
	gender := "Female"
	if g.rng.Float64() < 0.48 {
		gender = "Male"
	}

	conditions := g.conditions(age)
	numChronic := len(conditions)
	hasCondition := func(name string) bool {
		for _, c := range conditions {
			if c == name {
				return true
			}
		}
		return false
	}

	baseRate := 0.3 + float64(numChronic)*0.15 + math.Max(0, float64(age)-60)*0.005
	prevAdmissions := g.poisson(baseRate * 3)
	admissions6m := minInt(prevAdmissions, g.poisson(baseRate*1.5))

	avgLOS := 3 + float64(numChronic)*0.5
	if age > 75 {
		avgLOS++
	}
	los := clampInt(int(math.Exp(math.Log(avgLOS)+g.rng.NormFloat64()*0.5)), 1, 45)

	baseMeds := float64(numChronic * 2)
	if hasCondition("Type 2 Diabetes") || hasCondition("Type 1 Diabetes") {
		baseMeds += 2
	}
	if hasCondition("Heart Failure") {
		baseMeds += 2
	}
	meds := clampInt(g.poisson(math.Max(1, baseMeds)), 1, 25)

	missed := g.poisson(g.rng.Float64() * 1.2)

	vitals := g.vitals(age, hasCondition)
	labs := g.labs(hasCondition)

	bmi := 26 + g.rng.NormFloat64()*5
	if hasCondition("Obesity") {
		bmi = 35 + g.rng.NormFloat64()*5
	}
	bmi = math.Round(clampF(bmi, 15, 55)*10) / 10

	smoking := g.choice([]string{"never", "former", "current"}, []float64{0.6, 0.25, 0.15})
	if hasCondition("COPD") {
		smoking = g.choice([]string{"never", "former", "current"}, []float64{0.5, 0.3, 0.2})
	}
	alcohol := g.choice([]string{"none", "social", "moderate", "heavy"}, []float64{0.4, 0.3, 0.2, 0.1})

	livesAloneP := 0.25
	if age > 65 {
		livesAloneP = 0.35
	}
	livesAlone := g.rng.Float64() < livesAloneP
	caregiverP := 0.6
	if livesAlone {
		caregiverP = 0.2
	}
	hasCaregiver := g.rng.Float64() < caregiverP
	transport := g.rng.Float64() < 0.75
	housing := g.rng.Float64() < 0.85

	dischargeDate := g.now.AddDate(0, 0, -g.rng.Intn(90))
	admissionDate := dischargeDate.AddDate(0, 0, -los)
	dischargeHour := 8 + g.rng.Intn(12)
	weekend := dischargeDate.Weekday() == time.Saturday || dischargeDate.Weekday() == time.Sunday

	prevDates := make([]time.Time, prevAdmissions)
	for i := range prevDates {
		prevDates[i] = g.now.AddDate(0, 0, -(30 + g.rng.Intn(335)))
	}

	// Outcome probability built from the generated risk factors plus noise.
	prob := g.readmissionProbability(age, numChronic, admissions6m, los, meds, missed,
		livesAlone, hasCaregiver, vitals, labs, hasCondition)
	readmitted := g.rng.Float64() < prob

	diagnosisCode := g.diagnosis(hasCondition)

	rec := patient.RawPatientRecord{
		PatientID:              fmt.Sprintf("PT-%05d", idx+1),
		Name:                   fmt.Sprintf("Synthetic Patient %d", idx+1),
		Age:                    fptr(float64(age)),
		Gender:                 gender,
		Insurance:              g.insurance(age),
		DiagnosisCode:          diagnosisCode,
		DiagnosisName:          diagnoses[diagnosisCode],
		Ward:                   wards[g.rng.Intn(len(wards))],
		AdmissionDate:          admissionDate,
		DischargeDate:          dischargeDate,
		LengthOfStay:           fptr(float64(los)),
		NumPreviousAdmissions:  fptr(float64(prevAdmissions)),
		AdmissionsLast6Months:  fptr(float64(admissions6m)),
		MedicationCount:        fptr(float64(meds)),
		MissedAppointments:     fptr(float64(missed)),
		BMI:                    fptr(bmi),
		DischargeHour:          fptr(float64(dischargeHour)),
		IsWeekendDischarge:     weekend,
		ChronicConditions:      conditions,
		SmokingStatus:          smoking,
		AlcoholUse:             alcohol,
		PreviousAdmissionDates: prevDates,
		Vitals:                 vitals,
		Labs:                   labs,
		Social: patient.SocialFactors{
			LivesAlone:           bptr(livesAlone),
			HasCaregiver:         bptr(hasCaregiver),
			TransportationAccess: bptr(transport),
			HousingStable:        bptr(housing),
		},
		ClinicalNotes: g.notes(prob, age, gender, diagnoses[diagnosisCode], conditions, admissions6m),
		Readmitted7d:  bptr(readmitted),
	}
	return rec
}

func (g *Generator) age() int {
	// Beta(5,3)-like skew toward older patients via averaged uniforms.
	v := 0.0
	for i := 0; i < 5; i++ {
		v += g.rng.Float64()
	}
	for i := 0; i < 3; i++ {
		v += 1 - g.rng.Float64()
	}
	return clampInt(int(v/8*70)+18, 18, 100)
}

func (g *Generator) conditions(age int) []string {
	lambda := 0.5
	switch {
	case age >= 75:
		lambda = 3.5
	case age >= 60:
		lambda = 2.5
	case age >= 40:
		lambda = 1.5
	}
	n := minInt(g.poisson(lambda), len(chronicConditions))

	perm := g.rng.Perm(len(chronicConditions))
	out := make([]string, 0, n)
	for _, i := range perm {
		if len(out) == n {
			break
		}
		c := chronicConditions[i]
		if c == "Dementia" && age < 60 && g.rng.Float64() > 0.1 {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (g *Generator) diagnosis(hasCondition func(string) bool) string {
	switch {
	case hasCondition("Heart Failure") && g.rng.Float64() < 0.4:
		return "I50"
	case hasCondition("COPD") && g.rng.Float64() < 0.35:
		return "J44"
	case hasCondition("Type 2 Diabetes") && g.rng.Float64() < 0.3:
		return "E11"
	case hasCondition("Chronic Kidney Disease") && g.rng.Float64() < 0.3:
		return "N18"
	}
	codes := []string{"I50", "J44", "E11", "N18", "I10", "J18", "N39", "A41", "I63", "K92"}
	return codes[g.rng.Intn(len(codes))]
}

func (g *Generator) insurance(age int) string {
	if age >= 65 {
		return g.choice(
			[]string{"Medicare", "Medicare Advantage", "Private", "Medicaid"},
			[]float64{0.45, 0.25, 0.20, 0.10})
	}
	return g.choice(
		[]string{"Private", "Medicaid", "Medicare", "Self-Pay", "Other"},
		[]float64{0.45, 0.25, 0.10, 0.12, 0.08})
}

func (g *Generator) vitals(age int, hasCondition func(string) bool) patient.Vitals {
	sysBase := 120 + (float64(age)-50)*0.3
	if hasCondition("Hypertension") {
		sysBase += 20
	}
	sys := clampF(sysBase+g.rng.NormFloat64()*15, 80, 200)
	dia := clampF(sys*0.6+g.rng.NormFloat64()*8, 50, 120)

	hrBase := 75.0
	if hasCondition("Heart Failure") {
		hrBase += 10
	}
	if hasCondition("Atrial Fibrillation") {
		hrBase += 15
	}
	hr := clampF(hrBase+g.rng.NormFloat64()*12, 45, 150)

	temp := 98.6 + g.rng.NormFloat64()*0.5
	if g.rng.Float64() < 0.08 {
		temp = 101 + g.rng.NormFloat64()
	}

	o2Base := 97.0
	if hasCondition("COPD") {
		o2Base = 93
	}
	if hasCondition("Heart Failure") {
		o2Base--
	}
	o2 := clampF(o2Base+g.rng.NormFloat64()*2, 82, 100)

	rrBase := 16.0
	if hasCondition("COPD") {
		rrBase += 4
	}
	rr := clampF(rrBase+g.rng.NormFloat64()*3, 10, 35)

	return patient.Vitals{
		BPSystolic:       fptr(math.Round(sys)),
		BPDiastolic:      fptr(math.Round(dia)),
		HeartRate:        fptr(math.Round(hr)),
		Temperature:      fptr(math.Round(temp*10) / 10),
		OxygenSaturation: fptr(math.Round(o2)),
		RespiratoryRate:  fptr(math.Round(rr)),
	}
}

func (g *Generator) labs(hasCondition func(string) bool) patient.Labs {
	hgb := 13.5 + g.rng.NormFloat64()*1.5
	if hasCondition("Chronic Kidney Disease") {
		hgb -= 2
	}

	wbc := 7.5 + g.rng.NormFloat64()*2.5
	if g.rng.Float64() < 0.1 {
		wbc = 15 + g.rng.NormFloat64()*3
	}

	cr := 1.0 + g.rng.NormFloat64()*0.3
	if hasCondition("Chronic Kidney Disease") {
		cr = 2.5 + g.rng.NormFloat64()
	}

	glucose := 100 + g.rng.NormFloat64()*15
	if hasCondition("Type 2 Diabetes") {
		glucose = 180 + g.rng.NormFloat64()*50
	}

	bun := 15 + g.rng.NormFloat64()*5
	if hasCondition("Chronic Kidney Disease") {
		bun = 35 + g.rng.NormFloat64()*10
	}

	sodium := 140 + g.rng.NormFloat64()*3
	if hasCondition("Heart Failure") {
		sodium -= 3
	}

	potassium := 4.2 + g.rng.NormFloat64()*0.4
	if hasCondition("Chronic Kidney Disease") {
		potassium += 0.5
	}

	return patient.Labs{
		Hemoglobin: fptr(math.Round(clampF(hgb, 5, 20)*10) / 10),
		WBCCount:   fptr(math.Round(clampF(wbc, 1, 30)*10) / 10),
		Creatinine: fptr(math.Round(clampF(cr, 0.3, 8)*100) / 100),
		Glucose:    fptr(math.Round(clampF(glucose, 40, 500))),
		BUN:        fptr(math.Round(clampF(bun, 5, 80)*10) / 10),
		Sodium:     fptr(math.Round(clampF(sodium, 120, 155))),
		Potassium:  fptr(math.Round(clampF(potassium, 2.5, 7)*10) / 10),
	}
}

func (g *Generator) readmissionProbability(age, numChronic, admissions6m, los, meds, missed int,
	livesAlone, hasCaregiver bool, vitals patient.Vitals, labs patient.Labs,
	hasCondition func(string) bool) float64 {

	prob := 0.18

	switch {
	case age > 80:
		prob += 0.08
	case age > 70:
		prob += 0.05
	case age > 60:
		prob += 0.02
	}

	prob += float64(admissions6m) * 0.08
	prob += float64(numChronic) * 0.03
	if hasCondition("Heart Failure") {
		prob += 0.06
	}
	if hasCondition("COPD") {
		prob += 0.04
	}
	if hasCondition("Type 2 Diabetes") {
		prob += 0.03
	}

	if los <= 2 {
		prob += 0.05
	} else if los >= 10 {
		prob += 0.03
	}

	if meds > 10 {
		prob += 0.04
	} else if meds > 7 {
		prob += 0.02
	}

	prob += float64(missed) * 0.03

	if livesAlone {
		prob += 0.04
	}
	if !hasCaregiver {
		prob += 0.03
	}

	if o2 := *vitals.OxygenSaturation; o2 < 92 {
		prob += 0.08
	}
	if cr := *labs.Creatinine; cr > 1.5 {
		prob += 0.04
	}

	prob += g.rng.NormFloat64() * 0.04
	return clampF(prob, 0.02, 0.95)
}

func (g *Generator) notes(prob float64, age int, gender, diagnosis string, conditions []string, admissions6m int) string {
	chronic1 := "no significant PMH"
	chronic2 := "general deconditioning"
	if len(conditions) > 0 {
		chronic1 = conditions[0]
	}
	if len(conditions) > 1 {
		chronic2 = conditions[1]
	}
	lower := strings.ToLower(gender)

	switch {
	case prob > 0.6:
		if g.rng.Intn(2) == 0 {
			return fmt.Sprintf(highRiskNoteTemplates[0], age, lower, diagnosis, chronic1, chronic2, admissions6m)
		}
		return fmt.Sprintf(highRiskNoteTemplates[1], diagnosis, chronic1, chronic2, admissions6m)
	case prob > 0.3:
		if g.rng.Intn(2) == 0 {
			return fmt.Sprintf(mediumRiskNoteTemplates[0], age, lower, diagnosis, chronic1)
		}
		return fmt.Sprintf(mediumRiskNoteTemplates[1], age, lower, diagnosis, chronic1)
	default:
		if g.rng.Intn(2) == 0 {
			return fmt.Sprintf(lowRiskNoteTemplates[0], age, lower, diagnosis, chronic1)
		}
		return fmt.Sprintf(lowRiskNoteTemplates[1], diagnosis, age, lower)
	}
}

// poisson draws via Knuth's method; fine for the small rates used here.
func (g *Generator) poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= g.rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func (g *Generator) choice(options []string, weights []float64) string {
	r := g.rng.Float64()
	cum := 0.0
	for i, w := range weights {
		cum += w
		if r < cum {
			return options[i]
		}
	}
	return options[len(options)-1]
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
