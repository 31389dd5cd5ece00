// Package scorer orchestrates the scoring core: it trains the ensemble,
// initializes the explainer and anomaly detector, precomputes cohort risk,
// and assembles full per-patient assessments on demand.
package scorer

import (
	randv2 "math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/anomaly"
	"riskiq/internal/clinicaltext"
	"riskiq/internal/config"
	"riskiq/internal/ensemble"
	"riskiq/internal/errors"
	"riskiq/internal/explain"
	"riskiq/internal/features"
	"riskiq/internal/log"
	"riskiq/internal/temporal"
)

// similarityPoolSize caps how many cohort members the neighbor search scans.
const similarityPoolSize = 200

// ScoredPatient is the precomputed cohort summary kept in memory after
// Initialize. List and dashboard queries read these, never the models.
type ScoredPatient struct {
	PatientID         string                   `json:"patient_id"`
	Name              string                   `json:"name,omitempty"`
	Age               float64                  `json:"age"`
	Gender            string                   `json:"gender,omitempty"`
	Diagnosis         string                   `json:"diagnosis,omitempty"`
	DiagnosisCode     string                   `json:"diagnosis_code,omitempty"`
	Ward              string                   `json:"ward,omitempty"`
	ChronicConditions []string                 `json:"chronic_conditions"`
	LengthOfStay      float64                  `json:"length_of_stay"`
	AdmissionDate     time.Time                `json:"admission_date"`
	DischargeDate     time.Time                `json:"discharge_date"`
	RiskScore         float64                  `json:"risk_score"`
	RiskLevel         risk.Level               `json:"risk_level"`
	RiskHorizons      map[risk.Horizon]float64 `json:"risk_horizons"`
}

// ListQuery filters, sorts and paginates the scored cohort.
type ListQuery struct {
	RiskFilter string
	WardFilter string
	Search     string
	SortBy     string // "risk_score", "name", "age", "discharge_date"
	Limit      int
	Offset     int
}

// PatientPage is one page of the scored cohort.
type PatientPage struct {
	Patients []ScoredPatient `json:"patients"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// WardStats aggregates risk per ward for the dashboard.
type WardStats struct {
	Count         int     `json:"count"`
	AvgRisk       float64 `json:"avg_risk"`
	HighRiskCount int     `json:"high_risk_count"`
}

// DiagnosisCount is one entry of the top-diagnoses list.
type DiagnosisCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DashboardStats is the aggregate cohort view.
type DashboardStats struct {
	TotalPatients    int                   `json:"total_patients"`
	AverageRiskScore float64               `json:"average_risk_score"`
	MedianRiskScore  float64               `json:"median_risk_score"`
	HighRiskCount    int                   `json:"high_risk_count"`
	RiskDistribution map[risk.Level]int    `json:"risk_distribution"`
	WardBreakdown    map[string]WardStats  `json:"ward_breakdown"`
	AgeDistribution  map[string]int        `json:"age_distribution"`
	TopDiagnoses     []DiagnosisCount      `json:"top_diagnoses"`
	ReadmissionRate  float64               `json:"readmission_rate"`
	ModelMetrics     *risk.TrainingMetrics `json:"model_performance,omitempty"`
	Timestamp        time.Time             `json:"timestamp"`
}

// ScoreBucket is one 5-point bin of the risk score histogram.
type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Scorer wires the models together behind one service boundary. Initialize
// and Retrain are serialized; reads are safe concurrently once ready.
type Scorer struct {
	cfg        *config.Config
	logger     *log.Logger
	thresholds risk.Thresholds

	engine    *ensemble.Engine
	explainer *explain.Explainer
	detector  *anomaly.Detector
	temporal  *temporal.Analyzer
	notes     *clinicaltext.Engine

	mu       sync.RWMutex
	patients []patient.RawPatientRecord
	scored   map[string]*ScoredPatient
	order    []string // cohort order, preserved for similarity pooling
	ready    bool
}

func New(cfg *config.Config, logger *log.Logger) *Scorer {
	thresholds := risk.Thresholds{
		Medium:   cfg.Risk.ThresholdMedium,
		High:     cfg.Risk.ThresholdHigh,
		Critical: cfg.Risk.ThresholdCritical,
	}
	engine := ensemble.NewEngine(cfg.Model, thresholds, logger)
	return &Scorer{
		cfg:        cfg,
		logger:     logger,
		thresholds: thresholds,
		engine:     engine,
		explainer:  explain.New(engine, logger),
		detector:   anomaly.NewDetector(cfg.Model.AnomalyContamination, cfg.Model.TrainingSeed, logger),
		temporal:   temporal.NewAnalyzer(logger),
		notes:      clinicaltext.NewEngine(),
		scored:     make(map[string]*ScoredPatient),
	}
}

// Ready reports whether Initialize has completed.
func (s *Scorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Engine exposes the underlying ensemble for drift checks and persistence.
func (s *Scorer) Engine() *ensemble.Engine {
	return s.engine
}

// Initialize trains the ensemble on the labeled subset of the cohort, fits
// the anomaly baseline and explainer background on the full cohort, then
// precomputes a risk summary for every patient.
func (s *Scorer) Initialize(cohort []patient.RawPatientRecord) (*risk.TrainingMetrics, error) {
	if len(cohort) == 0 {
		return nil, errors.InvalidInput("cohort is empty")
	}
	s.logger.Info("initializing risk scorer with %d patients", len(cohort))

	rows := make([][]float64, len(cohort))
	for i := range cohort {
		rows[i] = features.Extract(&cohort[i])
	}

	trainX, trainY := labeledSubset(cohort, rows)
	metrics, err := s.engine.Train(trainX, trainY)
	if err != nil {
		return nil, errors.Wrap(err, "ensemble training failed")
	}

	if err := s.explainer.Initialize(rows, s.cfg.Model.BackgroundSamples, s.cfg.Model.TrainingSeed); err != nil {
		return nil, errors.Wrap(err, "explainer initialization failed")
	}
	if err := s.detector.Fit(rows); err != nil {
		return nil, errors.Wrap(err, "anomaly detector fit failed")
	}

	scored, order, err := s.precomputeRisks(cohort, rows)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.patients = cohort
	s.scored = scored
	s.order = order
	s.ready = true
	s.mu.Unlock()

	s.logger.Info("risk scorer ready: ensemble AUC %.3f", metrics.Ensemble.AUC)
	return metrics, nil
}

// Retrain re-runs Initialize on the stored cohort.
func (s *Scorer) Retrain() (*risk.TrainingMetrics, error) {
	s.mu.RLock()
	cohort := s.patients
	s.mu.RUnlock()
	if len(cohort) == 0 {
		return nil, errors.NotReady("risk scorer")
	}
	return s.Initialize(cohort)
}

func (s *Scorer) precomputeRisks(cohort []patient.RawPatientRecord, rows [][]float64) (map[string]*ScoredPatient, []string, error) {
	probs, err := s.engine.PredictProba(rows)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cohort scoring failed")
	}

	scored := make(map[string]*ScoredPatient, len(cohort))
	order := make([]string, 0, len(cohort))
	for i := range cohort {
		p := &cohort[i]
		score := round1(probs[i] * 100)
		horizons := s.engine.PredictMultiHorizon(probs[i])
		for h, v := range horizons {
			horizons[h] = round1(v * 100)
		}
		sp := &ScoredPatient{
			PatientID:         p.PatientID,
			Name:              p.Name,
			Gender:            p.Gender,
			Diagnosis:         p.DiagnosisName,
			DiagnosisCode:     p.DiagnosisCode,
			Ward:              p.Ward,
			ChronicConditions: p.ChronicConditions,
			AdmissionDate:     p.AdmissionDate,
			DischargeDate:     p.DischargeDate,
			RiskScore:         score,
			RiskLevel:         s.thresholds.LevelFor(score),
			RiskHorizons:      horizons,
		}
		if p.Age != nil {
			sp.Age = *p.Age
		}
		if p.LengthOfStay != nil {
			sp.LengthOfStay = *p.LengthOfStay
		}
		scored[p.PatientID] = sp
		order = append(order, p.PatientID)
	}
	return scored, order, nil
}

// AssessPatient assembles the full report for one patient: calibrated
// prediction, note-adjusted overall score, attribution, anomaly flags,
// readmission velocity and nearest cohort neighbors.
func (s *Scorer) AssessPatient(patientID string) (*risk.Assessment, error) {
	s.mu.RLock()
	if !s.ready {
		s.mu.RUnlock()
		return nil, errors.NotReady("risk scorer")
	}
	rec := s.findPatient(patientID)
	s.mu.RUnlock()
	if rec == nil {
		return nil, errors.NotFound("patient " + patientID)
	}

	vec := features.Extract(rec)
	row := []float64(vec)

	prediction, err := s.engine.PredictSingle(row)
	if err != nil {
		return nil, err
	}

	// Explanation is a secondary signal: degrade to an empty structure
	// rather than failing the whole assessment.
	explanation, err := s.explainer.ExplainPatient(row, 10)
	if err != nil {
		s.logger.Warn("explanation unavailable for %s: %v", patientID, err)
		explanation = &risk.Explanation{}
	}

	anomalyResult := s.detector.Detect(row)
	noteSignals := s.notes.AnalyzeNotes(rec.ClinicalNotes)
	velocity := s.temporal.Velocity(rec.PreviousAdmissionDates)

	overall := clamp(prediction.Score+noteSignals.RiskScoreModifier, 0, 100)

	return &risk.Assessment{
		AssessmentID: uuid.NewString(),
		PatientID:    patientID,
		OverallScore: overall,
		RawMLScore:   prediction.Score,
		Level:        s.thresholds.LevelFor(overall),
		NoteModifier: noteSignals.RiskScoreModifier,
		Prediction:   *prediction,
		Explanation:  *explanation,
		Anomaly:      anomalyResult,
		Notes:        noteSignals,
		Velocity:     velocity,
		Similar:      s.similarPatients(rec, vec),
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (s *Scorer) similarPatients(target *patient.RawPatientRecord, vec patient.FeatureVector) []risk.SimilarPatient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool := make([]temporal.CohortPatient, 0, similarityPoolSize)
	for i := range s.patients {
		if len(pool) >= similarityPoolSize {
			break
		}
		p := &s.patients[i]
		if p.PatientID == target.PatientID {
			continue
		}
		cp := temporal.CohortPatient{
			PatientID: p.PatientID,
			Features:  features.Extract(p),
		}
		if sp, ok := s.scored[p.PatientID]; ok {
			cp.RiskScore = sp.RiskScore
		}
		if p.Readmitted7d != nil {
			cp.WasReadmitted = *p.Readmitted7d
		}
		pool = append(pool, cp)
	}
	return s.temporal.SimilarPatients(vec, pool, 5)
}

// ListPatients filters, sorts and paginates the precomputed cohort.
func (s *Scorer) ListPatients(q ListQuery) (*PatientPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, errors.NotReady("risk scorer")
	}

	out := make([]ScoredPatient, 0, len(s.order))
	for _, id := range s.order {
		p := s.scored[id]
		if q.RiskFilter != "" && q.RiskFilter != "all" && string(p.RiskLevel) != q.RiskFilter {
			continue
		}
		if q.WardFilter != "" && q.WardFilter != "all" && p.Ward != q.WardFilter {
			continue
		}
		if q.Search != "" && !matchesSearch(p, q.Search) {
			continue
		}
		out = append(out, *p)
	}

	sortPatients(out, q.SortBy)

	total := len(out)
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &PatientPage{
		Patients: out[offset:end],
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func matchesSearch(p *ScoredPatient, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.PatientID), needle) ||
		strings.Contains(strings.ToLower(p.Diagnosis), needle)
}

func sortPatients(ps []ScoredPatient, sortBy string) {
	switch sortBy {
	case "name":
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	case "age":
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Age > ps[j].Age })
	case "discharge_date":
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].DischargeDate.After(ps[j].DischargeDate) })
	default:
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].RiskScore > ps[j].RiskScore })
	}
}

// DashboardStats aggregates the scored cohort.
func (s *Scorer) DashboardStats() (*DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, errors.NotReady("risk scorer")
	}

	scores := make([]float64, 0, len(s.order))
	dist := map[risk.Level]int{
		risk.LevelCritical: 0, risk.LevelHigh: 0, risk.LevelMedium: 0, risk.LevelLow: 0,
	}
	wards := make(map[string]WardStats)
	ages := map[string]int{"18-30": 0, "31-45": 0, "46-60": 0, "61-75": 0, "76+": 0}
	diagnoses := make(map[string]int)
	readmitted := 0

	for i := range s.patients {
		rec := &s.patients[i]
		sp := s.scored[rec.PatientID]
		if sp == nil {
			continue
		}
		scores = append(scores, sp.RiskScore)
		dist[sp.RiskLevel]++

		ward := sp.Ward
		if ward == "" {
			ward = "Unknown"
		}
		ws := wards[ward]
		ws.Count++
		ws.AvgRisk += sp.RiskScore
		if sp.RiskLevel == risk.LevelHigh || sp.RiskLevel == risk.LevelCritical {
			ws.HighRiskCount++
		}
		wards[ward] = ws

		switch a := sp.Age; {
		case a < 18:
			// Pediatric records fall outside the adult dashboard buckets.
		case a <= 30:
			ages["18-30"]++
		case a <= 45:
			ages["31-45"]++
		case a <= 60:
			ages["46-60"]++
		case a <= 75:
			ages["61-75"]++
		case a > 75:
			ages["76+"]++
		}

		dx := sp.Diagnosis
		if dx == "" {
			dx = "Other"
		}
		diagnoses[dx]++

		if rec.Readmitted7d != nil && *rec.Readmitted7d {
			readmitted++
		}
	}

	for name, ws := range wards {
		if ws.Count > 0 {
			ws.AvgRisk = round1(ws.AvgRisk / float64(ws.Count))
		}
		wards[name] = ws
	}

	mean, _ := stats.Mean(scores)
	median, _ := stats.Median(scores)

	out := &DashboardStats{
		TotalPatients:    len(scores),
		AverageRiskScore: round1(mean),
		MedianRiskScore:  round1(median),
		HighRiskCount:    dist[risk.LevelHigh] + dist[risk.LevelCritical],
		RiskDistribution: dist,
		WardBreakdown:    wards,
		AgeDistribution:  ages,
		TopDiagnoses:     topDiagnoses(diagnoses, 10),
		ReadmissionRate:  round1(float64(readmitted) / float64(maxInt(len(scores), 1)) * 100),
		Timestamp:        time.Now().UTC(),
	}
	if metrics, err := s.engine.Metrics(); err == nil {
		out.ModelMetrics = metrics
	}
	return out, nil
}

func topDiagnoses(counts map[string]int, limit int) []DiagnosisCount {
	out := make([]DiagnosisCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, DiagnosisCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RiskDistribution bins the cohort's scores into 5-point buckets for the
// dashboard histogram.
func (s *Scorer) RiskDistribution() ([]ScoreBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, errors.NotReady("risk scorer")
	}

	buckets := make([]ScoreBucket, 20)
	for i := range buckets {
		lo, hi := i*5, (i+1)*5
		buckets[i] = ScoreBucket{
			Range: rangeLabel(lo, hi),
			Min:   lo,
			Max:   hi,
		}
	}
	for _, sp := range s.scored {
		idx := int(sp.RiskScore) / 5
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx].Count++
	}
	return buckets, nil
}

// DetectDrift compares raw patient batches against the training baseline.
func (s *Scorer) DetectDrift(batch []patient.RawPatientRecord) (*risk.DriftReport, error) {
	if len(batch) == 0 {
		return nil, errors.InvalidInput("drift batch is empty")
	}
	rows := make([][]float64, len(batch))
	for i := range batch {
		rows[i] = features.Extract(&batch[i])
	}
	return s.engine.DetectDrift(rows)
}

// CohortSurvival synthesizes the Kaplan-Meier view from the precomputed
// cohort scores.
func (s *Scorer) CohortSurvival(maxDays int, rng *randv2.Rand) (*risk.SurvivalCurve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, errors.NotReady("risk scorer")
	}
	scores := make([]float64, 0, len(s.order))
	for _, id := range s.order {
		scores = append(scores, s.scored[id].RiskScore)
	}
	curve := s.temporal.SurvivalCurve(scores, maxDays, rng)
	return &curve, nil
}

// SaveModels persists the trained ensemble to the configured artifact dir.
func (s *Scorer) SaveModels() error {
	return s.engine.Save(s.cfg.Paths.ModelDir)
}

// LoadModels restores a previously trained ensemble. Returns false when no
// usable artifacts exist; the scorer stays untrained in that case.
func (s *Scorer) LoadModels() bool {
	return s.engine.Load(s.cfg.Paths.ModelDir)
}

func (s *Scorer) findPatient(patientID string) *patient.RawPatientRecord {
	for i := range s.patients {
		if s.patients[i].PatientID == patientID {
			return &s.patients[i]
		}
	}
	return nil
}

func labeledSubset(cohort []patient.RawPatientRecord, rows [][]float64) ([][]float64, []float64) {
	X := make([][]float64, 0, len(cohort))
	y := make([]float64, 0, len(cohort))
	for i := range cohort {
		if cohort[i].Readmitted7d == nil {
			continue
		}
		X = append(X, rows[i])
		if *cohort[i].Readmitted7d {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	return X, y
}

func rangeLabel(lo, hi int) string {
	return strconv.Itoa(lo) + "-" + strconv.Itoa(hi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
