package risk

import (
	"time"

	"riskiq/domain/patient"
)

// Level is the discretized risk tier shown to clinical staff.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Thresholds are the score boundaries (0-100 scale) between risk tiers.
// Boundary values resolve to the higher tier.
type Thresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// DefaultThresholds mirror the shipped configuration (55/75/90).
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 55, High: 75, Critical: 90}
}

// LevelFor maps a 0-100 score to its risk tier.
func (t Thresholds) LevelFor(score float64) Level {
	switch {
	case score >= t.Critical:
		return LevelCritical
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Horizon identifies one of the fixed prediction windows.
type Horizon string

const (
	Horizon24h Horizon = "24h"
	Horizon72h Horizon = "72h"
	Horizon7d  Horizon = "7d"
	Horizon30d Horizon = "30d"
)

// Horizons lists the supported windows from shortest to longest.
var Horizons = []Horizon{Horizon24h, Horizon72h, Horizon7d, Horizon30d}

// Prediction is the ensemble's per-patient output. Transient: recomputed on
// every scoring call, never persisted by the core itself.
type Prediction struct {
	Score          float64             `json:"risk_score"` // 0-100
	Level          Level               `json:"risk_level"`
	Confidence     float64             `json:"confidence"` // model agreement, 0-100
	Horizons       map[Horizon]float64 `json:"horizons"`   // per-window score, 0-100
	ModelBreakdown map[string]float64  `json:"model_breakdown"`
}

// Attribution is the canonical signed per-feature contribution. Every
// explainer backend produces this shape; downstream code never branches on
// backend-specific output formats.
type Attribution struct {
	Feature     patient.FeatureName `json:"feature"`
	DisplayName string              `json:"display_name"`
	Value       float64             `json:"attribution"` // signed contribution
	RawValue    float64             `json:"raw_value"`
	Impact      string              `json:"impact"` // "increases" or "decreases"
	AbsValue    float64             `json:"abs_impact"`
}

// Counterfactual is a suggested change to a modifiable risk factor paired
// with an estimated effect on the risk score.
type Counterfactual struct {
	Factor                 string  `json:"factor"`
	Current                string  `json:"current"`
	Target                 string  `json:"target"`
	Action                 string  `json:"action"`
	EstimatedRiskReduction float64 `json:"estimated_risk_reduction"`
}

// Explanation is the attribution report for one prediction.
type Explanation struct {
	TopFactors      []Attribution    `json:"top_factors"`
	AllFactors      []Attribution    `json:"all_factors,omitempty"`
	NaturalLanguage string           `json:"natural_language"`
	Counterfactuals []Counterfactual `json:"counterfactuals"`
	BaseValue       float64          `json:"base_value"`
	AttributionSum  float64          `json:"attribution_sum"`
}

// AnomalousFeature describes one feature flagged by the univariate checks.
type AnomalousFeature struct {
	Feature       patient.FeatureName `json:"feature"`
	Value         float64             `json:"value"`
	ExpectedRange string              `json:"expected_range"`
	ZScore        float64             `json:"z_score"`
	Direction     string              `json:"direction"` // "high" or "low"
	Severity      string              `json:"severity"`  // "low", "medium", "high"
}

// AnomalyResult is the outlier report for one patient.
type AnomalyResult struct {
	IsAnomaly         bool               `json:"is_anomaly"`
	Score             float64            `json:"anomaly_score"` // 0-1, higher is more anomalous
	AnomalousFeatures []AnomalousFeature `json:"anomalous_features"`
	TotalAnomalous    int                `json:"total_anomalous_features"`
	AlertLevel        string             `json:"alert_level"` // "none", "info", "warning", "critical"
}

// FeatureDrift holds one feature's shift relative to the training baseline.
type FeatureDrift struct {
	MeanShift float64 `json:"mean_shift"`
	StdRatio  float64 `json:"std_ratio"`
	Drifted   bool    `json:"drifted"`
}

// DriftReport summarizes distribution shift for a new feature batch.
type DriftReport struct {
	DriftDetected   bool                                 `json:"drift_detected"`
	DriftScore      float64                              `json:"drift_score"` // drifted fraction
	DriftedFeatures []patient.FeatureName                `json:"drifted_features"`
	Details         map[patient.FeatureName]FeatureDrift `json:"feature_drift_details"`
	Recommendation  string                               `json:"recommendation"`
}

// SurvivalPoint is one day of the Kaplan-Meier curve.
type SurvivalPoint struct {
	Day                 int     `json:"day"`
	SurvivalProbability float64 `json:"survival_probability"`
	AtRisk              int     `json:"at_risk"`
	Events              int     `json:"events"`
}

// SurvivalCurve is the cohort-level probability of remaining un-readmitted
// over time. Derived on demand, never stored.
type SurvivalCurve struct {
	Curve              []SurvivalPoint `json:"curve"`
	MedianSurvivalDays *int            `json:"median_survival_days"`
	TotalPatients      int             `json:"total_patients"`
	TotalEvents        int             `json:"total_events"`
	EventRate          float64         `json:"event_rate"`
}

// TrajectoryPoint is one historical risk score in a patient's timeline.
type TrajectoryPoint struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Trajectory describes how a patient's risk has moved over time.
type Trajectory struct {
	Trend         string            `json:"trend"`
	Velocity      float64           `json:"velocity"` // score change per step
	Acceleration  float64           `json:"acceleration"`
	RSquared      float64           `json:"r_squared"`
	CurrentScore  float64           `json:"current_score"`
	PreviousScore *float64          `json:"previous_score"`
	Change        float64           `json:"change"`
	Points        []TrajectoryPoint `json:"trajectory_points"`
	Projected7d   float64           `json:"projected_7d"`
	Projected30d  float64           `json:"projected_30d"`
}

// Velocity scores how quickly readmissions are recurring.
type Velocity struct {
	Score           float64 `json:"velocity_score"` // 0-100
	AvgDaysBetween  float64 `json:"avg_days_between"`
	RecentGapDays   float64 `json:"recent_gap_days"`
	TotalAdmissions int     `json:"total_admissions"`
	Accelerating    bool    `json:"accelerating"`
	Gaps            []int   `json:"gaps,omitempty"`
	RiskAmplifier   float64 `json:"risk_amplifier"`
}

// BucketCount is one bin of a seasonal histogram.
type BucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SeasonalPatterns bins admissions by month, hour and day of week.
type SeasonalPatterns struct {
	Monthly   []BucketCount `json:"monthly"`
	Hourly    []BucketCount `json:"hourly"`
	DayOfWeek []BucketCount `json:"day_of_week"`
	PeakMonth string        `json:"peak_month"`
	PeakHour  int           `json:"peak_hour"`
	PeakDay   string        `json:"peak_day"`
}

// SimilarPatient is one neighbor returned by the cohort similarity search.
type SimilarPatient struct {
	Similarity      float64  `json:"similarity"`
	PatientID       string   `json:"patient_id"`
	Age             float64  `json:"age"`
	RiskScore       float64  `json:"risk_score"`
	WasReadmitted   bool     `json:"was_readmitted"`
	ReadmissionDays *float64 `json:"readmission_days,omitempty"`
}

// NoteSignals is the structured result of scanning free-text clinical notes.
type NoteSignals struct {
	RiskScoreModifier  float64         `json:"risk_score_modifier"` // clipped to [-15, 25]
	RiskKeywords       []string        `json:"risk_keywords_found"`
	MediumRiskKeywords []string        `json:"medium_risk_keywords"`
	ProtectiveKeywords []string        `json:"protective_keywords_found"`
	Medications        []string        `json:"medications_mentioned"`
	SocialFactors      map[string]bool `json:"social_factors"`
	DischargeReadiness string          `json:"discharge_readiness"`
	ConcernLevel       string          `json:"concern_level"`
	Summary            string          `json:"summary"`
	Confidence         float64         `json:"nlp_confidence"`
}

// ModelMetrics are per-model cross-validation results.
type ModelMetrics struct {
	AUCMean       float64 `json:"auc_mean"`
	AUCStd        float64 `json:"auc_std"`
	PrecisionMean float64 `json:"precision_mean"`
	RecallMean    float64 `json:"recall_mean"`
}

// EnsembleMetrics are blended-model metrics on the training set.
type EnsembleMetrics struct {
	AUC              float64 `json:"auc"`
	BrierScore       float64 `json:"brier_score"`
	AveragePrecision float64 `json:"average_precision"`
}

// TrainingMetrics is the full metric bundle produced by a training run.
type TrainingMetrics struct {
	Models   map[string]ModelMetrics `json:"models"`
	Ensemble EnsembleMetrics         `json:"ensemble"`
}

// Assessment is the full per-patient report assembled by the orchestrator.
type Assessment struct {
	AssessmentID string           `json:"assessment_id"`
	PatientID    string           `json:"patient_id"`
	OverallScore float64          `json:"overall_score"` // ML score + note modifier, clipped 0-100
	RawMLScore   float64          `json:"raw_ml_score"`
	Level        Level            `json:"risk_level"`
	NoteModifier float64          `json:"nlp_modifier"`
	Prediction   Prediction       `json:"prediction"`
	Explanation  Explanation      `json:"explanation"`
	Anomaly      AnomalyResult    `json:"anomaly_detection"`
	Notes        NoteSignals      `json:"nlp_analysis"`
	Velocity     Velocity         `json:"readmission_velocity"`
	Similar      []SimilarPatient `json:"similar_patients"`
	Timestamp    time.Time        `json:"timestamp"`
}
