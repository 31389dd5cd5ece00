// Package anomaly flags patient profiles that sit outside the cohort the
// models were trained on: multivariate outliers via an isolation forest,
// plus per-feature range checks against the training distribution.
package anomaly

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/errors"
	"riskiq/internal/log"
)

type featureStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Median float64 `json:"median"`
}

// Detector is fitted once on the training cohort. Before fitting, Detect
// soft-fails to a clean "no anomaly" result rather than erroring, so the
// assessment pipeline keeps working on a fresh deployment.
type Detector struct {
	logger *log.Logger

	nEstimators   int
	maxFeatures   float64
	contamination float64
	seed          int64

	mu     sync.RWMutex
	forest *isolationForest
	stats  []featureStats
	fitted bool
}

// NewDetector builds an unfitted detector. Contamination is the expected
// outlier fraction in the training cohort.
func NewDetector(contamination float64, seed int64, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Default
	}
	return &Detector{
		logger:        logger,
		nEstimators:   200,
		maxFeatures:   0.8,
		contamination: contamination,
		seed:          seed,
	}
}

// Fit trains the isolation forest and captures per-feature distribution
// statistics for the univariate checks.
func (d *Detector) Fit(rows [][]float64) error {
	if len(rows) < 2 {
		return errors.InvalidInput("anomaly detector requires at least two rows")
	}

	forest := newIsolationForest(d.nEstimators, d.maxFeatures, d.contamination)
	forest.fit(rows, rand.New(rand.NewSource(d.seed)))

	nFeatures := len(rows[0])
	fs := make([]featureStats, nFeatures)
	col := make([]float64, len(rows))
	for f := 0; f < nFeatures; f++ {
		for i, row := range rows {
			col[i] = row[f]
		}
		mean, _ := stats.Mean(col)
		std, _ := stats.StandardDeviationSample(col)
		median, _ := stats.Median(col)
		quartiles, _ := stats.Quartile(col)
		fs[f] = featureStats{Mean: mean, Std: std, Q1: quartiles.Q1, Q3: quartiles.Q3, Median: median}
	}

	d.mu.Lock()
	d.forest = forest
	d.stats = fs
	d.fitted = true
	d.mu.Unlock()

	d.logger.Info("anomaly detector fitted on %d samples, %d features", len(rows), nFeatures)
	return nil
}

// Fitted reports whether Fit has run.
func (d *Detector) Fitted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fitted
}

// Detect scores one raw feature row. An unfitted detector returns the
// zero-anomaly result.
func (d *Detector) Detect(row []float64) risk.AnomalyResult {
	d.mu.RLock()
	forest := d.forest
	fs := d.stats
	fitted := d.fitted
	d.mu.RUnlock()

	if !fitted {
		return risk.AnomalyResult{AlertLevel: "none"}
	}

	raw := forest.decisionFunction(row)
	score := math.Max(0, math.Min(1, 0.5-raw))

	var flagged []risk.AnomalousFeature
	for f, st := range fs {
		if f >= len(row) {
			break
		}
		iqr := st.Q3 - st.Q1
		if iqr <= 0 {
			continue
		}
		val := row[f]
		zScore := math.Abs(val-st.Mean) / math.Max(st.Std, 0.001)
		isOutlier := val < st.Q1-2.0*iqr || val > st.Q3+2.0*iqr
		if !isOutlier && zScore <= 2.5 {
			continue
		}

		direction := "low"
		if val > st.Mean {
			direction = "high"
		}
		severity := "low"
		switch {
		case zScore > 3.5:
			severity = "high"
		case zScore > 2.5:
			severity = "medium"
		}
		flagged = append(flagged, risk.AnomalousFeature{
			Feature:       patient.FeatureNames[f],
			Value:         math.Round(val*100) / 100,
			ExpectedRange: formatRange(st.Q1, st.Q3),
			ZScore:        math.Round(zScore*100) / 100,
			Direction:     direction,
			Severity:      severity,
		})
	}
	sort.SliceStable(flagged, func(a, b int) bool { return flagged[a].ZScore > flagged[b].ZScore })

	total := len(flagged)
	if len(flagged) > 10 {
		flagged = flagged[:10]
	}

	return risk.AnomalyResult{
		IsAnomaly:         raw < 0,
		Score:             math.Round(score*1000) / 1000,
		AnomalousFeatures: flagged,
		TotalAnomalous:    total,
		AlertLevel:        alertLevel(score),
	}
}

// BatchDetect scores each row independently.
func (d *Detector) BatchDetect(rows [][]float64) []risk.AnomalyResult {
	out := make([]risk.AnomalyResult, len(rows))
	for i, row := range rows {
		out[i] = d.Detect(row)
	}
	return out
}

func alertLevel(score float64) string {
	switch {
	case score > 0.8:
		return "critical"
	case score > 0.5:
		return "warning"
	case score > 0.3:
		return "info"
	default:
		return "none"
	}
}

func formatRange(q1, q3 float64) string {
	return fmt.Sprintf("%.2f - %.2f", q1, q3)
}
