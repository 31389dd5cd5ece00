package ensemble

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskiq/domain/risk"
	"riskiq/internal/config"
	"riskiq/internal/errors"
)

// testModelConfig keeps the unit-test ensemble to two fast tree families.
func testModelConfig() config.ModelConfig {
	return config.ModelConfig{
		ModelNames:         []string{"gradient_boosting", "random_forest"},
		BlendWeights:       []float64{0.6, 0.4},
		HorizonFactors:     map[string]float64{"24h": 0.25, "72h": 0.55, "7d": 1.0, "30d": 1.45},
		MinTrainingSamples: 20,
		TrainingSeed:       42,
	}
}

// syntheticCohort generates separable data: the first feature tracks the
// label, the rest is noise.
func syntheticCohort(n, features int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		label := 0.0
		if rng.Float64() < 0.35 {
			label = 1.0
		}
		row := make([]float64, features)
		row[0] = label*2 + rng.NormFloat64()*0.4
		for f := 1; f < features; f++ {
			row[f] = rng.NormFloat64()
		}
		X[i] = row
		y[i] = label
	}
	return X, y
}

func newTestEngine() *Engine {
	return NewEngine(testModelConfig(), risk.DefaultThresholds(), nil)
}

func TestUntrainedEngineRefusesToScore(t *testing.T) {
	e := newTestEngine()
	assert.False(t, e.IsTrained())

	_, err := e.PredictSingle(make([]float64, 5))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotReady))

	_, err = e.PredictProba([][]float64{make([]float64, 5)})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotReady))

	_, err = e.DetectDrift([][]float64{make([]float64, 5)})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotReady))
}

func TestTrainRejectsSmallOrDegenerateCohorts(t *testing.T) {
	e := newTestEngine()

	X, y := syntheticCohort(10, 5, 1)
	_, err := e.Train(X, y)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	// Enough rows but only one class.
	X, _ = syntheticCohort(40, 5, 1)
	flat := make([]float64, len(X))
	_, err = e.Train(X, flat)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestTrainProducesUsableEnsemble(t *testing.T) {
	e := newTestEngine()
	X, y := syntheticCohort(80, 6, 42)

	metrics, err := e.Train(X, y)
	require.NoError(t, err)
	require.True(t, e.IsTrained())
	assert.False(t, e.TrainedAt().IsZero())

	require.Len(t, metrics.Models, 2)
	for name, m := range metrics.Models {
		assert.Greater(t, m.AUCMean, 0.5, "model %s should beat chance on separable data", name)
	}
	assert.Greater(t, metrics.Ensemble.AUC, 0.8)
	assert.Less(t, metrics.Ensemble.BrierScore, 0.25)

	// The informative feature dominates the blended importances.
	imps, err := e.Importances()
	require.NoError(t, err)
	var total, best float64
	for _, v := range imps {
		total += v
		if v > best {
			best = v
		}
	}
	assert.InDelta(t, 1.0, total, 1e-6)
	assert.Greater(t, best, 0.3)
}

func TestPredictSingleSeparatesRiskProfiles(t *testing.T) {
	e := newTestEngine()
	X, y := syntheticCohort(80, 6, 42)
	_, err := e.Train(X, y)
	require.NoError(t, err)

	highRisk, err := e.PredictSingle([]float64{2.0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	lowRisk, err := e.PredictSingle([]float64{0.0, 0, 0, 0, 0, 0})
	require.NoError(t, err)

	assert.Greater(t, highRisk.Score, lowRisk.Score)
	for _, p := range []*risk.Prediction{highRisk, lowRisk} {
		assert.GreaterOrEqual(t, p.Score, 0.0)
		assert.LessOrEqual(t, p.Score, 100.0)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 100.0)
		assert.Len(t, p.Horizons, 4)
		assert.Len(t, p.ModelBreakdown, 2)
		assert.Equal(t, risk.DefaultThresholds().LevelFor(p.Score), p.Level)
	}
}

func TestMultiHorizonOrderingAndBounds(t *testing.T) {
	e := newTestEngine()

	for _, base := range []float64{0.05, 0.3, 0.5, 0.8, 0.99} {
		horizons := e.PredictMultiHorizon(base)
		require.Len(t, horizons, 4)

		// Factors increase with the window, and the squash is monotone, so
		// risk accumulates across horizons.
		assert.LessOrEqual(t, horizons[risk.Horizon24h], horizons[risk.Horizon72h])
		assert.LessOrEqual(t, horizons[risk.Horizon72h], horizons[risk.Horizon7d])
		assert.LessOrEqual(t, horizons[risk.Horizon7d], horizons[risk.Horizon30d])

		for h, p := range horizons {
			assert.GreaterOrEqual(t, p, 0.01, "horizon %s", h)
			assert.LessOrEqual(t, p, 0.99, "horizon %s", h)
		}
	}
}

func TestTrainingIsDeterministic(t *testing.T) {
	X, y := syntheticCohort(60, 5, 42)
	probe := [][]float64{{1.5, 0, 0, 0, 0}, {-0.5, 1, 0, 0, 0}}

	e1 := newTestEngine()
	_, err := e1.Train(X, y)
	require.NoError(t, err)
	p1, err := e1.PredictProba(probe)
	require.NoError(t, err)

	e2 := newTestEngine()
	_, err = e2.Train(X, y)
	require.NoError(t, err)
	p2, err := e2.PredictProba(probe)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
}

func TestDriftSelfBaselineIsStable(t *testing.T) {
	e := newTestEngine()
	X, y := syntheticCohort(60, 5, 42)
	_, err := e.Train(X, y)
	require.NoError(t, err)

	report, err := e.DetectDrift(X)
	require.NoError(t, err)
	assert.False(t, report.DriftDetected)
	assert.Zero(t, report.DriftScore)
	assert.Empty(t, report.DriftedFeatures)
	assert.Equal(t, "STABLE", report.Recommendation)
}

func TestDriftDetectsShiftedBatch(t *testing.T) {
	e := newTestEngine()
	X, y := syntheticCohort(60, 5, 42)
	_, err := e.Train(X, y)
	require.NoError(t, err)

	shifted := make([][]float64, len(X))
	for i, row := range X {
		out := make([]float64, len(row))
		for f, v := range row {
			out[f] = v + 50
		}
		shifted[i] = out
	}

	report, err := e.DetectDrift(shifted)
	require.NoError(t, err)
	assert.True(t, report.DriftDetected)
	assert.Equal(t, "RETRAIN", report.Recommendation)
	assert.Len(t, report.DriftedFeatures, 5)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine()
	X, y := syntheticCohort(60, 5, 42)
	_, err := e.Train(X, y)
	require.NoError(t, err)

	probe := [][]float64{{1.8, 0, 0, 0, 0}, {0.1, -1, 0, 0, 0}}
	want, err := e.PredictProba(probe)
	require.NoError(t, err)

	require.NoError(t, e.Save(dir))

	restored := newTestEngine()
	require.True(t, restored.Load(dir))
	got, err := restored.PredictProba(probe)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-9)

	// Drift baseline survives the round trip too, including the
	// training-set positive rate.
	report, err := restored.DetectDrift(X)
	require.NoError(t, err)
	assert.Equal(t, "STABLE", report.Recommendation)

	var meta metadata
	require.NoError(t, readJSON(filepath.Join(dir, metadataFile), &meta))
	assert.Greater(t, meta.BaselineTargetRate, 0.0)
	assert.InDelta(t, positiveRate(y), meta.BaselineTargetRate, 1e-9)
	assert.InDelta(t, meta.BaselineTargetRate, restored.state.Load().BaselineTargetRate, 1e-9)
}

func TestLoadFromEmptyDirStaysUntrained(t *testing.T) {
	e := newTestEngine()
	assert.False(t, e.Load(t.TempDir()))
	assert.False(t, e.IsTrained())
}

func TestSaveUntrainedFails(t *testing.T) {
	e := newTestEngine()
	err := e.Save(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotReady))
}

func TestMLPLearnsSeparableData(t *testing.T) {
	X, y := syntheticCohort(60, 4, 7)

	mlp := &MLPClassifier{
		HiddenLayers:       []int{16, 8},
		LearningRate:       0.01,
		L2Alpha:            0.0001,
		BatchSize:          16,
		MaxIter:            200,
		EarlyStopping:      true,
		ValidationFraction: 0.15,
		NIterNoChange:      20,
	}
	rng := rand.New(rand.NewSource(3))
	require.NoError(t, mlp.Fit(X, y, rng))

	probs := mlp.PredictProba(X)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.Greater(t, rocAUC(y, probs), 0.7)
}

func TestBoostedTreesBeatChance(t *testing.T) {
	X, y := syntheticCohort(80, 5, 11)

	gbt := &GradientBoostedTrees{
		NEstimators:    60,
		MaxDepth:       3,
		LearningRate:   0.1,
		Subsample:      0.8,
		MinSamplesLeaf: 2,
		PositiveWeight: 1,
	}
	require.NoError(t, gbt.Fit(X, y, rand.New(rand.NewSource(5))))

	probs := gbt.PredictProba(X)
	assert.Greater(t, rocAUC(y, probs), 0.85)

	imps := gbt.FeatureImportances()
	require.Len(t, imps, 5)
	assert.Greater(t, imps[0], 0.3, "informative feature should dominate")
}

func TestRandomForestBeatChance(t *testing.T) {
	X, y := syntheticCohort(80, 5, 13)

	rf := &RandomForest{
		NEstimators:     50,
		MaxDepth:        6,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		BalanceClasses:  true,
	}
	require.NoError(t, rf.Fit(X, y, rand.New(rand.NewSource(5))))

	probs := rf.PredictProba(X)
	assert.Greater(t, rocAUC(y, probs), 0.85)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}
