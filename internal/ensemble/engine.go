package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/config"
	"riskiq/internal/errors"
	"riskiq/internal/log"
)

const cvFolds = 5

// Engine trains and serves the five-model readmission ensemble. It starts
// untrained: scoring calls fail hard with CodeNotReady until Train (or a
// successful artifact Load) installs a fitted snapshot. The snapshot swap is
// atomic, so in-flight predictions always see one consistent model set.
type Engine struct {
	cfg        config.ModelConfig
	thresholds risk.Thresholds
	logger     *log.Logger

	trainMu sync.Mutex
	state   atomic.Pointer[fitted]
}

// fitted is one immutable trained snapshot.
type fitted struct {
	Scaler      *StandardScaler
	Models      map[string]Classifier
	Calibrators map[string]*IsotonicCalibrator

	// Raw-feature training distribution plus the training-set positive
	// rate, together the drift baseline.
	BaselineMeans      []float64
	BaselineStds       []float64
	BaselineTargetRate float64

	Importances map[patient.FeatureName]float64
	Metrics     risk.TrainingMetrics
	TrainedAt   time.Time
	Samples     int
}

// NewEngine builds an untrained engine from externally supplied constants.
func NewEngine(cfg config.ModelConfig, thresholds risk.Thresholds, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default
	}
	return &Engine{cfg: cfg, thresholds: thresholds, logger: logger}
}

// IsTrained reports whether a fitted snapshot is installed.
func (e *Engine) IsTrained() bool {
	return e.state.Load() != nil
}

// TrainedAt returns the snapshot's training time, zero when untrained.
func (e *Engine) TrainedAt() time.Time {
	if s := e.state.Load(); s != nil {
		return s.TrainedAt
	}
	return time.Time{}
}

// Train fits every model with stratified cross-validation, refits on the
// full data, cross-fits the calibrators, and atomically installs the new
// snapshot. The previous snapshot keeps serving until the swap.
func (e *Engine) Train(X [][]float64, y []float64) (*risk.TrainingMetrics, error) {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	if len(X) != len(y) {
		return nil, errors.InvalidInput("feature matrix and labels must be aligned")
	}
	if len(X) < e.cfg.MinTrainingSamples {
		return nil, errors.InvalidInput(fmt.Sprintf("training requires at least %d samples, got %d", e.cfg.MinTrainingSamples, len(X)))
	}
	if !hasBothClasses(y) {
		return nil, errors.InvalidInput("training data must contain both readmitted and non-readmitted outcomes")
	}

	start := time.Now()
	e.logger.Info("training ensemble: %d samples, %d features, %d models",
		len(X), len(X[0]), len(e.cfg.ModelNames))

	scaler := &StandardScaler{}
	scaled := scaler.FitTransform(X)

	snap := &fitted{
		Scaler:      scaler,
		Models:      make(map[string]Classifier, len(e.cfg.ModelNames)),
		Calibrators: make(map[string]*IsotonicCalibrator, len(e.cfg.ModelNames)),
		TrainedAt:   time.Now().UTC(),
		Samples:     len(X),
	}
	snap.BaselineMeans, snap.BaselineStds = columnMeanStd(X)
	snap.BaselineTargetRate = positiveRate(y)

	modelMetrics := make(map[string]risk.ModelMetrics, len(e.cfg.ModelNames))
	var mu sync.Mutex

	// Each model trains independently on its own seeded rng, so the fan-out
	// stays deterministic regardless of scheduling order.
	var g errgroup.Group
	for i, name := range e.cfg.ModelNames {
		i, name := i, name
		g.Go(func() error {
			rng := rand.New(rand.NewSource(e.cfg.TrainingSeed + int64(i)))

			metrics, err := e.crossValidate(name, scaled, y, rng)
			if err != nil {
				return errors.Wrap(err, "cross-validating "+name)
			}

			model := buildModels([]string{name})[name]
			if err := model.Fit(scaled, y, rng); err != nil {
				return errors.Wrap(err, "fitting "+name)
			}

			cal, err := fitCalibrator(func() Classifier {
				return buildModels([]string{name})[name]
			}, scaled, y, rand.New(rand.NewSource(e.cfg.TrainingSeed+int64(i)+1000)))
			if err != nil {
				return errors.Wrap(err, "calibrating "+name)
			}

			mu.Lock()
			snap.Models[name] = model
			snap.Calibrators[name] = cal
			modelMetrics[name] = metrics
			mu.Unlock()

			e.logger.Info("model %s fitted: cv auc %.3f ± %.3f", name, metrics.AUCMean, metrics.AUCStd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Importances = e.blendImportances(snap.Models)

	blended := e.blendProbs(snap, scaled)
	snap.Metrics = risk.TrainingMetrics{
		Models: modelMetrics,
		Ensemble: risk.EnsembleMetrics{
			AUC:              rocAUC(y, blended),
			BrierScore:       brierScore(y, blended),
			AveragePrecision: averagePrecision(y, blended),
		},
	}

	e.state.Store(snap)
	e.logger.Info("ensemble trained in %s: auc %.3f, brier %.3f",
		time.Since(start).Round(time.Millisecond), snap.Metrics.Ensemble.AUC, snap.Metrics.Ensemble.BrierScore)

	metrics := snap.Metrics
	return &metrics, nil
}

// crossValidate runs stratified k-fold CV for one model family.
func (e *Engine) crossValidate(name string, X [][]float64, y []float64, rng *rand.Rand) (risk.ModelMetrics, error) {
	folds := stratifiedKFold(y, cvFolds, rng)

	var aucs, precisions, recalls []float64
	for _, valIdx := range folds {
		inVal := make(map[int]bool, len(valIdx))
		for _, i := range valIdx {
			inVal[i] = true
		}
		var trX, vaX [][]float64
		var trY, vaY []float64
		for i := range y {
			if inVal[i] {
				vaX = append(vaX, X[i])
				vaY = append(vaY, y[i])
			} else {
				trX = append(trX, X[i])
				trY = append(trY, y[i])
			}
		}
		if len(trX) == 0 || len(vaX) == 0 || !hasBothClasses(trY) {
			continue
		}

		model := buildModels([]string{name})[name]
		if err := model.Fit(trX, trY, rng); err != nil {
			return risk.ModelMetrics{}, err
		}
		probs := model.PredictProba(vaX)

		aucs = append(aucs, rocAUC(vaY, probs))
		p, r := precisionRecall(vaY, probs)
		precisions = append(precisions, p)
		recalls = append(recalls, r)
	}

	if len(aucs) == 0 {
		return risk.ModelMetrics{}, errors.InvalidInput("no usable cross-validation folds for " + name)
	}

	aucMean, aucStd := meanStd(aucs)
	pMean, _ := meanStd(precisions)
	rMean, _ := meanStd(recalls)
	return risk.ModelMetrics{AUCMean: aucMean, AUCStd: aucStd, PrecisionMean: pMean, RecallMean: rMean}, nil
}

// blendProbs runs every calibrated model over scaled rows and blends by the
// configured weights, renormalized over the models actually present.
func (e *Engine) blendProbs(snap *fitted, scaled [][]float64) []float64 {
	out := make([]float64, len(scaled))
	var totalW float64
	for i, name := range e.cfg.ModelNames {
		model, ok := snap.Models[name]
		if !ok {
			continue
		}
		w := e.cfg.BlendWeights[i]
		totalW += w
		probs := snap.Calibrators[name].TransformAll(model.PredictProba(scaled))
		for j, p := range probs {
			out[j] += w * p
		}
	}
	if totalW > 0 {
		for j := range out {
			out[j] = clip(out[j]/totalW, 0, 1)
		}
	}
	return out
}

// blendImportances averages native tree importances weighted by blend
// weight, normalized to sum to 1.
func (e *Engine) blendImportances(models map[string]Classifier) map[patient.FeatureName]float64 {
	agg := make([]float64, len(patient.FeatureNames))
	var total float64
	for i, name := range e.cfg.ModelNames {
		provider, ok := models[name].(importanceProvider)
		if !ok {
			continue
		}
		w := e.cfg.BlendWeights[i]
		for f, v := range provider.FeatureImportances() {
			if f < len(agg) {
				agg[f] += w * v
				total += w * v
			}
		}
	}
	out := make(map[patient.FeatureName]float64, len(agg))
	for f, v := range agg {
		if total > 0 {
			v /= total
		}
		out[patient.FeatureNames[f]] = v
	}
	return out
}

// PredictProba returns blended calibrated probabilities for raw feature rows.
func (e *Engine) PredictProba(rows [][]float64) ([]float64, error) {
	snap := e.state.Load()
	if snap == nil {
		return nil, errors.NotReady("ensemble")
	}
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = snap.Scaler.TransformRow(row)
	}
	return e.blendProbs(snap, scaled), nil
}

// PredictMultiHorizon expands a 30-day probability into the fixed prediction
// windows. Each horizon factor scales the base probability, which is then
// squashed through a steep sigmoid centered at 0.5 to keep short horizons
// from collapsing to zero and long ones from saturating.
func (e *Engine) PredictMultiHorizon(p float64) map[risk.Horizon]float64 {
	out := make(map[risk.Horizon]float64, len(risk.Horizons))
	for _, h := range risk.Horizons {
		factor, ok := e.cfg.HorizonFactors[string(h)]
		if !ok {
			factor = 1.0
		}
		scaled := clip(p*factor, 0, 1)
		squashed := 1.0 / (1.0 + math.Exp(-5*(scaled-0.5)))
		out[h] = clip(squashed, 0.01, 0.99)
	}
	return out
}

// PredictSingle scores one raw feature row and assembles the full
// per-patient prediction: blended score, tier, model agreement and the
// per-horizon expansion, all on the 0-100 scale.
func (e *Engine) PredictSingle(row []float64) (*risk.Prediction, error) {
	snap := e.state.Load()
	if snap == nil {
		return nil, errors.NotReady("ensemble")
	}

	scaled := snap.Scaler.TransformRow(row)
	batch := [][]float64{scaled}

	breakdown := make(map[string]float64, len(e.cfg.ModelNames))
	var modelProbs []float64
	blended, totalW := 0.0, 0.0
	for i, name := range e.cfg.ModelNames {
		model, ok := snap.Models[name]
		if !ok {
			continue
		}
		p := snap.Calibrators[name].Transform(model.PredictProba(batch)[0])
		p = clip(p, 0, 1)
		modelProbs = append(modelProbs, p)
		breakdown[name] = math.Round(p*10000) / 100

		w := e.cfg.BlendWeights[i]
		blended += w * p
		totalW += w
	}
	if totalW > 0 {
		blended = clip(blended/totalW, 0, 1)
	}

	// Confidence is model agreement: tight ensembles score high.
	_, std := meanStd(modelProbs)
	confidence := clip(1-std, 0, 1) * 100

	horizons := make(map[risk.Horizon]float64, len(risk.Horizons))
	for h, p := range e.PredictMultiHorizon(blended) {
		horizons[h] = math.Round(p*10000) / 100
	}

	score := math.Round(blended*10000) / 100
	return &risk.Prediction{
		Score:          score,
		Level:          e.thresholds.LevelFor(score),
		Confidence:     math.Round(confidence*100) / 100,
		Horizons:       horizons,
		ModelBreakdown: breakdown,
	}, nil
}

// Drift detection constants. A feature drifts when its mean moved more than
// two baseline standard deviations or its spread halved or doubled.
const (
	driftMeanShiftThreshold = 2.0
	driftStdRatioLow        = 0.5
	driftStdRatioHigh       = 2.0
	driftDetectedFraction   = 0.2
	driftMonitorFraction    = 0.1
	driftRetrainFraction    = 0.3
)

// DetectDrift compares a new raw feature batch against the training
// baseline and recommends an action tier.
func (e *Engine) DetectDrift(rows [][]float64) (*risk.DriftReport, error) {
	snap := e.state.Load()
	if snap == nil {
		return nil, errors.NotReady("ensemble")
	}
	if len(rows) == 0 {
		return nil, errors.InvalidInput("drift detection requires at least one row")
	}

	curMeans, curStds := columnMeanStd(rows)

	report := &risk.DriftReport{
		Details: make(map[patient.FeatureName]risk.FeatureDrift, len(snap.BaselineMeans)),
	}
	drifted := 0
	for f := range snap.BaselineMeans {
		baseStd := math.Max(snap.BaselineStds[f], 0.001)
		meanShift := math.Abs(curMeans[f]-snap.BaselineMeans[f]) / baseStd

		stdRatio := 1.0
		if snap.BaselineStds[f] > 0 {
			stdRatio = curStds[f] / snap.BaselineStds[f]
		}

		fd := risk.FeatureDrift{
			MeanShift: math.Round(meanShift*1000) / 1000,
			StdRatio:  math.Round(stdRatio*1000) / 1000,
			Drifted:   meanShift > driftMeanShiftThreshold || stdRatio < driftStdRatioLow || stdRatio > driftStdRatioHigh,
		}
		name := patient.FeatureNames[f]
		report.Details[name] = fd
		if fd.Drifted {
			drifted++
			report.DriftedFeatures = append(report.DriftedFeatures, name)
		}
	}

	fraction := float64(drifted) / float64(len(snap.BaselineMeans))
	report.DriftScore = math.Round(fraction*1000) / 1000
	report.DriftDetected = fraction > driftDetectedFraction

	switch {
	case fraction > driftRetrainFraction:
		report.Recommendation = "RETRAIN"
	case fraction > driftMonitorFraction:
		report.Recommendation = "MONITOR"
	default:
		report.Recommendation = "STABLE"
	}
	return report, nil
}

// Importances returns the blended global feature importances.
func (e *Engine) Importances() (map[patient.FeatureName]float64, error) {
	snap := e.state.Load()
	if snap == nil {
		return nil, errors.NotReady("ensemble")
	}
	out := make(map[patient.FeatureName]float64, len(snap.Importances))
	for k, v := range snap.Importances {
		out[k] = v
	}
	return out, nil
}

// Metrics returns the snapshot's training metrics.
func (e *Engine) Metrics() (*risk.TrainingMetrics, error) {
	snap := e.state.Load()
	if snap == nil {
		return nil, errors.NotReady("ensemble")
	}
	m := snap.Metrics
	return &m, nil
}

// positiveRate is the fraction of positive labels in y.
func positiveRate(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var pos int
	for _, v := range y {
		if v >= 0.5 {
			pos++
		}
	}
	return float64(pos) / float64(len(y))
}

func hasBothClasses(y []float64) bool {
	var pos, neg bool
	for _, v := range y {
		if v >= 0.5 {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}

// columnMeanStd computes per-column mean and population std of a raw matrix.
func columnMeanStd(rows [][]float64) ([]float64, []float64) {
	if len(rows) == 0 {
		return nil, nil
	}
	n := len(rows[0])
	means := make([]float64, n)
	stds := make([]float64, n)
	col := make([]float64, len(rows))
	for f := 0; f < n; f++ {
		for i, row := range rows {
			col[i] = row[f]
		}
		means[f], stds[f] = meanStd(col)
	}
	return means, stds
}
