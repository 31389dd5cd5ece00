package ensemble

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/errors"
)

// Artifact layout under the model directory: one file per fitted model, one
// per calibrator, plus the scaler and a metadata bundle. Everything is plain
// JSON so artifacts survive version bumps and can be inspected by hand.
const (
	scalerFile   = "scaler.json"
	metadataFile = "metadata.json"
)

type modelEnvelope struct {
	Kind  string          `json:"kind"` // "gbt" or "forest" or "mlp"
	Model json.RawMessage `json:"model"`
}

type metadata struct {
	TrainedAt          time.Time                       `json:"trained_at"`
	Samples            int                             `json:"samples"`
	FeatureNames       []patient.FeatureName           `json:"feature_names"`
	BaselineMeans      []float64                       `json:"baseline_means"`
	BaselineStds       []float64                       `json:"baseline_stds"`
	BaselineTargetRate float64                         `json:"baseline_target_rate"`
	Importances        map[patient.FeatureName]float64 `json:"importances"`
	Metrics            risk.TrainingMetrics            `json:"metrics"`
}

// Save writes the current snapshot's artifacts to dir, creating it if
// needed. Fails when the engine is untrained.
func (e *Engine) Save(dir string) error {
	snap := e.state.Load()
	if snap == nil {
		return errors.NotReady("ensemble")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating model directory")
	}

	for name, model := range snap.Models {
		env := modelEnvelope{Kind: modelKind(model)}
		raw, err := json.Marshal(model)
		if err != nil {
			return errors.Wrap(err, "encoding model "+name)
		}
		env.Model = raw
		if err := writeJSON(filepath.Join(dir, "model_"+name+".json"), env); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(dir, "calibrator_"+name+".json"), snap.Calibrators[name]); err != nil {
			return err
		}
	}

	if err := writeJSON(filepath.Join(dir, scalerFile), snap.Scaler); err != nil {
		return err
	}
	meta := metadata{
		TrainedAt:          snap.TrainedAt,
		Samples:            snap.Samples,
		FeatureNames:       patient.FeatureNames,
		BaselineMeans:      snap.BaselineMeans,
		BaselineStds:       snap.BaselineStds,
		BaselineTargetRate: snap.BaselineTargetRate,
		Importances:        snap.Importances,
		Metrics:            snap.Metrics,
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return err
	}

	e.logger.Info("saved %d model artifacts to %s", len(snap.Models), dir)
	return nil
}

// Load restores a snapshot from dir. Missing or unreadable artifacts are a
// soft failure: the engine logs and stays untrained, returning false. A
// feature-set mismatch between artifacts and the current schema also
// refuses the load, since scoring would silently misalign columns.
func (e *Engine) Load(dir string) bool {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	var meta metadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		e.logger.Warn("no model artifacts at %s: %v", dir, err)
		return false
	}
	if len(meta.FeatureNames) != len(patient.FeatureNames) {
		e.logger.Warn("model artifacts at %s were trained on %d features, current schema has %d; ignoring",
			dir, len(meta.FeatureNames), len(patient.FeatureNames))
		return false
	}

	scaler := &StandardScaler{}
	if err := readJSON(filepath.Join(dir, scalerFile), scaler); err != nil {
		e.logger.Warn("unreadable scaler artifact: %v", err)
		return false
	}

	snap := &fitted{
		Scaler:             scaler,
		Models:             make(map[string]Classifier, len(e.cfg.ModelNames)),
		Calibrators:        make(map[string]*IsotonicCalibrator, len(e.cfg.ModelNames)),
		BaselineMeans:      meta.BaselineMeans,
		BaselineStds:       meta.BaselineStds,
		BaselineTargetRate: meta.BaselineTargetRate,
		Importances:        meta.Importances,
		Metrics:            meta.Metrics,
		TrainedAt:          meta.TrainedAt,
		Samples:            meta.Samples,
	}

	for _, name := range e.cfg.ModelNames {
		var env modelEnvelope
		if err := readJSON(filepath.Join(dir, "model_"+name+".json"), &env); err != nil {
			e.logger.Warn("unreadable artifact for model %s: %v", name, err)
			return false
		}
		model, err := decodeModel(env)
		if err != nil {
			e.logger.Warn("decoding model %s: %v", name, err)
			return false
		}
		cal := &IsotonicCalibrator{}
		if err := readJSON(filepath.Join(dir, "calibrator_"+name+".json"), cal); err != nil {
			e.logger.Warn("unreadable calibrator for model %s: %v", name, err)
			return false
		}
		snap.Models[name] = model
		snap.Calibrators[name] = cal
	}

	e.state.Store(snap)
	e.logger.Info("loaded %d models from %s (trained %s, %d samples)",
		len(snap.Models), dir, meta.TrainedAt.Format(time.RFC3339), meta.Samples)
	return true
}

func modelKind(m Classifier) string {
	switch m.(type) {
	case *GradientBoostedTrees:
		return "gbt"
	case *RandomForest:
		return "forest"
	case *MLPClassifier:
		return "mlp"
	default:
		return "unknown"
	}
}

func decodeModel(env modelEnvelope) (Classifier, error) {
	var model Classifier
	switch env.Kind {
	case "gbt":
		model = &GradientBoostedTrees{}
	case "forest":
		model = &RandomForest{}
	case "mlp":
		model = &MLPClassifier{}
	default:
		return nil, errors.InvalidInput("unknown model kind " + env.Kind)
	}
	if err := json.Unmarshal(env.Model, model); err != nil {
		return nil, err
	}
	return model, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding "+filepath.Base(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "writing "+filepath.Base(path))
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
