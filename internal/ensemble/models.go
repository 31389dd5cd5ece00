package ensemble

import (
	"math/rand"
)

// Classifier is a binary probabilistic classifier over feature matrices.
// Implementations are fitted once and then read-only.
type Classifier interface {
	Fit(X [][]float64, y []float64, rng *rand.Rand) error
	PredictProba(X [][]float64) []float64
}

// importanceProvider is implemented by the tree-based models; native
// importances feed the ensemble-level aggregation.
type importanceProvider interface {
	FeatureImportances() []float64
}

// scalePosWeight compensates the readmitted/not-readmitted class imbalance
// in the boosted models, matching the roughly 18% positive base rate.
const scalePosWeight = 4.5

// buildModels constructs the five-model set with its fixed hyperparameters.
// The algorithm families are fixed; only blend weights and thresholds are
// externally configurable.
func buildModels(names []string) map[string]Classifier {
	models := make(map[string]Classifier, len(names))
	for _, name := range names {
		switch name {
		case "gbrt_a":
			models[name] = &GradientBoostedTrees{
				NEstimators:    500,
				MaxDepth:       6,
				LearningRate:   0.05,
				Subsample:      0.8,
				ColsampleRatio: 0.8,
				MinSamplesLeaf: 3,
				PositiveWeight: scalePosWeight,
			}
		case "gbrt_b":
			models[name] = &GradientBoostedTrees{
				NEstimators:    500,
				MaxDepth:       7,
				LearningRate:   0.05,
				Subsample:      0.8,
				ColsampleRatio: 0.8,
				MinSamplesLeaf: 5,
				PositiveWeight: scalePosWeight,
			}
		case "random_forest":
			models[name] = &RandomForest{
				NEstimators:     400,
				MaxDepth:        12,
				MinSamplesSplit: 5,
				MinSamplesLeaf:  3,
				BalanceClasses:  true,
			}
		case "gradient_boosting":
			models[name] = &GradientBoostedTrees{
				NEstimators:     300,
				MaxDepth:        5,
				LearningRate:    0.05,
				Subsample:       0.8,
				MinSamplesSplit: 5,
				MinSamplesLeaf:  3,
				SqrtFeatures:    true,
				PositiveWeight:  1.0,
			}
		case "neural_network":
			models[name] = &MLPClassifier{
				HiddenLayers:       []int{256, 128, 64, 32},
				LearningRate:       0.001,
				L2Alpha:            0.001,
				BatchSize:          64,
				MaxIter:            500,
				EarlyStopping:      true,
				ValidationFraction: 0.15,
				NIterNoChange:      20,
			}
		}
	}
	return models
}
