package ensemble

import (
	"math"
	"math/rand"

	"riskiq/internal/errors"
)

// RandomForest is a bagged ensemble of probability trees: each tree is
// grown on a bootstrap sample with sqrt-feature subsampling, and the forest
// prediction is the mean of per-tree leaf probabilities.
type RandomForest struct {
	NEstimators     int  `json:"n_estimators"`
	MaxDepth        int  `json:"max_depth"`
	MinSamplesSplit int  `json:"min_samples_split"`
	MinSamplesLeaf  int  `json:"min_samples_leaf"`
	BalanceClasses  bool `json:"balance_classes"`

	Trees []*decisionTree `json:"trees"`

	nFeatures int
}

// Fit grows the forest. Bootstrap draws come from rng so a fixed seed
// reproduces the exact forest.
func (f *RandomForest) Fit(X [][]float64, y []float64, rng *rand.Rand) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.InvalidInput("training matrix and labels must be non-empty and aligned")
	}
	f.nFeatures = len(X[0])
	f.Trees = f.Trees[:0]

	weights := make([]float64, len(y))
	posW, negW := 1.0, 1.0
	if f.BalanceClasses {
		var nPos float64
		for _, v := range y {
			if v >= 0.5 {
				nPos++
			}
		}
		nNeg := float64(len(y)) - nPos
		if nPos > 0 && nNeg > 0 {
			n := float64(len(y))
			posW = n / (2 * nPos)
			negW = n / (2 * nNeg)
		}
	}
	for i, v := range y {
		if v >= 0.5 {
			weights[i] = posW
		} else {
			weights[i] = negW
		}
	}

	cfg := treeConfig{
		MaxDepth:        f.MaxDepth,
		MinSamplesSplit: f.MinSamplesSplit,
		MinSamplesLeaf:  f.MinSamplesLeaf,
		MaxFeatures:     int(math.Max(1, math.Sqrt(float64(f.nFeatures)))),
	}

	n := len(y)
	for m := 0; m < f.NEstimators; m++ {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = rng.Intn(n)
		}
		f.Trees = append(f.Trees, fitTree(X, y, weights, indices, cfg, rng))
	}
	return nil
}

// PredictProba averages per-tree leaf probabilities.
func (f *RandomForest) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(f.Trees) == 0 {
		return out
	}
	for i, row := range X {
		sum := 0.0
		for _, tree := range f.Trees {
			sum += tree.predictRow(row)
		}
		out[i] = clip(sum/float64(len(f.Trees)), 0, 1)
	}
	return out
}

// FeatureImportances aggregates impurity decrease over all trees,
// normalized to sum to 1.
func (f *RandomForest) FeatureImportances() []float64 {
	n := f.nFeatures
	if n == 0 {
		for _, t := range f.Trees {
			if len(t.Importances) > 0 {
				n = len(t.Importances)
				break
			}
		}
	}
	return aggregateTreeImportances(f.Trees, n)
}
