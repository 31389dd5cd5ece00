package ensemble

import (
	"math"
	"math/rand"

	"riskiq/internal/errors"
)

// GradientBoostedTrees fits an additive model of regression trees on the
// logistic loss. Each round fits a tree to the probability residuals and
// replaces leaf values with a Newton step, shrunk by the learning rate.
type GradientBoostedTrees struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	Subsample       float64 `json:"subsample"`
	ColsampleRatio  float64 `json:"colsample_ratio"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	SqrtFeatures    bool    `json:"sqrt_features"`
	PositiveWeight  float64 `json:"positive_weight"`

	BaseScore float64         `json:"base_score"` // log-odds prior
	Trees     []*decisionTree `json:"trees"`

	nFeatures int
}

// Fit trains the boosted model. The rng drives row/column subsampling; a
// fixed seed reproduces the exact model.
func (g *GradientBoostedTrees) Fit(X [][]float64, y []float64, rng *rand.Rand) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.InvalidInput("training matrix and labels must be non-empty and aligned")
	}
	g.nFeatures = len(X[0])
	g.Trees = g.Trees[:0]

	weights := make([]float64, len(y))
	posW := g.PositiveWeight
	if posW <= 0 {
		posW = 1
	}
	var sumW, sumWY float64
	for i, label := range y {
		w := 1.0
		if label >= 0.5 {
			w = posW
		}
		weights[i] = w
		sumW += w
		sumWY += w * label
	}

	// Weighted prior, clamped away from degenerate log-odds.
	prior := clip(sumWY/sumW, 1e-4, 1-1e-4)
	g.BaseScore = math.Log(prior / (1 - prior))

	score := make([]float64, len(y))
	for i := range score {
		score[i] = g.BaseScore
	}

	minSplit := g.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	minLeaf := g.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	cfg := treeConfig{
		MaxDepth:        g.MaxDepth,
		MinSamplesSplit: minSplit,
		MinSamplesLeaf:  minLeaf,
		MaxFeatures:     g.maxFeatures(),
	}

	residual := make([]float64, len(y))
	prob := make([]float64, len(y))

	for m := 0; m < g.NEstimators; m++ {
		for i := range y {
			prob[i] = sigmoid(score[i])
			residual[i] = y[i] - prob[i]
		}

		indices := g.sampleRows(len(y), rng)
		tree := fitTree(X, residual, weights, indices, cfg, rng)
		g.newtonLeaves(tree, X, residual, prob, weights, indices)

		for i := range y {
			score[i] += tree.predictRow(X[i])
		}
		g.Trees = append(g.Trees, tree)
	}
	return nil
}

// newtonLeaves replaces each leaf's residual mean with the Newton step
// sum(w*r)/sum(w*p*(1-p)), shrunk by the learning rate and baked into the
// stored value so prediction is a plain additive walk.
func (g *GradientBoostedTrees) newtonLeaves(tree *decisionTree, X [][]float64, residual, prob, weights []float64, indices []int) {
	num := make(map[int]float64)
	den := make(map[int]float64)
	for _, i := range indices {
		path := tree.leafPath(X[i])
		leaf := path[len(path)-1]
		w := weights[i]
		num[leaf] += w * residual[i]
		den[leaf] += w * prob[i] * (1 - prob[i])
	}
	for idx := range tree.Nodes {
		if tree.Nodes[idx].Left >= 0 {
			continue
		}
		d := den[idx]
		if d < 1e-10 {
			tree.Nodes[idx].Value = 0
			continue
		}
		tree.Nodes[idx].Value = g.LearningRate * num[idx] / d
	}
}

func (g *GradientBoostedTrees) sampleRows(n int, rng *rand.Rand) []int {
	if g.Subsample <= 0 || g.Subsample >= 1 {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	k := int(math.Max(1, g.Subsample*float64(n)))
	perm := rng.Perm(n)[:k]
	return perm
}

func (g *GradientBoostedTrees) maxFeatures() int {
	if g.SqrtFeatures {
		return int(math.Max(1, math.Sqrt(float64(g.nFeatures))))
	}
	if g.ColsampleRatio > 0 && g.ColsampleRatio < 1 {
		return int(math.Max(1, g.ColsampleRatio*float64(g.nFeatures)))
	}
	return 0
}

// PredictProba returns the positive-class probability per row.
func (g *GradientBoostedTrees) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		score := g.BaseScore
		for _, tree := range g.Trees {
			score += tree.predictRow(row)
		}
		out[i] = sigmoid(score)
	}
	return out
}

// FeatureImportances aggregates impurity decrease over all trees,
// normalized to sum to 1.
func (g *GradientBoostedTrees) FeatureImportances() []float64 {
	return aggregateTreeImportances(g.Trees, g.featureCount())
}

func (g *GradientBoostedTrees) featureCount() int {
	if g.nFeatures > 0 {
		return g.nFeatures
	}
	for _, t := range g.Trees {
		if len(t.Importances) > 0 {
			return len(t.Importances)
		}
	}
	return 0
}

// aggregateTreeImportances sums per-tree impurity decreases and normalizes.
func aggregateTreeImportances(trees []*decisionTree, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	total := 0.0
	for _, t := range trees {
		for f, v := range t.Importances {
			if f < nFeatures {
				out[f] += v
				total += v
			}
		}
	}
	if total > 0 {
		for f := range out {
			out[f] /= total
		}
	}
	return out
}
