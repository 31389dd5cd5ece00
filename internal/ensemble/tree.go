package ensemble

import (
	"math/rand"
	"sort"
)

// treeNode is one node of a fitted decision tree, stored flat so the whole
// tree serializes as a plain JSON array.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"` // child indices; -1 marks a leaf
	Right     int     `json:"r"`
	Value     float64 `json:"v"` // leaf prediction (weighted mean target)
}

// decisionTree is a weighted regression tree grown by variance reduction.
// With 0/1 targets the split criterion is equivalent to Gini impurity, so
// the same tree serves both the boosted regressors and the bagged
// classification forest.
type decisionTree struct {
	Nodes []treeNode `json:"nodes"`

	// Per-feature impurity decrease accumulated during growth, used for
	// importance aggregation. Not normalized here.
	Importances []float64 `json:"importances"`
}

// treeConfig controls tree growth.
type treeConfig struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures limits the candidate features per split; <=0 means all.
	MaxFeatures int
}

// fitTree grows a tree on the given sample indices with per-sample weights.
func fitTree(X [][]float64, target, weights []float64, indices []int, cfg treeConfig, rng *rand.Rand) *decisionTree {
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}
	t := &decisionTree{Importances: make([]float64, nFeatures)}
	t.grow(X, target, weights, indices, cfg, rng, 0)
	return t
}

// grow appends the subtree for the given samples and returns its node index.
func (t *decisionTree) grow(X [][]float64, target, weights []float64, indices []int, cfg treeConfig, rng *rand.Rand, depth int) int {
	sumW, sumWY := 0.0, 0.0
	for _, i := range indices {
		sumW += weights[i]
		sumWY += weights[i] * target[i]
	}
	leafValue := 0.0
	if sumW > 0 {
		leafValue = sumWY / sumW
	}

	nodeIdx := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Left: -1, Right: -1, Value: leafValue})

	if depth >= cfg.MaxDepth || len(indices) < cfg.MinSamplesSplit {
		return nodeIdx
	}

	feature, threshold, gain := t.bestSplit(X, target, weights, indices, cfg, rng)
	if feature < 0 {
		return nodeIdx
	}

	var left, right []int
	for _, i := range indices {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < cfg.MinSamplesLeaf || len(right) < cfg.MinSamplesLeaf {
		return nodeIdx
	}

	t.Importances[feature] += gain

	leftIdx := t.grow(X, target, weights, left, cfg, rng, depth+1)
	rightIdx := t.grow(X, target, weights, right, cfg, rng, depth+1)

	t.Nodes[nodeIdx].Feature = feature
	t.Nodes[nodeIdx].Threshold = threshold
	t.Nodes[nodeIdx].Left = leftIdx
	t.Nodes[nodeIdx].Right = rightIdx
	return nodeIdx
}

// bestSplit scans candidate features for the weighted-variance-reduction
// maximizing threshold. Returns feature -1 when no split improves.
func (t *decisionTree) bestSplit(X [][]float64, target, weights []float64, indices []int, cfg treeConfig, rng *rand.Rand) (int, float64, float64) {
	nFeatures := len(X[indices[0]])

	candidates := make([]int, nFeatures)
	for i := range candidates {
		candidates[i] = i
	}
	if cfg.MaxFeatures > 0 && cfg.MaxFeatures < nFeatures {
		rng.Shuffle(nFeatures, func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		candidates = candidates[:cfg.MaxFeatures]
	}

	// Parent weighted sum of squares.
	var totalW, totalWY, totalWYY float64
	for _, i := range indices {
		w, y := weights[i], target[i]
		totalW += w
		totalWY += w * y
		totalWYY += w * y * y
	}
	if totalW == 0 {
		return -1, 0, 0
	}
	parentImpurity := totalWYY - totalWY*totalWY/totalW

	type sample struct {
		value, w, y float64
	}
	sorted := make([]sample, len(indices))

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0

	for _, f := range candidates {
		for k, i := range indices {
			sorted[k] = sample{value: X[i][f], w: weights[i], y: target[i]}
		}
		sort.Slice(sorted, func(a, b int) bool { return sorted[a].value < sorted[b].value })

		var leftW, leftWY, leftWYY float64
		for k := 0; k < len(sorted)-1; k++ {
			s := sorted[k]
			leftW += s.w
			leftWY += s.w * s.y
			leftWYY += s.w * s.y * s.y

			if sorted[k].value == sorted[k+1].value {
				continue
			}
			if k+1 < cfg.MinSamplesLeaf || len(sorted)-(k+1) < cfg.MinSamplesLeaf {
				continue
			}

			rightW := totalW - leftW
			if leftW == 0 || rightW == 0 {
				continue
			}
			leftImp := leftWYY - leftWY*leftWY/leftW
			rightWY := totalWY - leftWY
			rightWYY := totalWYY - leftWYY
			rightImp := rightWYY - rightWY*rightWY/rightW

			gain := parentImpurity - leftImp - rightImp
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (sorted[k].value + sorted[k+1].value) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

// predictRow walks the tree for a single feature row.
func (t *decisionTree) predictRow(row []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Left < 0 {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// leafPath returns the node indices visited for a row, root to leaf. The
// attribution backend uses it to decompose predictions along split paths.
func (t *decisionTree) leafPath(row []float64) []int {
	var path []int
	idx := 0
	for {
		path = append(path, idx)
		node := t.Nodes[idx]
		if node.Left < 0 {
			return path
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}
