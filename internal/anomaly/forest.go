package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

// isolationForest isolates points by random axis-aligned splits: anomalous
// rows separate in fewer splits, so short average path lengths mean high
// anomaly scores.
type isolationForest struct {
	NEstimators   int
	MaxFeatures   float64 // fraction of features sampled per tree
	Contamination float64

	trees      []*isoTree
	sampleSize int
	offset     float64 // contamination quantile of training scores
}

type isoTree struct {
	nodes []isoNode
}

type isoNode struct {
	feature   int
	threshold float64
	left      int // -1 marks a leaf
	right     int
	size      int // samples reaching a leaf, for the path-length correction
}

const isoSubsample = 256

func newIsolationForest(nEstimators int, maxFeatures, contamination float64) *isolationForest {
	return &isolationForest{
		NEstimators:   nEstimators,
		MaxFeatures:   maxFeatures,
		Contamination: contamination,
	}
}

func (f *isolationForest) fit(X [][]float64, rng *rand.Rand) {
	n := len(X)
	f.sampleSize = n
	if f.sampleSize > isoSubsample {
		f.sampleSize = isoSubsample
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(2, float64(f.sampleSize)))))

	nFeatures := len(X[0])
	perTree := int(math.Max(1, f.MaxFeatures*float64(nFeatures)))

	f.trees = f.trees[:0]
	for t := 0; t < f.NEstimators; t++ {
		indices := make([]int, f.sampleSize)
		for i := range indices {
			indices[i] = rng.Intn(n)
		}

		features := rng.Perm(nFeatures)[:perTree]

		tree := &isoTree{}
		tree.grow(X, indices, features, 0, heightLimit, rng)
		f.trees = append(f.trees, tree)
	}

	// The decision threshold sits at the contamination quantile of the
	// training scores, mirroring how the cut is usually calibrated.
	scores := make([]float64, n)
	for i, row := range X {
		scores[i] = -f.anomalyScore(row)
	}
	sort.Float64s(scores)
	idx := int(f.Contamination * float64(n))
	if idx >= n {
		idx = n - 1
	}
	f.offset = scores[idx]
}

func (t *isoTree) grow(X [][]float64, indices, features []int, depth, heightLimit int, rng *rand.Rand) int {
	nodeIdx := len(t.nodes)
	t.nodes = append(t.nodes, isoNode{feature: -1, left: -1, right: -1, size: len(indices)})

	if depth >= heightLimit || len(indices) <= 1 {
		return nodeIdx
	}

	// Pick a random feature with spread; give up after a few tries.
	var feature int
	var lo, hi float64
	found := false
	for attempt := 0; attempt < len(features); attempt++ {
		feature = features[rng.Intn(len(features))]
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, i := range indices {
			v := X[i][feature]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			found = true
			break
		}
	}
	if !found {
		return nodeIdx
	}

	threshold := lo + rng.Float64()*(hi-lo)
	var left, right []int
	for _, i := range indices {
		if X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	leftIdx := t.grow(X, left, features, depth+1, heightLimit, rng)
	rightIdx := t.grow(X, right, features, depth+1, heightLimit, rng)

	t.nodes[nodeIdx].feature = feature
	t.nodes[nodeIdx].threshold = threshold
	t.nodes[nodeIdx].left = leftIdx
	t.nodes[nodeIdx].right = rightIdx
	return nodeIdx
}

// pathLength walks a row to its leaf and adds the average-path correction
// for the leaf's remaining sample count.
func (t *isoTree) pathLength(row []float64) float64 {
	depth := 0.0
	idx := 0
	for {
		node := t.nodes[idx]
		if node.left < 0 {
			return depth + avgPathLength(node.size)
		}
		depth++
		if row[node.feature] < node.threshold {
			idx = node.left
		} else {
			idx = node.right
		}
	}
}

// avgPathLength is the expected path length of an unsuccessful BST search
// over n points, the standard normalizer for isolation forests.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

// anomalyScore returns s(x) in (0,1); values near 1 are anomalous.
func (f *isolationForest) anomalyScore(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.pathLength(row)
	}
	mean := sum / float64(len(f.trees))
	return math.Pow(2, -mean/avgPathLength(f.sampleSize))
}

// decisionFunction is positive for normal rows and negative past the
// contamination cut.
func (f *isolationForest) decisionFunction(row []float64) float64 {
	return -f.anomalyScore(row) - f.offset
}
