package ensemble

import (
	"math"
	"math/rand"
	"sort"
)

// rocAUC computes the area under the ROC curve by the rank-statistic
// formulation, averaging ranks over tied scores.
func rocAUC(y, scores []float64) float64 {
	type pair struct {
		score float64
		label float64
	}
	pairs := make([]pair, len(y))
	for i := range y {
		pairs[i] = pair{score: scores[i], label: y[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	// Assign average ranks across tie groups.
	ranks := make([]float64, len(pairs))
	i := 0
	for i < len(pairs) {
		j := i + 1
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			j++
		}
		avgRank := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			ranks[k] = avgRank
		}
		i = j
	}

	var posRankSum float64
	var nPos, nNeg float64
	for k, p := range pairs {
		if p.label >= 0.5 {
			posRankSum += ranks[k]
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		// Degenerate single-class fold; report chance level rather than fail.
		return 0.5
	}
	return (posRankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
}

// precisionRecall computes precision and recall at the 0.5 threshold.
func precisionRecall(y, scores []float64) (precision, recall float64) {
	var tp, fp, fn float64
	for i := range y {
		predicted := scores[i] >= 0.5
		actual := y[i] >= 0.5
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	return precision, recall
}

// brierScore is the mean squared error of predicted probabilities.
func brierScore(y, scores []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	sum := 0.0
	for i := range y {
		d := scores[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

// averagePrecision computes AP as the precision-weighted sum over recall
// steps, walking predictions from highest to lowest score.
func averagePrecision(y, scores []float64) float64 {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var nPos float64
	for _, v := range y {
		if v >= 0.5 {
			nPos++
		}
	}
	if nPos == 0 {
		return 0
	}

	var tp, ap float64
	for rank, i := range idx {
		if y[i] >= 0.5 {
			tp++
			ap += tp / float64(rank+1)
		}
	}
	return ap / nPos
}

// stratifiedKFold produces k shuffled folds preserving the class ratio.
// Returns per-fold validation index sets.
func stratifiedKFold(y []float64, k int, rng *rand.Rand) [][]int {
	var pos, neg []int
	for i, v := range y {
		if v >= 0.5 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	rng.Shuffle(len(pos), func(i, j int) { pos[i], pos[j] = pos[j], pos[i] })
	rng.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })

	folds := make([][]int, k)
	for i, idx := range pos {
		folds[i%k] = append(folds[i%k], idx)
	}
	for i, idx := range neg {
		folds[i%k] = append(folds[i%k], idx)
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

// meanStd returns mean and population standard deviation.
func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(vals)))
	return mean, std
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
