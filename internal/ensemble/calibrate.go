package ensemble

import (
	"math/rand"
	"sort"

	"riskiq/internal/errors"
)

// IsotonicCalibrator maps raw model probabilities onto observed outcome
// frequencies with a monotone step function fitted by pool-adjacent-violators.
// Fitting uses out-of-fold predictions so the calibration curve is not
// learned on the same rows the model memorized.
type IsotonicCalibrator struct {
	// Breakpoints of the fitted step function, ascending raw probabilities
	// with their calibrated values.
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

const calibrationFolds = 3

// fitCalibrator cross-fits fresh copies of the model to collect out-of-fold
// probabilities, then runs PAV on the (raw, outcome) pairs.
func fitCalibrator(build func() Classifier, X [][]float64, y []float64, rng *rand.Rand) (*IsotonicCalibrator, error) {
	folds := stratifiedKFold(y, calibrationFolds, rng)

	raw := make([]float64, 0, len(y))
	actual := make([]float64, 0, len(y))

	for _, valIdx := range folds {
		inVal := make(map[int]bool, len(valIdx))
		for _, i := range valIdx {
			inVal[i] = true
		}
		var trX [][]float64
		var trY []float64
		for i := range y {
			if !inVal[i] {
				trX = append(trX, X[i])
				trY = append(trY, y[i])
			}
		}
		if len(trX) == 0 {
			continue
		}
		model := build()
		if err := model.Fit(trX, trY, rng); err != nil {
			return nil, err
		}
		var vaX [][]float64
		for _, i := range valIdx {
			vaX = append(vaX, X[i])
		}
		probs := model.PredictProba(vaX)
		for k, i := range valIdx {
			raw = append(raw, probs[k])
			actual = append(actual, y[i])
		}
	}

	if len(raw) == 0 {
		return nil, errors.InvalidInput("no out-of-fold predictions available for calibration")
	}

	cal := &IsotonicCalibrator{}
	cal.fitPAV(raw, actual)
	return cal, nil
}

// fitPAV runs pool-adjacent-violators over the (raw, outcome) pairs sorted
// by raw probability.
func (c *IsotonicCalibrator) fitPAV(raw, actual []float64) {
	order := make([]int, len(raw))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return raw[order[a]] < raw[order[b]] })

	type block struct {
		sum, weight float64
		minX, maxX  float64
	}
	blocks := make([]block, 0, len(order))
	for _, i := range order {
		blocks = append(blocks, block{sum: actual[i], weight: 1, minX: raw[i], maxX: raw[i]})
		// Merge backwards while the monotonicity constraint is violated.
		for len(blocks) >= 2 {
			last := len(blocks) - 1
			if blocks[last-1].sum/blocks[last-1].weight <= blocks[last].sum/blocks[last].weight {
				break
			}
			blocks[last-1].sum += blocks[last].sum
			blocks[last-1].weight += blocks[last].weight
			blocks[last-1].maxX = blocks[last].maxX
			blocks = blocks[:last]
		}
	}

	c.X = make([]float64, 0, len(blocks)*2)
	c.Y = make([]float64, 0, len(blocks)*2)
	for _, b := range blocks {
		v := b.sum / b.weight
		c.X = append(c.X, b.minX, b.maxX)
		c.Y = append(c.Y, v, v)
	}
}

// Transform maps a raw probability through the step function with linear
// interpolation between breakpoints. Inputs outside the fitted range clamp
// to the endpoints.
func (c *IsotonicCalibrator) Transform(p float64) float64 {
	if len(c.X) == 0 {
		return p
	}
	if p <= c.X[0] {
		return c.Y[0]
	}
	last := len(c.X) - 1
	if p >= c.X[last] {
		return c.Y[last]
	}
	idx := sort.SearchFloat64s(c.X, p)
	x0, x1 := c.X[idx-1], c.X[idx]
	y0, y1 := c.Y[idx-1], c.Y[idx]
	if x1 == x0 {
		return y1
	}
	return y0 + (y1-y0)*(p-x0)/(x1-x0)
}

// TransformAll applies Transform element-wise.
func (c *IsotonicCalibrator) TransformAll(probs []float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = c.Transform(p)
	}
	return out
}
