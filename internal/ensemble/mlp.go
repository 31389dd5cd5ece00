package ensemble

import (
	"math"
	"math/rand"

	"riskiq/internal/errors"
)

// MLPClassifier is a small feed-forward network (ReLU hidden layers,
// sigmoid output) trained on log loss with Adam updates. It rounds out the
// ensemble with a non-tree decision surface.
type MLPClassifier struct {
	HiddenLayers       []int   `json:"hidden_layers"`
	LearningRate       float64 `json:"learning_rate"`
	L2Alpha            float64 `json:"l2_alpha"`
	BatchSize          int     `json:"batch_size"`
	MaxIter            int     `json:"max_iter"`
	EarlyStopping      bool    `json:"early_stopping"`
	ValidationFraction float64 `json:"validation_fraction"`
	NIterNoChange      int     `json:"n_iter_no_change"`

	// Weights[l][i][j] connects unit i of layer l to unit j of layer l+1.
	Weights [][][]float64 `json:"weights"`
	Biases  [][]float64   `json:"biases"`
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Fit trains the network. Initialization, shuffling and the validation
// split all come from rng, so a fixed seed reproduces the fitted weights.
func (m *MLPClassifier) Fit(X [][]float64, y []float64, rng *rand.Rand) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.InvalidInput("training matrix and labels must be non-empty and aligned")
	}

	sizes := append([]int{len(X[0])}, m.HiddenLayers...)
	sizes = append(sizes, 1)
	m.initWeights(sizes, rng)

	// Optional validation split for early stopping.
	trainX, trainY := X, y
	var valX [][]float64
	var valY []float64
	if m.EarlyStopping && m.ValidationFraction > 0 && len(X) >= 10 {
		perm := rng.Perm(len(X))
		nVal := int(m.ValidationFraction * float64(len(X)))
		if nVal < 1 {
			nVal = 1
		}
		trainX = make([][]float64, 0, len(X)-nVal)
		trainY = make([]float64, 0, len(X)-nVal)
		for _, i := range perm[nVal:] {
			trainX = append(trainX, X[i])
			trainY = append(trainY, y[i])
		}
		for _, i := range perm[:nVal] {
			valX = append(valX, X[i])
			valY = append(valY, y[i])
		}
	}

	batch := m.BatchSize
	if batch <= 0 || batch > len(trainX) {
		batch = len(trainX)
	}

	// Adam state mirrors the weight/bias shapes.
	mw, vw := zeroLike(m.Weights), zeroLike(m.Weights)
	mb, vb := zeroLikeBias(m.Biases), zeroLikeBias(m.Biases)

	bestLoss := math.Inf(1)
	noImprove := 0
	step := 0

	for epoch := 0; epoch < m.MaxIter; epoch++ {
		perm := rng.Perm(len(trainX))
		for start := 0; start < len(perm); start += batch {
			end := start + batch
			if end > len(perm) {
				end = len(perm)
			}
			step++
			m.adamStep(trainX, trainY, perm[start:end], mw, vw, mb, vb, step)
		}

		if len(valX) > 0 {
			loss := m.logLoss(valX, valY)
			if loss < bestLoss-1e-5 {
				bestLoss = loss
				noImprove = 0
			} else {
				noImprove++
				if noImprove >= m.NIterNoChange {
					return nil
				}
			}
		}
	}
	return nil
}

func (m *MLPClassifier) initWeights(sizes []int, rng *rand.Rand) {
	m.Weights = make([][][]float64, len(sizes)-1)
	m.Biases = make([][]float64, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		// He initialization for the ReLU layers.
		scale := math.Sqrt(2.0 / float64(sizes[l]))
		m.Weights[l] = make([][]float64, sizes[l])
		for i := range m.Weights[l] {
			m.Weights[l][i] = make([]float64, sizes[l+1])
			for j := range m.Weights[l][i] {
				m.Weights[l][i][j] = rng.NormFloat64() * scale
			}
		}
		m.Biases[l] = make([]float64, sizes[l+1])
	}
}

// adamStep accumulates gradients over one minibatch and applies an Adam
// update with L2 regularization on the weights.
func (m *MLPClassifier) adamStep(X [][]float64, y []float64, batch []int, mw, vw [][][]float64, mb, vb [][]float64, step int) {
	gradW := zeroLike(m.Weights)
	gradB := zeroLikeBias(m.Biases)

	for _, i := range batch {
		activations, preacts := m.forward(X[i])
		m.backward(X[i], y[i], activations, preacts, gradW, gradB)
	}

	n := float64(len(batch))
	lr := m.LearningRate
	bc1 := 1 - math.Pow(adamBeta1, float64(step))
	bc2 := 1 - math.Pow(adamBeta2, float64(step))

	for l := range m.Weights {
		for i := range m.Weights[l] {
			for j := range m.Weights[l][i] {
				g := gradW[l][i][j]/n + m.L2Alpha*m.Weights[l][i][j]
				mw[l][i][j] = adamBeta1*mw[l][i][j] + (1-adamBeta1)*g
				vw[l][i][j] = adamBeta2*vw[l][i][j] + (1-adamBeta2)*g*g
				m.Weights[l][i][j] -= lr * (mw[l][i][j] / bc1) / (math.Sqrt(vw[l][i][j]/bc2) + adamEps)
			}
		}
		for j := range m.Biases[l] {
			g := gradB[l][j] / n
			mb[l][j] = adamBeta1*mb[l][j] + (1-adamBeta1)*g
			vb[l][j] = adamBeta2*vb[l][j] + (1-adamBeta2)*g*g
			m.Biases[l][j] -= lr * (mb[l][j] / bc1) / (math.Sqrt(vb[l][j]/bc2) + adamEps)
		}
	}
}

// forward returns per-layer activations (post-nonlinearity) and
// pre-activations. activations[0] is the input row.
func (m *MLPClassifier) forward(row []float64) ([][]float64, [][]float64) {
	activations := make([][]float64, len(m.Weights)+1)
	preacts := make([][]float64, len(m.Weights))
	activations[0] = row

	for l := range m.Weights {
		out := make([]float64, len(m.Biases[l]))
		for j := range out {
			sum := m.Biases[l][j]
			for i, a := range activations[l] {
				sum += a * m.Weights[l][i][j]
			}
			out[j] = sum
		}
		preacts[l] = out

		act := make([]float64, len(out))
		last := l == len(m.Weights)-1
		for j, z := range out {
			if last {
				act[j] = sigmoid(z)
			} else if z > 0 {
				act[j] = z
			}
		}
		activations[l+1] = act
	}
	return activations, preacts
}

// backward accumulates log-loss gradients into gradW/gradB.
func (m *MLPClassifier) backward(row []float64, label float64, activations, preacts [][]float64, gradW [][][]float64, gradB [][]float64) {
	L := len(m.Weights)
	// Output delta for sigmoid + log loss simplifies to (p - y).
	delta := []float64{activations[L][0] - label}

	for l := L - 1; l >= 0; l-- {
		for i, a := range activations[l] {
			for j, d := range delta {
				gradW[l][i][j] += a * d
			}
		}
		for j, d := range delta {
			gradB[l][j] += d
		}

		if l == 0 {
			break
		}
		prev := make([]float64, len(activations[l]))
		for i := range prev {
			var sum float64
			for j, d := range delta {
				sum += m.Weights[l][i][j] * d
			}
			if preacts[l-1][i] > 0 { // ReLU gate
				prev[i] = sum
			}
		}
		delta = prev
	}
}

func (m *MLPClassifier) logLoss(X [][]float64, y []float64) float64 {
	probs := m.PredictProba(X)
	sum := 0.0
	for i, p := range probs {
		p = clip(p, 1e-7, 1-1e-7)
		sum += -(y[i]*math.Log(p) + (1-y[i])*math.Log(1-p))
	}
	return sum / float64(len(X))
}

// PredictProba returns the positive-class probability per row.
func (m *MLPClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		activations, _ := m.forward(row)
		out[i] = activations[len(activations)-1][0]
	}
	return out
}

func zeroLike(w [][][]float64) [][][]float64 {
	out := make([][][]float64, len(w))
	for l := range w {
		out[l] = make([][]float64, len(w[l]))
		for i := range w[l] {
			out[l][i] = make([]float64, len(w[l][i]))
		}
	}
	return out
}

func zeroLikeBias(b [][]float64) [][]float64 {
	out := make([][]float64, len(b))
	for l := range b {
		out[l] = make([]float64, len(b[l]))
	}
	return out
}
