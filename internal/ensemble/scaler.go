package ensemble

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column to zero mean and unit variance.
// Fitted once per training run and shared by every model in the set.
type StandardScaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// Fit computes per-column mean and standard deviation.
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		return
	}
	cols := len(X[0])
	s.Means = make([]float64, cols)
	s.Stds = make([]float64, cols)

	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std == 0 {
			std = 1 // constant column, leave values centered only
		}
		s.Means[j] = mean
		s.Stds[j] = std
	}
}

// Transform returns a scaled copy of X. Columns beyond the fitted width are
// passed through untouched.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if j < len(s.Means) {
				scaled[j] = (v - s.Means[j]) / s.Stds[j]
			} else {
				scaled[j] = v
			}
		}
		out[i] = scaled
	}
	return out
}

// TransformRow scales a single feature row.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	return s.Transform([][]float64{row})[0]
}

// FitTransform fits the scaler and returns the scaled matrix.
func (s *StandardScaler) FitTransform(X [][]float64) [][]float64 {
	s.Fit(X)
	return s.Transform(X)
}
