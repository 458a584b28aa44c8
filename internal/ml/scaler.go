package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrDimension is returned when an input row has the wrong width.
	ErrDimension = errors.New("ml: feature dimension mismatch")
	// ErrEmptyDataset is returned when fitting on no rows.
	ErrEmptyDataset = errors.New("ml: empty dataset")
)

// StandardScaler centers each column on its mean and divides by its
// population standard deviation. Constant columns get a scale of 1.
type StandardScaler struct {
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"`
	Scale    []float64 `json:"scale"`
}

// FitScaler computes per-column statistics from X. Only training rows
// should be passed in; test rows must be transformed with the result.
func FitScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}
	width := len(X[0])
	s := &StandardScaler{
		Mean:     make([]float64, width),
		Variance: make([]float64, width),
		Scale:    make([]float64, width),
	}

	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			if len(row) != width {
				return nil, fmt.Errorf("row %d: %w", i, ErrDimension)
			}
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Variance[j] = variance
		s.Scale[j] = math.Sqrt(variance)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}

	return s, nil
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: scaler expects %d values, got %d", ErrDimension, len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

func (s *StandardScaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *StandardScaler) validate(width int) error {
	if len(s.Mean) != width || len(s.Scale) != width {
		return fmt.Errorf("%w: scaler has %d columns, want %d", ErrDimension, len(s.Mean), width)
	}
	for j, sc := range s.Scale {
		if sc == 0 || math.IsNaN(sc) || math.IsNaN(s.Mean[j]) {
			return fmt.Errorf("ml: scaler column %d is invalid", j)
		}
	}
	return nil
}
