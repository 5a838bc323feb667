package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// SimpleImputer replaces NaN cells with a per-column statistic learned in Fit.
// Only the "median" strategy is supported.
type SimpleImputer struct {
	model.BaseEstimator

	// Strategy is the fill statistic. Only "median" is accepted.
	Strategy string

	// Statistics holds the fill value of every column.
	Statistics []float64

	// NFeatures is the number of columns seen in Fit.
	NFeatures int
}

// NewSimpleImputer returns a median imputer.
func NewSimpleImputer() *SimpleImputer {
	return &SimpleImputer{Strategy: "median"}
}

// Fit computes the median of the present (non-NaN) values of every column.
// A column without any present value yields a DataFormatError naming it.
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	return s.FitNamed(X, nil)
}

// FitNamed is Fit with column names used in error messages.
func (s *SimpleImputer) FitNamed(X mat.Matrix, names []string) error {
	s.Reset()
	if s.Strategy != "median" {
		return errors.NewValidationError("strategy", "only 'median' is supported", s.Strategy)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}

	stats := make([]float64, c)
	present := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		present = present[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			name := fmt.Sprintf("column_%d", j)
			if j < len(names) {
				name = names[j]
			}
			return errors.NewDataFormatError(-1, name, "no present values, median is undefined")
		}
		stats[j] = Median(present)
	}

	s.Statistics = stats
	s.NFeatures = c
	s.SetFitted()
	return nil
}

// Transform returns a copy of X with every NaN replaced by its column statistic.
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SimpleImputer", "Transform")
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("SimpleImputer.Transform", s.NFeatures, c, 1)
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return s.Statistics[j]
		}
		return v
	}, X)
	return out, nil
}

// FitTransform fits on X and imputes it.
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// GetParams returns the imputer's parameters.
func (s *SimpleImputer) GetParams() map[string]interface{} {
	return map[string]interface{}{"strategy": s.Strategy}
}

// Median returns the middle value of values, or the mean of the two middle
// values for an even count. values is not modified. Returns NaN when empty.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
