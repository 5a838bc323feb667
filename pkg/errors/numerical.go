package errors

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// NumericalInstabilityError reports a NaN or Inf value found where finite
// numbers are required.
type NumericalInstabilityError struct {
	Operation string // e.g. "StandardScaler.Transform"
	Value     float64
	Row       int
	Column    int
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("heartml: non-finite value in %s at (%d, %d): %v",
		e.Operation, e.Row, e.Column, e.Value)
}

// CheckMatrix checks all values in a matrix for NaN or Inf.
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols int) error {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.WithStack(&NumericalInstabilityError{
					Operation: operation,
					Value:     v,
					Row:       i,
					Column:    j,
				})
			}
		}
	}
	return nil
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
