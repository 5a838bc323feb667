// Package model provides the estimator interfaces, fitted-state bookkeeping
// and gob persistence shared by the preprocessing and classifier packages.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Classifier combines the methods every fitted classifier exposes.
type Classifier interface {
	// Fit trains the classifier. y is a column vector of integer labels.
	Fit(X, y mat.Matrix) error

	// Predict returns the predicted label of every row as an n×1 matrix.
	Predict(X mat.Matrix) (mat.Matrix, error)

	// PredictProba returns probability estimates, one column per class in
	// the order returned by Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted unique labels seen during fitting.
	Classes() []int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
