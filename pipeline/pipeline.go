// Package pipeline fits, evaluates and persists the heart disease classifier:
// a StandardScaler followed by a RandomForestClassifier, stored together with
// the feature schema they were trained on.
package pipeline

import (
	"io"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/preprocessing"
	"github.com/YuminosukeSato/heartml/schema"
	"github.com/YuminosukeSato/heartml/sklearn/ensemble"
)

// PositiveClass is the label whose probability is reported as confidence.
const PositiveClass = 1

// Pipeline is the trained artifact. It is immutable after Fit or Load.
type Pipeline struct {
	Scaler            *preprocessing.StandardScaler
	Model             *ensemble.RandomForestClassifier
	FeatureNames      []string
	SchemaFingerprint string
	RunID             string
	TrainedAt         time.Time
}

// Validate checks that both stages are fitted and agree with the feature schema.
func (p *Pipeline) Validate() error {
	if p.Scaler == nil || !p.Scaler.IsFitted() {
		return errors.NewNotFittedError("StandardScaler", "Pipeline.Validate")
	}
	if p.Model == nil || !p.Model.IsFitted() {
		return errors.NewNotFittedError("RandomForestClassifier", "Pipeline.Validate")
	}
	if p.Model.NFeatures() != len(p.FeatureNames) || p.Scaler.NFeatures != len(p.FeatureNames) {
		return errors.NewDimensionError("Pipeline.Validate", len(p.FeatureNames), p.Model.NFeatures(), 1)
	}
	positive := false
	for _, c := range p.Model.Classes() {
		if c == PositiveClass {
			positive = true
		}
	}
	if !positive {
		return errors.NewValueError("Pipeline.Validate", "model was not trained with the positive class")
	}
	return schema.Heart.CheckCompatible(p.FeatureNames, p.SchemaFingerprint)
}

// PredictProba returns the positive class probability of every row of raw
// (unscaled) features.
func (p *Pipeline) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	scaled, err := p.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	proba, err := p.Model.PredictProba(scaled)
	if err != nil {
		return nil, err
	}

	col := -1
	for k, c := range p.Model.Classes() {
		if c == PositiveClass {
			col = k
		}
	}
	r, _ := proba.Dims()
	out := mat.NewVecDense(r, nil)
	if col < 0 {
		return out, nil
	}
	for i := 0; i < r; i++ {
		out.SetVec(i, proba.At(i, col))
	}
	return out, nil
}

// PredictOne returns the positive class probability of a single record.
func (p *Pipeline) PredictOne(features []float64) (float64, error) {
	proba, err := p.PredictProba(mat.NewDense(1, len(features), features))
	if err != nil {
		return 0, err
	}
	return proba.AtVec(0), nil
}

// Save writes the pipeline atomically as gob.
func (p *Pipeline) Save(path string) error {
	return model.SaveModel(p, path)
}

// Stage encodes the pipeline next to path without replacing it. The caller
// commits or discards the returned file.
func (p *Pipeline) Stage(path string) (*model.StagedFile, error) {
	f, err := model.StageFile(path, func(w io.Writer) error {
		return model.SaveModelToWriter(p, w)
	})
	if err != nil {
		return nil, errors.NewPersistenceError("save", path, err)
	}
	return f, nil
}

// Load reads and validates a pipeline written by Save.
func Load(path string) (*Pipeline, error) {
	var p Pipeline
	if err := model.LoadModel(&p, path); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, errors.NewPersistenceError("load", path, err)
	}
	return &p, nil
}
