package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/dataset"
	"github.com/YuminosukeSato/heartml/metrics"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/preprocessing"
	"github.com/YuminosukeSato/heartml/schema"
	"github.com/YuminosukeSato/heartml/sklearn/ensemble"
	"github.com/YuminosukeSato/heartml/sklearn/model_selection"
)

// EvalThreshold turns holdout probabilities into labels for accuracy.
const EvalThreshold = 0.5

// TrainConfig controls a training run. Zero values are replaced by the
// defaults of DefaultTrainConfig.
type TrainConfig struct {
	DataPath      string
	ModelPath     string
	RunRecordPath string
	ROCPlotPath   string // empty disables the plot

	TestSize    float64
	SplitSeed   uint64
	NEstimators int
	MaxFeatures string
	RandomState int64
	NJobs       int

	Logger log.Logger
}

// DefaultTrainConfig returns the paths and hyperparameters used by cmd/train.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		DataPath:      "data/heart.csv",
		ModelPath:     "artifacts/heart_disease_pipeline.gob",
		RunRecordPath: "logs/train_run.json",
		ROCPlotPath:   "logs/roc_curve.png",
		TestSize:      0.2,
		SplitSeed:     42,
		NEstimators:   200,
		MaxFeatures:   "sqrt",
		RandomState:   42,
	}
}

func (c TrainConfig) withDefaults() TrainConfig {
	d := DefaultTrainConfig()
	if c.TestSize == 0 {
		c.TestSize = d.TestSize
	}
	if c.NEstimators == 0 {
		c.NEstimators = d.NEstimators
	}
	if c.MaxFeatures == "" {
		c.MaxFeatures = d.MaxFeatures
	}
	if c.Logger == nil {
		c.Logger = log.GetLoggerWithName("pipeline")
	}
	return c
}

// Evaluation is the holdout performance of a fitted pipeline.
type Evaluation struct {
	AUC       float64
	Accuracy  float64
	LogLoss   float64
	ROC       *metrics.ROC
	TrainRows int
	TestRows  int
}

// FitAndEvaluate splits table 80/20 stratified by label, fits the scaler and
// the forest on the training part only, and scores the holdout part.
func FitAndEvaluate(table *dataset.Table, cfg TrainConfig) (*Pipeline, *Evaluation, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger

	if table == nil || table.Rows() == 0 {
		return nil, nil, errors.NewTrainingError("split", "no rows to train on")
	}
	if pos := table.Positives(); pos == 0 || pos == table.Rows() {
		return nil, nil, errors.NewTrainingError("split", "labels contain a single class")
	}

	split, err := model_selection.StratifiedTrainTestSplit(table.Y, cfg.TestSize, cfg.SplitSeed)
	if err != nil {
		return nil, nil, errors.NewTrainingError("split", err.Error())
	}
	XTrain, yTrain := dataset.Subset(table.X, table.Y, split.TrainIndices)
	XTest, yTest := dataset.Subset(table.X, table.Y, split.TestIndices)
	if err := requireBothClasses("fit", yTrain); err != nil {
		return nil, nil, err
	}
	if err := requireBothClasses("evaluate", yTest); err != nil {
		return nil, nil, err
	}

	scaler := preprocessing.NewStandardScalerDefault()
	XTrainScaled, err := scaler.FitTransform(XTrain)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fit scaler")
	}

	forest := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(cfg.NEstimators),
		ensemble.WithMaxFeatures(cfg.MaxFeatures),
		ensemble.WithRandomState(cfg.RandomState),
		ensemble.WithNJobs(cfg.NJobs),
	)
	start := time.Now()
	if err := forest.Fit(XTrainScaled, yTrain); err != nil {
		return nil, nil, errors.Wrap(err, "fit forest")
	}
	logger.Info("Forest fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(split.TrainIndices),
		log.FeaturesKey, table.Cols(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	p := &Pipeline{
		Scaler:            scaler,
		Model:             forest,
		FeatureNames:      append([]string(nil), table.Columns...),
		SchemaFingerprint: schema.Heart.Fingerprint(),
		TrainedAt:         time.Now().UTC(),
	}

	eval, err := evaluate(p, XTest, yTest)
	if err != nil {
		return nil, nil, err
	}
	eval.TrainRows = len(split.TrainIndices)
	eval.TestRows = len(split.TestIndices)

	logger.Info("Holdout evaluated",
		log.OperationKey, log.OperationEvaluate,
		log.PhaseKey, log.PhaseValidation,
		log.SamplesKey, eval.TestRows,
		log.AUCKey, eval.AUC,
		log.AccuracyKey, eval.Accuracy,
		log.LossKey, eval.LogLoss,
	)
	return p, eval, nil
}

func requireBothClasses(stage string, y *mat.VecDense) error {
	pos := 0
	for i := 0; i < y.Len(); i++ {
		if y.AtVec(i) == 1 {
			pos++
		}
	}
	if pos == 0 || pos == y.Len() {
		return errors.Mark(
			errors.NewTrainingError(stage, fmt.Sprintf("partition of %d rows holds a single class", y.Len())),
			errors.ErrSingleClass,
		)
	}
	return nil
}

func evaluate(p *Pipeline, XTest *mat.Dense, yTest *mat.VecDense) (*Evaluation, error) {
	proba, err := p.PredictProba(XTest)
	if err != nil {
		return nil, errors.Wrap(err, "predict holdout")
	}

	auc, err := metrics.AUC(yTest, proba)
	if err != nil {
		return nil, errors.NewTrainingError("evaluate", err.Error())
	}
	acc, err := metrics.Accuracy(yTest, metrics.Threshold(proba, EvalThreshold))
	if err != nil {
		return nil, errors.NewTrainingError("evaluate", err.Error())
	}
	loss, err := metrics.BinaryLogLoss(yTest, proba)
	if err != nil {
		return nil, errors.NewTrainingError("evaluate", err.Error())
	}
	roc, err := metrics.ROCCurve(yTest, proba)
	if err != nil {
		return nil, errors.NewTrainingError("evaluate", err.Error())
	}
	return &Evaluation{AUC: auc, Accuracy: acc, LogLoss: loss, ROC: roc}, nil
}

// Result is what a completed training run produced.
type Result struct {
	Pipeline   *Pipeline
	Evaluation *Evaluation
	Record     *RunRecord
}

// Train runs load, prepare, fit and evaluate, then writes the artifact, the
// ROC plot and the run record. All three are staged next to their
// destinations first and renamed into place only when every one of them has
// been written. A failed commit restores whatever was there before, so a run
// record on disk always describes an artifact that exists.
func Train(cfg TrainConfig) (res *Result, err error) {
	cfg = cfg.withDefaults()
	runID := uuid.NewString()
	logger := cfg.Logger.With(log.RunIDKey, runID)
	cfg.Logger = logger

	logger.Info("Training started",
		log.DataPathKey, cfg.DataPath,
		log.ModelPathKey, cfg.ModelPath,
		log.RandomSeedKey, cfg.RandomState,
	)

	table, err := dataset.LoadAndPrepare(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	missing := 0
	for _, m := range table.Missing {
		missing += m
	}
	logger.Info("Data prepared",
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, table.Rows(),
		log.FeaturesKey, table.Cols(),
		log.MissingKey, missing,
	)

	p, eval, err := FitAndEvaluate(table, cfg)
	if err != nil {
		return nil, err
	}
	p.RunID = runID

	record := &RunRecord{
		Timestamp:         p.TrainedAt.Format(time.RFC3339),
		RunID:             runID,
		DataPath:          cfg.DataPath,
		ModelPath:         cfg.ModelPath,
		ROCPlotPath:       cfg.ROCPlotPath,
		ModelParams:       p.Model.GetParams(),
		Metrics:           RunMetrics{ROCAUC: eval.AUC, Accuracy: eval.Accuracy, LogLoss: eval.LogLoss},
		Rows:              table.Rows(),
		Cols:              table.Cols(),
		TrainRows:         eval.TrainRows,
		TestRows:          eval.TestRows,
		SchemaFingerprint: p.SchemaFingerprint,
	}

	var staged []*model.StagedFile
	defer func() {
		for _, f := range staged {
			f.Discard()
		}
	}()

	artifact, err := p.Stage(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	staged = append(staged, artifact)

	if cfg.ROCPlotPath != "" {
		title := fmt.Sprintf("ROC curve (AUC = %.3f)", eval.AUC)
		plotFile, err := model.StageFile(cfg.ROCPlotPath, func(w io.Writer) error {
			return eval.ROC.WritePlot(w, title, metrics.PlotFormat(cfg.ROCPlotPath))
		})
		if err != nil {
			return nil, errors.NewPersistenceError("plot", cfg.ROCPlotPath, err)
		}
		staged = append(staged, plotFile)
	}

	recordFile, err := record.Stage(cfg.RunRecordPath)
	if err != nil {
		return nil, err
	}
	staged = append(staged, recordFile)

	if err := commitAll(staged); err != nil {
		return nil, err
	}
	logger.Info("Artifact saved", log.OperationKey, log.OperationSave, log.ModelPathKey, cfg.ModelPath)
	logger.Info("Training finished", log.AUCKey, eval.AUC, "run_record", cfg.RunRecordPath)
	return &Result{Pipeline: p, Evaluation: eval, Record: record}, nil
}

// commitAll renames every staged file into place in order. When one rename
// fails the files already committed are rolled back.
func commitAll(files []*model.StagedFile) error {
	for k, f := range files {
		if err := f.Commit(); err != nil {
			for j := k - 1; j >= 0; j-- {
				_ = files[j].Rollback()
			}
			return errors.NewPersistenceError("commit", f.Path, err)
		}
	}
	return nil
}
