// Package heartml trains and serves a heart disease classifier built on the
// 13 clinical features of the Cleveland heart disease dataset.
//
// The training side reads a raw CSV, imputes unknown cells with column
// medians, holds out a stratified test partition, and fits a standard scaler
// followed by a random forest on the training rows only. The fitted pipeline
// is written atomically as a gob artifact together with a JSON run record and
// an ROC curve image.
//
// The serving side loads the artifact lazily, validates every request against
// the feature schema and answers with a class and the positive-class
// probability.
//
// # Quick Start
//
// Train with the defaults (data/heart.csv -> artifacts/heart_disease_pipeline.gob):
//
//	go run ./cmd/train
//
// Serve the artifact:
//
//	MODEL_PATH=artifacts/heart_disease_pipeline.gob go run ./cmd/serve
//
//	curl -s localhost:8000/predict -d '{"age":63,"sex":1,"cp":1,"trestbps":145,
//	  "chol":233,"fbs":1,"restecg":2,"thalach":150,"exang":0,"oldpeak":2.3,
//	  "slope":3,"ca":0,"thal":6}'
//
// Programmatic use:
//
//	res, err := pipeline.Train(pipeline.DefaultTrainConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("ROC AUC:", res.Evaluation.AUC)
//
// # Packages
//
//   - schema: feature names, kinds, fingerprint and request validation
//   - dataset: CSV loading, label derivation and median imputation
//   - preprocessing: StandardScaler and SimpleImputer
//   - sklearn/tree: DecisionTreeClassifier
//   - sklearn/ensemble: RandomForestClassifier
//   - sklearn/model_selection: stratified train/test split
//   - metrics: ROC AUC, ROC curve, log loss, accuracy
//   - pipeline: training run, artifact and run record
//   - serving: prediction service and HTTP handlers
//   - config: environment configuration
//   - core/model: estimator state and gob persistence
//   - core/parallel: parallel loops
//   - pkg/errors, pkg/log: error taxonomy and structured logging
package heartml
