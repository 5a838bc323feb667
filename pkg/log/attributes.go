package log

// Standard attribute keys. They follow a hierarchical naming convention
// ("model.name", "data.samples") so that training and serving logs can be
// filtered the same way.

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "StandardScaler", "RandomForestClassifier"
	ModelNameKey = "model.name"

	// ModelPathKey is the artifact location on disk.
	ModelPathKey = "model.path"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "load", "save"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"

	// SchemaFingerprintKey is the feature schema fingerprint stored with an artifact.
	SchemaFingerprintKey = "schema.fingerprint"

	// RunIDKey identifies a single training run.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// DataPathKey is the raw data file read by the training run.
	DataPathKey = "data.path"

	// MissingKey counts cells that were imputed.
	MissingKey = "data.missing"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// AUCKey records the area under the ROC curve.
	AUCKey = "metrics.roc_auc"

	// LossKey records the log loss on the holdout partition.
	LossKey = "metrics.loss"
)

// Prediction and Request Context
const (
	// PredictionKey is the discrete class returned to the caller.
	PredictionKey = "preds.prediction"

	// ConfidenceKey records the positive-class probability.
	ConfidenceKey = "preds.confidence"

	// ThresholdKey records the decision threshold used for classification.
	ThresholdKey = "preds.threshold"

	// InputKey carries the request feature record.
	InputKey = "preds.input"

	// RequestIDKey correlates all log lines of one HTTP request.
	RequestIDKey = "http.request_id"

	// StatusKey is the HTTP status code written.
	StatusKey = "http.status"

	// RouteKey is the matched HTTP route.
	RouteKey = "http.route"
)

// Error Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationEvaluate  = "evaluate"
	OperationLoad      = "load"
	OperationSave      = "save"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorModelUnavailable  = "MODEL_UNAVAILABLE"
)
