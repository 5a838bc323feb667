package pipeline

import (
	"encoding/json"
	"io"
	"os"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// RunMetrics are the holdout metrics of a training run.
type RunMetrics struct {
	ROCAUC   float64 `json:"roc_auc"`
	Accuracy float64 `json:"accuracy"`
	LogLoss  float64 `json:"log_loss"`
}

// RunRecord is the JSON summary written at the end of a successful run.
type RunRecord struct {
	Timestamp         string                 `json:"timestamp"`
	RunID             string                 `json:"run_id"`
	DataPath          string                 `json:"data_path"`
	ModelPath         string                 `json:"model_path"`
	ROCPlotPath       string                 `json:"roc_plot_path,omitempty"`
	ModelParams       map[string]interface{} `json:"model_params"`
	Metrics           RunMetrics             `json:"metrics"`
	Rows              int                    `json:"rows"`
	Cols              int                    `json:"cols"`
	TrainRows         int                    `json:"train_rows"`
	TestRows          int                    `json:"test_rows"`
	SchemaFingerprint string                 `json:"schema_fingerprint"`
}

// Stage writes the record as indented JSON next to path without replacing
// it. Train commits it together with the artifact.
func (r *RunRecord) Stage(path string) (*model.StagedFile, error) {
	f, err := model.StageFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	})
	if err != nil {
		return nil, errors.NewPersistenceError("write_run_record", path, err)
	}
	return f, nil
}

// ReadRunRecord parses a record written by Train.
func ReadRunRecord(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewPersistenceError("read_run_record", path, err)
	}
	var r RunRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.NewPersistenceError("read_run_record", path, err)
	}
	return &r, nil
}
