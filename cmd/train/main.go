// Command train fits the heart disease pipeline and writes the artifact, the
// run record and the ROC curve.
package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/YuminosukeSato/heartml/config"
	"github.com/YuminosukeSato/heartml/pipeline"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Setup(cfg.LoggerOptions())
	logger := log.GetLoggerWithName("train")

	// Trees are fitted on every available core; respect container CPU quotas.
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	defer undo()
	if err != nil {
		logger.Warn("Failed to set GOMAXPROCS", "error", err.Error())
	}

	res, err := pipeline.Train(cfg.TrainConfig())
	if err != nil {
		logger.Error("Training failed", err)
		return err
	}

	fmt.Printf("ROC AUC: %.4f\n", res.Evaluation.AUC)
	fmt.Printf("Model saved to: %s\n", res.Record.ModelPath)
	fmt.Printf("Run record saved to: %s\n", cfg.TrainRunRecordPath)
	if res.Record.ROCPlotPath != "" {
		fmt.Printf("ROC curve saved to: %s\n", res.Record.ROCPlotPath)
	}
	return nil
}
