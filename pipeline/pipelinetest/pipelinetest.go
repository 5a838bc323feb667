// Package pipelinetest provides synthetic heart disease data and small trained
// artifacts for tests of the pipeline and the prediction service.
package pipelinetest

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/YuminosukeSato/heartml/dataset"
	"github.com/YuminosukeSato/heartml/pipeline"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// SampleRecord is a valid request body for the prediction service.
func SampleRecord() map[string]interface{} {
	return map[string]interface{}{
		"age": 63.0, "sex": 1.0, "cp": 1.0, "trestbps": 145.0, "chol": 233.0,
		"fbs": 1.0, "restecg": 2.0, "thalach": 150.0, "exang": 0.0,
		"oldpeak": 2.3, "slope": 3.0, "ca": 0.0, "thal": 6.0,
	}
}

// SyntheticRows returns n raw rows laid out like the Cleveland heart data.
// Roughly 45% carry a positive severity code and the features are shifted by
// the label, so a forest reaches a high AUC. About 2% of ca and thal cells
// hold the unknown marker.
func SyntheticRows(n int, seed uint64) [][]string {
	rng := rand.New(rand.NewPCG(seed, seed))
	clamp := func(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }
	pick := func(p float64) float64 {
		if rng.Float64() < p {
			return 1
		}
		return 0
	}

	rows := make([][]string, n)
	for i := range rows {
		sick := rng.Float64() < 0.45
		s := 0.0
		code := 0.0
		if sick {
			s = 1
			code = float64(1 + rng.IntN(4))
		}

		age := clamp(math.Round(52+6*s+8*rng.NormFloat64()), 29, 77)
		sex := pick(0.55 + 0.2*s)
		cp := clamp(float64(1+rng.IntN(3))+s, 1, 4)
		trestbps := clamp(math.Round(128+6*s+15*rng.NormFloat64()), 94, 200)
		chol := clamp(math.Round(240+10*s+45*rng.NormFloat64()), 126, 564)
		fbs := pick(0.15)
		restecg := float64(rng.IntN(3))
		thalach := clamp(math.Round(160-20*s+18*rng.NormFloat64()), 71, 202)
		exang := pick(0.15 + 0.45*s)
		oldpeak := clamp(math.Round((0.6+1.2*s+0.9*rng.NormFloat64())*10)/10, 0, 6.2)
		slope := clamp(float64(1+rng.IntN(2))+s*pick(0.5), 1, 3)
		ca := clamp(math.Round(0.3+1.2*s*rng.Float64()*2), 0, 3)
		thal := 3.0
		if rng.Float64() < 0.2+0.5*s {
			thal = 7
		} else if rng.Float64() < 0.1 {
			thal = 6
		}

		vals := []float64{age, sex, cp, trestbps, chol, fbs, restecg, thalach, exang, oldpeak, slope, ca, thal}
		row := make([]string, 0, 14)
		for _, v := range vals {
			row = append(row, strconv.FormatFloat(v, 'f', 1, 64))
		}
		row = append(row, strconv.FormatFloat(code, 'f', 0, 64))
		if rng.Float64() < 0.02 {
			row[11] = dataset.UnknownMarker
		}
		if rng.Float64() < 0.02 {
			row[12] = dataset.UnknownMarker
		}
		rows[i] = row
	}
	return rows
}

// WriteCSV writes rows as a headerless CSV file in dir and returns its path.
func WriteCSV(tb testing.TB, dir string, rows [][]string) string {
	tb.Helper()
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, ","))
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, "heart.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		tb.Fatalf("write csv: %v", err)
	}
	return path
}

// Config returns a fast training configuration rooted at dir.
func Config(dir, dataPath string) pipeline.TrainConfig {
	cfg := pipeline.DefaultTrainConfig()
	cfg.DataPath = dataPath
	cfg.ModelPath = filepath.Join(dir, "artifacts", "heart_disease_pipeline.gob")
	cfg.RunRecordPath = filepath.Join(dir, "logs", "train_run.json")
	cfg.ROCPlotPath = ""
	cfg.NEstimators = 20
	cfg.Logger, _ = log.NewTestLogger(log.LevelError)
	return cfg
}

// TrainArtifact trains a small pipeline on synthetic data under dir and
// returns the artifact path.
func TrainArtifact(tb testing.TB, dir string) string {
	tb.Helper()
	cfg := Config(dir, WriteCSV(tb, dir, SyntheticRows(200, 7)))
	if _, err := pipeline.Train(cfg); err != nil {
		tb.Fatalf("train artifact: %v", err)
	}
	return cfg.ModelPath
}
