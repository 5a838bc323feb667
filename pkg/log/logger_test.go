package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

func TestZerologLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug).With(ComponentKey, "pipeline")

	logger.Info("Training completed", AUCKey, 0.91, SamplesKey, 242)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "Training completed" {
		t.Errorf("unexpected message %v", entry["message"])
	}
	if entry[ComponentKey] != "pipeline" {
		t.Errorf("missing component field: %v", entry)
	}
	if entry[AUCKey] != 0.91 {
		t.Errorf("missing auc field: %v", entry)
	}
	if entry["level"] != "info" {
		t.Errorf("unexpected level %v", entry["level"])
	}
}

func TestZerologLoggerLeadingErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	err := errors.NewPersistenceError("load", "model.gob", fmt.Errorf("no such file"))
	logger.Error("Model load failed", err, OperationKey, OperationLoad)

	out := buf.String()
	if !strings.Contains(out, "no such file") {
		t.Errorf("expected error text in output: %s", out)
	}
	if !strings.Contains(out, `"`+ErrorTypeKey+`"`) {
		t.Errorf("expected structured error object in output: %s", out)
	}
	if !strings.Contains(out, OperationLoad) {
		t.Errorf("expected operation field in output: %s", out)
	}
}

func TestZerologLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be emitted")
	}
	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should be disabled")
	}
}

func TestSetupAndSetLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Level: LevelInfo, Out: &buf, AppName: "heartml-test"})
	defer Setup(Options{Level: LevelInfo})

	logger := GetLoggerWithName("serving")
	logger.Debug("before")
	SetLevel(LevelDebug)
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug message emitted before level change")
	}
	if !strings.Contains(out, "after") || !strings.Contains(out, "heartml-test") {
		t.Errorf("expected debug message with app name, got %s", out)
	}

	errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
	if !strings.Contains(buf.String(), "UndefinedMetricWarning") {
		t.Errorf("expected warning routed through zerolog, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTestLoggerCapturesFields(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctxLogger := testLogger.With(ComponentKey, "serving")

	ctxLogger.Info("prediction served", PredictionKey, 1, ConfidenceKey, 0.75)
	ctxLogger.Debug("dropped")
	ctxLogger.Error("failed", fmt.Errorf("boom"), OperationKey, OperationPredict)

	if !testLogger.ContainsField(ComponentKey, "serving") {
		t.Error("component field missing")
	}
	if !testLogger.ContainsField(ConfidenceKey, 0.75) {
		t.Error("confidence field missing")
	}
	if !testLogger.ContainsField("error", "boom") {
		t.Error("leading error not captured")
	}
	if testLogger.ContainsMessage("dropped") {
		t.Error("debug message should be filtered")
	}

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}
