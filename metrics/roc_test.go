package metrics

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

func TestROCCurve(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	yScore := mat.NewVecDense(4, []float64{0.1, 0.4, 0.35, 0.8})

	roc, err := ROCCurve(yTrue, yScore)
	if err != nil {
		t.Fatalf("ROCCurve() error = %v", err)
	}

	wantFPR := []float64{0, 0, 0.5, 0.5, 1}
	wantTPR := []float64{0, 0.5, 0.5, 1, 1}
	wantThr := []float64{math.Inf(1), 0.8, 0.4, 0.35, 0.1}
	for k := range wantFPR {
		if roc.FPR[k] != wantFPR[k] || roc.TPR[k] != wantTPR[k] || roc.Thresholds[k] != wantThr[k] {
			t.Errorf("point %d = (%v, %v, %v), want (%v, %v, %v)", k,
				roc.FPR[k], roc.TPR[k], roc.Thresholds[k], wantFPR[k], wantTPR[k], wantThr[k])
		}
	}

	auc, _ := AUC(yTrue, yScore)
	if math.Abs(roc.Area()-auc) > 1e-12 {
		t.Errorf("Area() = %v, AUC() = %v, want equal", roc.Area(), auc)
	}
}

func TestROCCurveTiedScores(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 1, 0, 1})
	yScore := mat.NewVecDense(4, []float64{0.5, 0.5, 0.5, 0.5})

	roc, err := ROCCurve(yTrue, yScore)
	if err != nil {
		t.Fatal(err)
	}
	if len(roc.FPR) != 2 {
		t.Fatalf("tied scores should give a single step, got %d points", len(roc.FPR))
	}
	if roc.Area() != 0.5 {
		t.Errorf("Area() = %v, want 0.5", roc.Area())
	}
}

func TestROCCurveSingleClass(t *testing.T) {
	_, err := ROCCurve(mat.NewVecDense(2, []float64{1, 1}), mat.NewVecDense(2, []float64{0.2, 0.9}))
	if err == nil {
		t.Fatal("expected error when only one class is present")
	}
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(nil)

	got, err := AUC(mat.NewVecDense(2, []float64{0, 0}), mat.NewVecDense(2, []float64{0.3, 0.6}))
	if err != nil || got != 0.5 {
		t.Fatalf("AUC() = %v, %v; want 0.5, nil", got, err)
	}
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %d", len(warned))
	}
	var w *errors.UndefinedMetricWarning
	if !errors.As(warned[0], &w) {
		t.Errorf("warning type = %T, want *UndefinedMetricWarning", warned[0])
	}
}

func TestROCSavePlot(t *testing.T) {
	roc, err := ROCCurve(
		mat.NewVecDense(6, []float64{0, 0, 1, 0, 1, 1}),
		mat.NewVecDense(6, []float64{0.1, 0.3, 0.35, 0.6, 0.7, 0.9}),
	)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "roc.png")
	if err := roc.SavePlot(path, "ROC"); err != nil {
		t.Fatalf("SavePlot() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestThreshold(t *testing.T) {
	got := Threshold(mat.NewVecDense(4, []float64{0.2, 0.5, 0.49, 0.9}), 0.5)
	want := []float64{0, 1, 0, 1}
	for i, w := range want {
		if got.AtVec(i) != w {
			t.Errorf("Threshold()[%d] = %v, want %v", i, got.AtVec(i), w)
		}
	}
}

func TestROCWritePlotFormats(t *testing.T) {
	roc, err := ROCCurve(
		mat.NewVecDense(4, []float64{0, 1, 0, 1}),
		mat.NewVecDense(4, []float64{0.2, 0.8, 0.4, 0.6}),
	)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "roc.svg")
	if err := roc.SavePlot(path, "ROC"); err != nil {
		t.Fatalf("SavePlot() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "<svg") {
		t.Error("svg extension did not produce an SVG document")
	}

	if PlotFormat("curve") != "png" || PlotFormat("curve.PDF") != "pdf" {
		t.Errorf("PlotFormat: got %q and %q", PlotFormat("curve"), PlotFormat("curve.PDF"))
	}

	var buf bytes.Buffer
	if err := roc.WritePlot(&buf, "ROC", "bmp"); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}
